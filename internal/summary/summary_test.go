package summary

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genrep/internal/lobby"
	"genrep/internal/outcome"
	"genrep/internal/replay"
	"genrep/internal/scan/scantest"
	"genrep/internal/slots"
	"genrep/internal/versions"
)

func intp(v int) *int { return &v }

func TestFramesToDuration(t *testing.T) {
	tests := []struct {
		frames *int
		want   string
	}{
		{nil, ""},
		{intp(0), "00s 00f"},
		{intp(31), "01s 01f"},
		{intp(3000), "01m 40s 00f"},
		{intp(108045), "01:00:01.15"},
		{intp(2592000), "01:00:00:00.00"},
	}
	for _, tt := range tests {
		if got := FramesToDuration(tt.frames); got != tt.want {
			t.Errorf("FramesToDuration(%v) = %q, want %q", tt.frames, got, tt.want)
		}
	}
}

func TestOrdinal(t *testing.T) {
	tests := map[int]string{
		0: "", 1: "1st", 2: "2nd", 3: "3rd", 4: "4th",
		11: "11th", 12: "12th", 13: "13th", 21: "21st", 22: "22nd", 111: "111th",
	}
	for n, want := range tests {
		if got := Ordinal(n); got != want {
			t.Errorf("Ordinal(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatCash(t *testing.T) {
	tests := map[string]string{
		"10000":      "10k",
		"10050":      "10.1k",
		"12345":      "12.3k",
		"999":        "1k",
		"5":          "0",
		"15":         "20",
		"1250000":    "1.2M",
		"2000000000": "2B",
		"Unknown":    "",
	}
	for in, want := range tests {
		if got := FormatCash(in); got != want {
			t.Errorf("FormatCash(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchMode(t *testing.T) {
	tests := []struct {
		ip, port, want string
	}{
		{"1A2B3C4D", "8088", "LAN (Radmin)"},
		{"19000001", "8088", "LAN (Hamachi)"},
		{"C0A80101", "8088", "LAN"},
		{"5A5A5A5A", "8088", "GameRanger"},
		{"0", "0", "Skirmish Mode"},
		{"", "", "Skirmish Mode"},
		{"5A5A5A5A", "1234", "Online"},
		{"zz", "8088", "Invalid IP"},
	}
	for _, tt := range tests {
		if got := MatchMode(tt.ip, tt.port); got != tt.want {
			t.Errorf("MatchMode(%q, %q) = %q, want %q", tt.ip, tt.port, got, tt.want)
		}
	}
}

func TestRenameFFA(t *testing.T) {
	tests := map[string]string{
		"1v1v1v1": "ffa4",
		"2v2v2":   "t2ffa3",
		"1v1":     "1v1",
		"2v2":     "2v2",
		"1v2v2":   "1v2v2",
	}
	for in, want := range tests {
		if got := RenameFFA(in); got != want {
			t.Errorf("RenameFFA(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTimezoneOffset(t *testing.T) {
	h := &replay.Header{BeginTimestamp: 1710500000} // 2024-03-15 10:53:20 UTC
	tests := []struct {
		local replay.SystemTime
		want  string
	}{
		{replay.SystemTime{Year: 2024, Month: 3, Day: 15, Hour: 12, Minute: 53, Second: 20}, "UTC+2"},
		{replay.SystemTime{Year: 2024, Month: 3, Day: 15, Hour: 6, Minute: 23, Second: 20}, "UTC-4:30"},
		{replay.SystemTime{Year: 2024, Month: 3, Day: 15, Hour: 10, Minute: 53, Second: 21}, "UTC+0"},
	}
	for _, tt := range tests {
		h.SystemTime = tt.local
		if got := TimezoneOffset(h); got != tt.want {
			t.Errorf("TimezoneOffset(%+v) = %q, want %q", tt.local, got, tt.want)
		}
	}
}

func TestMatchIDUsesUploadDate(t *testing.T) {
	h := &replay.Header{BeginTimestamp: 1710500000, EndTimestamp: 1710500600}
	nicks := []string{"Alpha", "Bravo"}

	local := MatchID(MatchDate(h, ""), 987654, "1v1", "ABCD1234", nicks)
	if local != "aaf4e25ed530c4d726fcc2861400c475" {
		t.Errorf("local MatchID = %s", local)
	}

	// uploaded the next day: the replay date stands
	next := "http://www.gentool.net/data/zh/2024_03_March/16_Saturday/Alpha/12-30-00_1v1.rep"
	if id := MatchID(MatchDate(h, next), 987654, "1v1", "ABCD1234", nicks); id != local {
		t.Errorf("next day upload changed the id: %s", id)
	}

	// uploaded five days later: the recorded clock is wrong
	late := "http://www.gentool.net/data/zh/2024_03_March/20_Wednesday/Alpha/12-30-00_1v1.rep"
	if got := MatchDate(h, late); !got.Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("MatchDate = %v", got)
	}
	start, end, day := MatchTimes(h, late)
	if start != "2024-03-20 12:30:00" || end != "2024-03-20 12:40:00" || day != "2024-03-20" {
		t.Errorf("MatchTimes = %q %q %q", start, end, day)
	}

	start, end, day = MatchTimes(h, next)
	if start != "2024-03-15 10:53:20" || end != "2024-03-15 11:03:20" || day != "2024-03-16" {
		t.Errorf("MatchTimes = %q %q %q", start, end, day)
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName(` 1v1 (A<b>:c) "d"/e\f|g?h*. `); got != "1v1 (A_b__c) _d__e_f_g_h_" {
		t.Errorf("SanitizeFileName = %q", got)
	}
}

func TestBuild(t *testing.T) {
	gs := "M=maps/tournament desert;MC=ABCD1234;SD=987654;SR=0;SC=10000;" +
		"S=HAlpha,1A2B3C4D,8088,TT,1,2,-1,0,1:HBravo,5A5A5A5A,8088,TT,2,4,-1,1,1:X:X:X:X:X:X:;"
	cfg, err := lobby.Parse(gs)
	if err != nil {
		t.Fatal(err)
	}
	h := &replay.Header{
		BeginTimestamp: 1710500000,
		EndTimestamp:   1710500600,
		TotalFrames:    9000,
		VersionString:  "Version 1.04",
		ExeCRC:         ExeCRC104,
		IniCRC:         1,
		SystemTime:     replay.SystemTime{Year: 2024, Month: 3, Day: 15, Hour: 11, Minute: 53, Second: 20},
	}

	var s scantest.Stream
	s.Broadcast(300, 1, 2, 3).
		SelfDestruct(3000, 3, 1).
		Broadcast(3300, 7, 2).
		ClearReplay(3310, 2)

	table := versions.Default()
	roster, err := slots.Resolve(cfg, h, s.Body(), table, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	res := outcome.Reconstruct(outcome.Input{Body: s.Body(), Roster: roster})

	rep := Build(Input{Header: h, Config: cfg, Roster: roster, Table: table, Outcome: res})

	if rep.MatchID != "aaf4e25ed530c4d726fcc2861400c475" {
		t.Errorf("MatchID = %s", rep.MatchID)
	}
	if rep.MatchMode != "LAN (Radmin)" || rep.Timezone != "UTC+1" {
		t.Errorf("mode/timezone = %q %q", rep.MatchMode, rep.Timezone)
	}
	if !rep.ExeCheck || rep.IniCheck {
		t.Errorf("checks = %v %v", rep.ExeCheck, rep.IniCheck)
	}
	if rep.Result != outcome.TextWin || rep.LocalPlayer != "Alpha" || rep.LocalColor != "Red" {
		t.Errorf("result = %q for %q (%s)", rep.Result, rep.LocalPlayer, rep.LocalColor)
	}
	if rep.Duration != "01m 40s 00f" {
		t.Errorf("Duration = %q", rep.Duration)
	}
	if want := "1v1 (24.03.15) (tournament desert) Alpha(usa) vs Bravo(gla)"; rep.SuggestedFileName != want {
		t.Errorf("SuggestedFileName = %q, want %q", rep.SuggestedFileName, want)
	}

	if len(rep.Players) != 2 {
		t.Fatalf("got %d player rows", len(rep.Players))
	}
	alpha, bravo := rep.Players[0], rep.Players[1]
	if alpha.Ordinal != "1st" || alpha.Faction != "USA" || alpha.LastCRC != "7" {
		t.Errorf("alpha = %+v", alpha)
	}
	if bravo.Ordinal != "2nd" || bravo.Exit != "01m 40s 00f" || bravo.Faction != "GLA" || bravo.Color != "Blue" {
		t.Errorf("bravo = %+v", bravo)
	}

	labels := map[string]string{}
	for _, r := range rep.Info {
		labels[r.Label] = r.Value
	}
	if labels["Start Time (UTC+0)"] != "Friday, March 15, 2024 at 10:53 AM" {
		t.Errorf("start row = %q", labels["Start Time (UTC+0)"])
	}
	if labels["INI check (1.04)"] != "Failed" || labels["Winning Team"] != "1" {
		t.Errorf("rows = %v", labels)
	}
}
