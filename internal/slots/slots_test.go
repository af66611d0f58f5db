package slots

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"genrep/internal/lobby"
	"genrep/internal/replay"
	"genrep/internal/scan"
	"genrep/internal/scan/scantest"
	"genrep/internal/versions"
)

func human(name string, color, faction, team int) string {
	return "H" + name + ",1A2B3C4D,8088,TT," + strconv.Itoa(color) + "," + strconv.Itoa(faction) + ",-1," + strconv.Itoa(team) + ",1"
}

func gameString(extra string, slots ...string) string {
	s := "M=maps/test map;MC=ABCD1234;SD=987654;" + extra + "S="
	for _, sl := range slots {
		s += sl + ":"
	}
	return s + ";"
}

func mustResolve(t *testing.T, gs string, local int, body scan.Body) *Roster {
	t.Helper()
	cfg, err := lobby.Parse(gs)
	if err != nil {
		t.Fatalf("lobby.Parse: %v", err)
	}
	hdr := &replay.Header{LocalPlayerIndex: local, TotalFrames: 9000}
	r, err := Resolve(cfg, hdr, body, versions.Default(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return r
}

func TestResolve_OffsetFromFirstCRC(t *testing.T) {
	gs := gameString("SR=0;SC=10000;",
		human("A", 0, 2, 0), "X", human("B", 1, 3, 1), human("C", 2, 4, 0))

	var s scantest.Stream
	s.Order(10, 1049, 4).Broadcast(150, 1, 4, 5, 6).Broadcast(300, 1, 4, 5, 6)

	r := mustResolve(t, gs, 2, s.Body())
	if r.Offset != 4 {
		t.Errorf("Offset = %d, want 4", r.Offset)
	}
	if r.Local != 5 {
		t.Errorf("Local = %d, want 5", r.Local)
	}
	if r.NormalEnding {
		t.Error("no clear replay message, NormalEnding must be false")
	}
	nums := []int{r.Players[0].Number, r.Players[1].Number, r.Players[2].Number}
	if !reflect.DeepEqual(nums, []int{4, 5, 6}) {
		t.Errorf("player numbers = %v", nums)
	}
}

func TestResolve_ClearReplayNamesLocalPlayer(t *testing.T) {
	gs := gameString("SR=0;SC=10000;", human("A", 0, 2, 0), human("B", 1, 3, 1))

	var s scantest.Stream
	s.Broadcast(150, 1, 2, 3).Broadcast(300, 1, 2, 3).ClearReplay(310, 3)

	// the header claims slot 0 but the stream was recorded by player 3
	r := mustResolve(t, gs, 0, s.Body())
	if r.Local != 3 || r.Offset != 2 || !r.NormalEnding {
		t.Errorf("Local/Offset/Normal = %d/%d/%v, want 3/2/true", r.Local, r.Offset, r.NormalEnding)
	}
	if r.EndFrame != 9000 {
		t.Errorf("EndFrame = %d, want header total 9000", r.EndFrame)
	}
}

func TestResolve_CountMismatchUsesClearReplay(t *testing.T) {
	gs := gameString("SR=0;SC=10000;",
		human("A", 0, 2, 0), human("B", 1, 3, 1), human("C", 2, 4, 0))

	var s scantest.Stream
	s.Broadcast(150, 1, 3, 4).ClearReplay(320, 5)

	r := mustResolve(t, gs, 2, s.Body())
	if r.Local != 5 || r.Offset != 3 {
		t.Errorf("Local/Offset = %d/%d, want 5/3", r.Local, r.Offset)
	}
}

func TestResolve_NoCRCUsesDefaultOffset(t *testing.T) {
	gs := gameString("SR=0;SC=10000;", human("A", 0, 2, 0), human("B", 1, 3, 1))

	var s scantest.Stream
	s.Order(40, 1049, 2).Order(95, 1060, 3)

	r := mustResolve(t, gs, 1, s.Body())
	if r.Offset != DefaultOffset || r.Local != 3 {
		t.Errorf("Offset/Local = %d/%d, want 2/3", r.Offset, r.Local)
	}
	if r.EndFrame != 95 {
		t.Errorf("EndFrame = %d, want last message frame 95", r.EndFrame)
	}
}

func TestResolve_TeamlessPlayersGetOwnTeams(t *testing.T) {
	gs := gameString("SR=0;SC=10000;",
		human("A", 0, 2, -1), human("B", 1, 3, 0), human("C", 2, 4, -1), human("Obs", 3, -2, -1))

	r := mustResolve(t, gs, 0, "")
	for _, tm := range r.Teams {
		if tm.Number == 0 {
			t.Fatal("team 0 survived resolution")
		}
	}

	teams := map[int][]int{}
	for _, tm := range r.Teams {
		teams[tm.Number] = tm.Members
	}
	want := map[int][]int{1: {3}, 2: {2}, 3: {4}}
	if !reflect.DeepEqual(teams, want) {
		t.Errorf("teams = %v, want %v", teams, want)
	}
	if r.TeamOf(2) != 2 || r.TeamOf(4) != 3 {
		t.Errorf("player teams not updated: %+v", r.Players)
	}

	seen := map[int]int{}
	for _, tm := range r.Teams {
		for _, m := range tm.Members {
			seen[m]++
		}
	}
	for _, p := range r.Players {
		switch {
		case p.Observer && seen[p.Number] != 0:
			t.Errorf("observer %d is on a team", p.Number)
		case !p.Observer && seen[p.Number] != 1:
			t.Errorf("player %d is on %d teams", p.Number, seen[p.Number])
		}
	}
	if !reflect.DeepEqual(r.ObserverNums, []int{5}) {
		t.Errorf("ObserverNums = %v", r.ObserverNums)
	}
	if r.MatchType() != "1v1v1" {
		t.Errorf("MatchType = %q", r.MatchType())
	}
}

func TestResolve_RandomFactionAndColor(t *testing.T) {
	slots := []string{human("A", -1, -1, 0), human("B", 0, 5, 1)}

	r := mustResolve(t, gameString("SR=0;SC=10000;", slots...), 0, "")
	a, b := r.Players[0], r.Players[1]
	if a.Faction != 3 || a.Color != 3 {
		t.Errorf("random player faction/color = %d/%d, want 3/3", a.Faction, a.Color)
	}
	if !a.FactionRandomized || !a.ColorRandomized {
		t.Error("random flags not set")
	}
	if b.Faction != 3 || b.Color != 0 || b.FactionRandomized {
		t.Errorf("fixed player = %+v", b)
	}

	// without SR and SC only the three base factions are drawn from
	r = mustResolve(t, gameString("", slots...), 0, "")
	if r.Players[0].Faction != 0 || r.Players[0].Color != 3 {
		t.Errorf("base game faction/color = %d/%d, want 0/3", r.Players[0].Faction, r.Players[0].Color)
	}
}

func TestResolve_AllColorsTaken(t *testing.T) {
	slots := []string{human("R", -1, 2, 0)}
	for c := 0; c < 8; c++ {
		slots = append(slots, human("P", c, 2, 1))
	}
	r := mustResolve(t, gameString("SR=0;SC=10000;", slots...), 0, "")
	if r.Players[0].Color != lobby.Random {
		t.Errorf("color = %d, want it left random", r.Players[0].Color)
	}
}

func TestResolve_ComputerAndCorruptNick(t *testing.T) {
	gs := gameString("SR=0;SC=10000;", human("é", 0, 2, 0), "CH,1,3,-1,1")

	cfg, err := lobby.Parse(gs)
	if err != nil {
		t.Fatal(err)
	}
	hdr := &replay.Header{IsCorrupt: true}
	r, err := Resolve(cfg, hdr, "", versions.Default(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if !r.ComputerInGame {
		t.Error("ComputerInGame not set")
	}
	if r.Players[0].Nick != "player" || r.Players[0].Name != "é" {
		t.Errorf("nick/name = %q/%q", r.Players[0].Nick, r.Players[0].Name)
	}
	if r.Players[1].Name != "Hard AI" || !r.IsPlayer(3) {
		t.Errorf("computer = %+v", r.Players[1])
	}
	if !reflect.DeepEqual(r.Nicks, []string{"player", "Hard AI"}) {
		t.Errorf("Nicks = %v", r.Nicks)
	}
}

func TestResolve_EmptyLobby(t *testing.T) {
	cfg, _ := lobby.Parse("M=maps/x;SD=1;S=X:O:;")
	if _, err := Resolve(cfg, &replay.Header{}, "", versions.Default(), zerolog.Nop()); err == nil {
		t.Error("expected an error for a lobby without players")
	}
}
