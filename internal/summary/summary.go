// Package summary assembles the report shown for one replay from the decoded
// header, the resolved roster and the reconstructed outcome. It makes no
// decisions of its own.
package summary

import (
	"strconv"
	"strings"
	"time"

	"genrep/internal/lobby"
	"genrep/internal/outcome"
	"genrep/internal/replay"
	"genrep/internal/slots"
	"genrep/internal/versions"
)

// Input is everything Build reads.
type Input struct {
	Header  *replay.Header
	Config  *lobby.Config
	Roster  *slots.Roster
	Table   *versions.Table
	Outcome outcome.Result
	// SourceURL is the archive URL the replay was downloaded from. It is
	// empty for local files.
	SourceURL string
}

// Row is one labeled line of match information.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PlayerRow is one participant as listed in the player table.
type PlayerRow struct {
	Number  int    `json:"number"`
	Team    int    `json:"team"`
	IP      string `json:"ip"`
	Name    string `json:"name"`
	Nick    string `json:"nick"`
	Faction string `json:"faction"`

	// FactionShort is the abbreviation used in file names.
	FactionShort  string `json:"factionShort"`
	RandomFaction bool   `json:"randomFaction"`
	Observer      bool   `json:"observer"`
	Computer      bool   `json:"computer"`

	Ambiguous string `json:"ambiguous"`
	Surrender string `json:"surrender"`
	Exit      string `json:"exit"`
	Idle      string `json:"idle"`
	LastCRC   string `json:"lastCrc"`

	// Placement is 0 when the player was not ranked.
	Placement int    `json:"placement"`
	Ordinal   string `json:"ordinal"`

	Color    string `json:"color"`
	ColorHex string `json:"colorHex"`
}

// Report is the assembled summary of one replay.
type Report struct {
	MatchID   string `json:"matchId"`
	SourceURL string `json:"sourceUrl,omitempty"`

	Start string `json:"start"`
	End   string `json:"end"`
	Date  string `json:"date"`

	Timezone      string `json:"timezone"`
	VersionString string `json:"versionString"`
	BuildDate     string `json:"buildDate"`
	ExeCheck      bool   `json:"exeCheck"`
	IniCheck      bool   `json:"iniCheck"`

	MapName       string `json:"mapName"`
	MapPath       string `json:"mapPath"`
	MapCRC        string `json:"mapCrc"`
	StartCash     string `json:"startCash"`
	SWRestriction string `json:"swRestriction"`
	MatchType     string `json:"matchType"`
	MatchMode     string `json:"matchMode"`
	Seed          int64  `json:"seed"`

	EndFrame int    `json:"endFrame"`
	Duration string `json:"duration"`

	LocalPlayer string `json:"localPlayer"`
	LocalColor  string `json:"localColor"`

	Result      string `json:"result"`
	WinningTeam string `json:"winningTeam"`
	FoundWinner bool   `json:"foundWinner"`
	Desync      bool   `json:"desync"`
	Corrupt     bool   `json:"corrupt"`

	Info    []Row       `json:"info"`
	Players []PlayerRow `json:"players"`

	SuggestedFileName string `json:"suggestedFileName"`

	Outcome outcome.Result `json:"outcome"`
}

// Build assembles the report.
func Build(in Input) *Report {
	h, cfg, r := in.Header, in.Config, in.Roster
	start, end, date := MatchTimes(h, in.SourceURL)
	hostIP, hostPort, _ := cfg.Host()
	matchType := r.MatchType()

	rep := &Report{
		SourceURL:     in.SourceURL,
		Start:         start,
		End:           end,
		Date:          date,
		Timezone:      TimezoneOffset(h),
		VersionString: h.VersionString,
		BuildDate:     h.BuildDate,
		ExeCheck:      h.ExeCRC == ExeCRC104,
		IniCheck:      h.IniCRC == IniCRC104,
		MapName:       cfg.MapName(),
		MapPath:       cfg.MapPath(),
		MapCRC:        cfg.MapCRC(),
		StartCash:     cfg.StartCash(),
		SWRestriction: cfg.SWRestriction(),
		MatchType:     matchType,
		MatchMode:     MatchMode(hostIP, hostPort),
		Seed:          cfg.Seed(),
		EndFrame:      in.Outcome.EndFrame,
		Duration:      FramesToDuration(&in.Outcome.EndFrame),
		Result:        in.Outcome.Text,
		WinningTeam:   in.Outcome.WinningTeamText,
		FoundWinner:   in.Outcome.FoundWinner,
		Desync:        h.Desync == 1,
		Corrupt:       h.IsCorrupt,
		Outcome:       in.Outcome,
	}
	rep.MatchID = MatchID(MatchDate(h, in.SourceURL), rep.Seed, matchType, rep.MapCRC, r.Nicks)

	if local, ok := r.Player(r.Local); ok {
		rep.LocalPlayer = local.Name
		rep.LocalColor = in.Table.Color(local.Color).Name
	}

	for _, p := range r.Players {
		rep.Players = append(rep.Players, playerRow(p, in.Table, in.Outcome))
	}
	rep.SuggestedFileName = SuggestedFileName(h.Begin(), matchType, rep.MapName, r, in.Table)
	rep.Info = rep.rows()
	return rep
}

func playerRow(p slots.Player, table *versions.Table, res outcome.Result) PlayerRow {
	faction := table.Faction(p.Faction)
	color := table.Color(p.Color)
	f := res.Frames[p.Number]

	row := PlayerRow{
		Number:        p.Number,
		Team:          p.Team,
		IP:            p.IP,
		Name:          p.Name,
		Nick:          p.Nick,
		Faction:       faction.Name,
		FactionShort:  faction.Short,
		RandomFaction: p.FactionRandomized,
		Observer:      p.Observer,
		Computer:      p.IsComputer(),
		Ambiguous:     FramesToDuration(f.Ambiguous),
		Surrender:     FramesToDuration(f.Surrender),
		Exit:          FramesToDuration(f.Exit),
		Idle:          FramesToDuration(f.Idle),
		Color:         color.Name,
		ColorHex:      color.Hex,
	}
	if f.LastCRC != nil {
		row.LastCRC = strconv.Itoa(*f.LastCRC)
	}
	if !p.Observer && p.Team > 0 {
		if rank, ok := res.PlayerPlacement(p.Team); ok {
			row.Placement = rank
			row.Ordinal = Ordinal(rank)
		}
	}
	return row
}

func (r *Report) rows() []Row {
	check := func(ok bool) string {
		if ok {
			return "Success"
		}
		return "Failed"
	}
	begin, err := time.Parse("2006-01-02 15:04:05", r.Start)
	startText := r.Start
	if err == nil {
		startText = begin.Format("Monday, January 02, 2006 at 03:04 PM")
	}
	return []Row{
		{"Match ID", r.MatchID},
		{"Start Time (UTC+0)", startText},
		{"Player Timezone", r.Timezone},
		{"Version String", r.VersionString},
		{"Build Date", r.BuildDate},
		{"EXE check (1.04)", check(r.ExeCheck)},
		{"INI check (1.04)", check(r.IniCheck)},
		{"Map Name", r.MapName},
		{"Start Cash", r.StartCash},
		{"SW Restriction", r.SWRestriction},
		{"Match Type", r.MatchType},
		{"Replay Duration", r.Duration},
		{"Match Mode", r.MatchMode},
		{"Player Name", r.LocalPlayer},
		{"Match Result", r.Result},
		{"Winning Team", r.WinningTeam},
		{"Color", r.LocalColor},
	}
}

// SuggestedFileName builds the name a replay is renamed to, without the
// extension: "1v1 (24.03.15) (Tournament Desert) A(usa) vs B(gla)". The
// team part is cut at 40 characters.
func SuggestedFileName(begin time.Time, matchType, mapName string, r *slots.Roster, table *versions.Table) string {
	var teams []string
	for _, t := range r.Teams {
		var sb strings.Builder
		for _, num := range t.Members {
			p, _ := r.Player(num)
			sb.WriteString(p.Name + "(" + table.Faction(p.Faction).Short + ") ")
		}
		teams = append(teams, sb.String())
	}
	vs := []rune(strings.TrimSpace(strings.Join(teams, "vs ")))
	if len(vs) >= 40 {
		vs = vs[:40]
	}
	name := RenameFFA(matchType) + " (" + begin.UTC().Format("06.01.02") + ") (" + mapName + ") " + string(vs)
	return SanitizeFileName(name)
}
