package storage

import "genrep/internal/summary"

// ReportRow is a flattened player record for JSONL storage.
// One record per participant, observers included.
type ReportRow struct {
	// Match identifiers
	MatchID   string `json:"matchId"`
	SourceURL string `json:"sourceUrl,omitempty"`
	Start     string `json:"start"`
	Date      string `json:"date"`
	Version   string `json:"version"`
	MapName   string `json:"mapName"`
	MatchType string `json:"matchType"`
	MatchMode string `json:"matchMode"`
	EndFrame  int    `json:"endFrame"`

	// Result as seen by the replay owner
	Result      string `json:"result"`
	WinningTeam string `json:"winningTeam"`
	FoundWinner bool   `json:"foundWinner"`
	Uploader    string `json:"uploader"`

	// Participant data
	Number        int    `json:"number"`
	Name          string `json:"name"`
	Nick          string `json:"nick"`
	Team          int    `json:"team"`
	Faction       string `json:"faction"`
	RandomFaction bool   `json:"randomFaction"`
	Color         string `json:"color"`
	Observer      bool   `json:"observer"`
	Placement     int    `json:"placement"`
	Win           bool   `json:"win"`

	// Quit timeline, rendered durations
	Surrender string `json:"surrender,omitempty"`
	Exit      string `json:"exit,omitempty"`
	Ambiguous string `json:"ambiguous,omitempty"`
	Idle      string `json:"idle,omitempty"`
}

// RowsFromReport flattens a report into one row per player.
func RowsFromReport(r *summary.Report) []ReportRow {
	rows := make([]ReportRow, 0, len(r.Players))
	for _, p := range r.Players {
		rows = append(rows, ReportRow{
			MatchID:       r.MatchID,
			SourceURL:     r.SourceURL,
			Start:         r.Start,
			Date:          r.Date,
			Version:       r.VersionString,
			MapName:       r.MapName,
			MatchType:     r.MatchType,
			MatchMode:     r.MatchMode,
			EndFrame:      r.EndFrame,
			Result:        r.Result,
			WinningTeam:   r.WinningTeam,
			FoundWinner:   r.FoundWinner,
			Uploader:      r.LocalPlayer,
			Number:        p.Number,
			Name:          p.Name,
			Nick:          p.Nick,
			Team:          p.Team,
			Faction:       p.Faction,
			RandomFaction: p.RandomFaction,
			Color:         p.Color,
			Observer:      p.Observer,
			Placement:     p.Placement,
			Win:           r.FoundWinner && p.Placement == 1,
			Surrender:     p.Surrender,
			Exit:          p.Exit,
			Ambiguous:     p.Ambiguous,
			Idle:          p.Idle,
		})
	}
	return rows
}
