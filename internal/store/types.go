// Package store keeps reconstructed matches in a database so uploads of the
// same game by different players merge into one match.
package store

import (
	"errors"

	"genrep/internal/summary"
)

// ErrNotFound is returned when a match id is unknown.
var ErrNotFound = errors.New("match not found")

// Match is the stored form of a report. Fields every copy of a match
// shares live here; per-upload fields live in Upload.
type Match struct {
	MatchID     string `json:"matchId"`
	Date        string `json:"date"`
	Start       string `json:"start"`
	MapName     string `json:"mapName"`
	MapCRC      string `json:"mapCrc"`
	MatchType   string `json:"matchType"`
	MatchMode   string `json:"matchMode"`
	Seed        int64  `json:"seed"`
	Version     string `json:"version"`
	EndFrame    int    `json:"endFrame"`
	WinningTeam string `json:"winningTeam"`
	FoundWinner bool   `json:"foundWinner"`

	Players []Player `json:"players"`
	Uploads []Upload `json:"uploads"`
}

// Player is one participant of a stored match.
type Player struct {
	Number        int    `json:"number"`
	Name          string `json:"name"`
	Nick          string `json:"nick"`
	Team          int    `json:"team"`
	Faction       string `json:"faction"`
	RandomFaction bool   `json:"randomFaction"`
	Color         string `json:"color"`
	Observer      bool   `json:"observer"`
	Placement     int    `json:"placement"`
}

// Upload is one replay file of a match.
type Upload struct {
	Source   string `json:"source"`
	Uploader string `json:"uploader"`
	Result   string `json:"result"`
	Desync   bool   `json:"desync"`
}

// sourceKey identifies an upload. Local files have no URL, so the uploading
// player stands in.
func sourceKey(r *summary.Report) string {
	if r.SourceURL != "" {
		return r.SourceURL
	}
	return "local:" + r.LocalPlayer
}

// FromReport converts a report into its stored form.
func FromReport(r *summary.Report) Match {
	m := Match{
		MatchID:     r.MatchID,
		Date:        r.Date,
		Start:       r.Start,
		MapName:     r.MapName,
		MapCRC:      r.MapCRC,
		MatchType:   r.MatchType,
		MatchMode:   r.MatchMode,
		Seed:        r.Seed,
		Version:     r.VersionString,
		EndFrame:    r.EndFrame,
		WinningTeam: r.WinningTeam,
		FoundWinner: r.FoundWinner,
		Uploads: []Upload{{
			Source:   sourceKey(r),
			Uploader: r.LocalPlayer,
			Result:   r.Result,
			Desync:   r.Desync,
		}},
	}
	for _, p := range r.Players {
		m.Players = append(m.Players, Player{
			Number:        p.Number,
			Name:          p.Name,
			Nick:          p.Nick,
			Team:          p.Team,
			Faction:       p.Faction,
			RandomFaction: p.RandomFaction,
			Color:         p.Color,
			Observer:      p.Observer,
			Placement:     p.Placement,
		})
	}
	return m
}
