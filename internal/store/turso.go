package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"genrep/internal/summary"
)

// Turso stores matches in a libSQL database, the read replica the viewer
// apps query.
type Turso struct {
	db *sql.DB
}

// NewTurso connects to a Turso database.
func NewTurso(url, authToken string) (*Turso, error) {
	connStr := url
	if authToken != "" {
		connStr = fmt.Sprintf("%s?authToken=%s", url, authToken)
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Turso: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping Turso: %w", err)
	}

	return &Turso{db: db}, nil
}

// Close closes the Turso connection
func (t *Turso) Close() error {
	return t.db.Close()
}

// Name identifies the store in logs.
func (t *Turso) Name() string { return "turso" }

// Migrate creates the required tables if they don't exist
func (t *Turso) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			match_date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			map_name TEXT NOT NULL,
			match_type TEXT NOT NULL,
			winning_team TEXT NOT NULL,
			found_winner INTEGER NOT NULL,
			end_frame INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS match_players (
			match_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			nick TEXT NOT NULL,
			team INTEGER NOT NULL,
			faction TEXT NOT NULL,
			placement INTEGER NOT NULL,
			PRIMARY KEY (match_id, number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_date ON matches(match_date)`,
		`CREATE INDEX IF NOT EXISTS idx_match_players_nick ON match_players(nick)`,
	}

	for _, query := range queries {
		if _, err := t.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Save implements the collector sink. Matches already present are skipped.
func (t *Turso) Save(ctx context.Context, r *summary.Report) error {
	m := FromReport(r)

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO matches (match_id, match_date, start_time, map_name, match_type, winning_team, found_winner, end_frame)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.MatchID, m.Date, m.Start, m.MapName, m.MatchType, m.WinningTeam, m.FoundWinner, m.EndFrame)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}

	for _, p := range m.Players {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO match_players (match_id, number, nick, team, faction, placement)
			VALUES (?, ?, ?, ?, ?, ?)
		`, m.MatchID, p.Number, p.Nick, p.Team, p.Faction, p.Placement)
		if err != nil {
			return fmt.Errorf("failed to insert player: %w", err)
		}
	}
	return tx.Commit()
}

// MatchExists checks if a match is already stored.
func (t *Turso) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var one int
	err := t.db.QueryRowContext(ctx, `SELECT 1 FROM matches WHERE match_id = ?`, matchID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CountMatches returns the total number of matches.
func (t *Turso) CountMatches(ctx context.Context) (int, error) {
	var count int
	err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&count)
	return count, err
}
