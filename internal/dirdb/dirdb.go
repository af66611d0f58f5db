// Package dirdb caches which users uploaded replays on which day, so the
// remote archive only has to be listed once per day.
package dirdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"genrep/internal/gentool"
)

// Retention is how long directory rows are kept. The archive itself keeps
// roughly ten weeks.
const Retention = 71 * 24 * time.Hour

const dateLayout = "2006-01-02"

// DB is the local directory cache.
type DB struct {
	db *sql.DB
}

// UserCount is a search hit with the number of days the user uploaded.
type UserCount struct {
	User string `json:"user"`
	Days int    `json:"days"`
}

// UserDay is one directory of one user.
type UserDay struct {
	User string    `json:"user"`
	Day  time.Time `json:"day"`
}

// DefaultPath returns the cache location in the user's config directory.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}

	dir := filepath.Join(configDir, "GenRep")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create db directory: %w", err)
	}
	return filepath.Join(dir, "player_directories.db"), nil
}

// Open opens or creates the cache at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	d := &DB{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// init creates the schema
func (d *DB) init() error {
	schema := `
		CREATE TABLE IF NOT EXISTS directories (
			user_id TEXT,
			date TEXT,
			PRIMARY KEY (user_id, date)
		);

		CREATE TABLE IF NOT EXISTS status (
			date TEXT CHECK(length(date) = 10) PRIMARY KEY,
			is_complete INTEGER CHECK(is_complete IN (0, 1))
		);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func datesBetween(start, end time.Time) []string {
	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(dateLayout))
	}
	return out
}

// MissingDates purges rows past retention and returns the days in
// [start, end] that have no complete listing yet.
func (d *DB) MissingDates(ctx context.Context, start, end, now time.Time) ([]time.Time, error) {
	cutoff := now.UTC().Add(-Retention).Format(dateLayout)
	if _, err := d.db.ExecContext(ctx, "DELETE FROM directories WHERE date < ?", cutoff); err != nil {
		return nil, fmt.Errorf("failed to purge old directories: %w", err)
	}

	dates := datesBetween(start, end)
	if len(dates) == 0 {
		return nil, nil
	}

	args := make([]any, len(dates))
	for i, s := range dates {
		args[i] = s
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(dates)), ",")
	rows, err := d.db.QueryContext(ctx,
		"SELECT date FROM status WHERE is_complete = 1 AND date IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query status: %w", err)
	}
	defer rows.Close()

	complete := make(map[string]bool)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		complete[s] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []time.Time
	for _, s := range dates {
		if !complete[s] {
			t, _ := time.Parse(dateLayout, s)
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// StoreDay records the users listed for day. Today's listing is still
// growing, so it is stored incomplete and replaced on the next refresh.
// A past day is written once and then marked complete.
func (d *DB) StoreDay(ctx context.Context, day time.Time, users []string, today time.Time) error {
	date := day.Format(dateLayout)
	todayStr := today.UTC().Format(dateLayout)
	if date > todayStr {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var complete int
	err = tx.QueryRowContext(ctx, "SELECT is_complete FROM status WHERE date = ?", date).Scan(&complete)
	known := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read status: %w", err)
	}
	if known && complete == 1 {
		return nil
	}

	if known {
		if _, err := tx.ExecContext(ctx, "DELETE FROM directories WHERE date = ?", date); err != nil {
			return fmt.Errorf("failed to clear %s: %w", date, err)
		}
	}

	isComplete := 0
	if date < todayStr {
		isComplete = 1
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO status (date, is_complete) VALUES (?, ?) ON CONFLICT(date) DO UPDATE SET is_complete = excluded.is_complete",
		date, isComplete); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO directories (user_id, date) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, u, date); err != nil {
			return fmt.Errorf("failed to insert %s: %w", u, err)
		}
	}
	return tx.Commit()
}

// Lister lists the user directories of one archive day.
type Lister interface {
	ListUserDirs(ctx context.Context, day time.Time) ([]string, error)
}

// RefreshResult reports what a refresh fetched.
type RefreshResult struct {
	Stored   []time.Time
	NotFound []time.Time
	Failed   []time.Time
}

// Refresh lists every missing day in [start, end] from the archive and
// stores the results. Days the archive does not have are reported, not
// treated as errors.
func (d *DB) Refresh(ctx context.Context, l Lister, start, end, now time.Time, workers int) (RefreshResult, error) {
	var res RefreshResult
	missing, err := d.MissingDates(ctx, start, end, now)
	if err != nil {
		return res, err
	}
	if workers <= 0 {
		workers = 10
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, day := range missing {
		g.Go(func() error {
			users, err := l.ListUserDirs(gctx, day)
			if err != nil {
				mu.Lock()
				defer mu.Unlock()
				if errors.Is(err, gentool.ErrNotFound) {
					res.NotFound = append(res.NotFound, day)
				} else {
					log.Warn().Str("component", "dirdb").Err(err).Time("day", day).Msg("listing failed")
					res.Failed = append(res.Failed, day)
				}
				return nil
			}
			if len(users) == 0 {
				mu.Lock()
				res.Failed = append(res.Failed, day)
				mu.Unlock()
				return nil
			}
			if err := d.StoreDay(gctx, day, users, now); err != nil {
				return err
			}
			mu.Lock()
			res.Stored = append(res.Stored, day)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	return res, err
}

// SearchUsers finds users whose id contains any whitespace separated token
// of query, with the number of days each uploaded in [start, end].
func (d *DB) SearchUsers(ctx context.Context, start, end time.Time, query string) ([]UserCount, error) {
	var out []UserCount
	for _, tok := range strings.Fields(query) {
		rows, err := d.db.QueryContext(ctx, `
			SELECT user_id, COUNT(*) AS days
			FROM directories
			WHERE date BETWEEN ? AND ?
			AND user_id LIKE ?
			GROUP BY user_id
			ORDER BY days DESC
		`, start.Format(dateLayout), end.Format(dateLayout), "%"+tok+"%")
		if err != nil {
			return nil, fmt.Errorf("failed to search users: %w", err)
		}
		for rows.Next() {
			var uc UserCount
			if err := rows.Scan(&uc.User, &uc.Days); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, uc)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UserDays returns the days each of users uploaded in [start, end], in user
// then date order.
func (d *DB) UserDays(ctx context.Context, users []string, start, end time.Time) ([]UserDay, error) {
	var out []UserDay
	for _, u := range users {
		rows, err := d.db.QueryContext(ctx, `
			SELECT user_id, date
			FROM directories
			WHERE user_id = ?
			AND date BETWEEN ? AND ?
			ORDER BY date
		`, u, start.Format(dateLayout), end.Format(dateLayout))
		if err != nil {
			return nil, fmt.Errorf("failed to query user days: %w", err)
		}
		for rows.Next() {
			var ud UserDay
			var date string
			if err := rows.Scan(&ud.User, &date); err != nil {
				rows.Close()
				return nil, err
			}
			ud.Day, _ = time.Parse(dateLayout, date)
			out = append(out, ud)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
