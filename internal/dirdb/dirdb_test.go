package dirdb

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"genrep/internal/gentool"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "dirs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreDayAndMissingDates(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := date(2024, 3, 16).Add(15 * time.Hour)

	missing, err := db.MissingDates(ctx, date(2024, 3, 14), date(2024, 3, 16), now)
	if err != nil {
		t.Fatalf("MissingDates: %v", err)
	}
	if len(missing) != 3 {
		t.Fatalf("expected 3 missing days, got %v", missing)
	}

	if err := db.StoreDay(ctx, date(2024, 3, 15), []string{"Alpha_1A", "Bravo_2B"}, now); err != nil {
		t.Fatalf("StoreDay past: %v", err)
	}
	if err := db.StoreDay(ctx, date(2024, 3, 16), []string{"Alpha_1A"}, now); err != nil {
		t.Fatalf("StoreDay today: %v", err)
	}

	missing, err = db.MissingDates(ctx, date(2024, 3, 14), date(2024, 3, 16), now)
	if err != nil {
		t.Fatalf("MissingDates: %v", err)
	}
	// today stays incomplete
	if len(missing) != 2 || !missing[0].Equal(date(2024, 3, 14)) || !missing[1].Equal(date(2024, 3, 16)) {
		t.Errorf("missing = %v", missing)
	}
}

func TestStoreDay_RefreshesToday(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	today := date(2024, 3, 16)
	now := today.Add(10 * time.Hour)

	if err := db.StoreDay(ctx, today, []string{"Alpha_1A"}, now); err != nil {
		t.Fatal(err)
	}
	if err := db.StoreDay(ctx, today, []string{"Alpha_1A", "Charlie_3C"}, now); err != nil {
		t.Fatal(err)
	}
	days, err := db.UserDays(ctx, []string{"Charlie_3C"}, today, today)
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 1 {
		t.Errorf("expected refreshed listing to include Charlie, got %v", days)
	}

	// once the day is over the listing is final
	later := now.Add(24 * time.Hour)
	if err := db.StoreDay(ctx, today, []string{"Delta_4D"}, later); err != nil {
		t.Fatal(err)
	}
	if err := db.StoreDay(ctx, today, []string{"Echo_5E"}, later); err != nil {
		t.Fatal(err)
	}
	hits, err := db.SearchUsers(ctx, today, today, "Echo Charlie")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected complete day to ignore later listings, got %v", hits)
	}
	hits, err = db.SearchUsers(ctx, today, today, "Delta")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("expected Delta from the completing listing, got %v", hits)
	}
}

func TestStoreDay_IgnoresFuture(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := date(2024, 3, 16)

	if err := db.StoreDay(ctx, date(2024, 3, 17), []string{"Alpha_1A"}, now); err != nil {
		t.Fatal(err)
	}
	days, err := db.UserDays(ctx, []string{"Alpha_1A"}, date(2024, 3, 1), date(2024, 3, 31))
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 0 {
		t.Errorf("expected no rows for a future day, got %v", days)
	}
}

func TestMissingDates_PurgesOldRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	old := date(2024, 1, 1)

	if err := db.StoreDay(ctx, old, []string{"Alpha_1A"}, old.AddDate(0, 0, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MissingDates(ctx, old, old, old.AddDate(0, 0, 80)); err != nil {
		t.Fatal(err)
	}
	days, err := db.UserDays(ctx, []string{"Alpha_1A"}, old, old)
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 0 {
		t.Errorf("expected purged rows, got %v", days)
	}
}

func TestSearchUsers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := date(2024, 3, 20)

	db.StoreDay(ctx, date(2024, 3, 14), []string{"Alpha_1A", "Alfred_9Z"}, now)
	db.StoreDay(ctx, date(2024, 3, 15), []string{"Alpha_1A", "Bravo_2B"}, now)
	db.StoreDay(ctx, date(2024, 3, 16), []string{"Alpha_1A"}, now)

	hits, err := db.SearchUsers(ctx, date(2024, 3, 14), date(2024, 3, 16), "Al")
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %v", hits)
	}
	if hits[0].User != "Alpha_1A" || hits[0].Days != 3 {
		t.Errorf("top hit = %+v", hits[0])
	}

	hits, _ = db.SearchUsers(ctx, date(2024, 3, 15), date(2024, 3, 15), "alf bravo")
	if len(hits) != 1 || hits[0].User != "Bravo_2B" {
		t.Errorf("date-bounded search = %v", hits)
	}

	days, err := db.UserDays(ctx, []string{"Alpha_1A", "Bravo_2B"}, date(2024, 3, 15), date(2024, 3, 16))
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 3 || days[0].User != "Alpha_1A" || !days[1].Day.Equal(date(2024, 3, 16)) || days[2].User != "Bravo_2B" {
		t.Errorf("UserDays = %v", days)
	}
}

type fakeLister struct {
	mu    sync.Mutex
	calls int
	days  map[string][]string
}

func (f *fakeLister) ListUserDirs(ctx context.Context, day time.Time) ([]string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	users, ok := f.days[day.Format(dateLayout)]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", day.Format(dateLayout), gentool.ErrNotFound)
	}
	return users, nil
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := date(2024, 3, 16).Add(8 * time.Hour)
	l := &fakeLister{days: map[string][]string{
		"2024-03-14": {"Alpha_1A"},
		"2024-03-15": {"Bravo_2B"},
		"2024-03-16": {},
	}}

	res, err := db.Refresh(ctx, l, date(2024, 3, 13), date(2024, 3, 16), now, 2)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(res.Stored) != 2 || len(res.NotFound) != 1 || len(res.Failed) != 1 {
		t.Errorf("result = %+v", res)
	}

	// completed days are not listed again
	l.calls = 0
	if _, err := db.Refresh(ctx, l, date(2024, 3, 14), date(2024, 3, 15), now, 2); err != nil {
		t.Fatal(err)
	}
	if l.calls != 0 {
		t.Errorf("expected no listing calls, got %d", l.calls)
	}
}
