package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"genrep/internal/collector"
	"genrep/internal/dirdb"
	"genrep/internal/gentool"
	"genrep/internal/parser"
	"genrep/internal/summary"
	"genrep/internal/versions"
)

// App struct
type App struct {
	ctx      context.Context
	versions *versions.Registry
	archive  *gentool.Client

	dirsMu sync.Mutex
	dirs   *dirdb.DB
}

// ReplayEntry is one replay file in a local directory listing.
type ReplayEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     string `json:"size"`
	Modified string `json:"modified"`
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{
		versions: versions.NewRegistry(),
		archive:  gentool.NewClient(gentool.WithBaseURL(os.Getenv("GENTOOL_BASE_URL"))),
	}
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	if vdir := os.Getenv("VERSIONS_DIR"); vdir != "" {
		if err := a.versions.LoadDir(os.DirFS(vdir), "."); err != nil {
			log.Warn().Err(err).Msg("failed to load version tables")
		}
	}

	// Open the directory cache in the background; remote search waits for it
	go func() {
		if _, err := a.directoryDB(); err != nil {
			log.Warn().Err(err).Msg("directory cache unavailable")
			a.emitStatus(false, "Remote search unavailable")
			return
		}
		a.emitStatus(true, "Ready")
	}()
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	a.dirsMu.Lock()
	defer a.dirsMu.Unlock()
	if a.dirs != nil {
		a.dirs.Close()
		a.dirs = nil
	}
}

func (a *App) directoryDB() (*dirdb.DB, error) {
	a.dirsMu.Lock()
	defer a.dirsMu.Unlock()
	if a.dirs != nil {
		return a.dirs, nil
	}

	path := os.Getenv("DIRECTORY_DB")
	if path == "" {
		var err error
		if path, err = dirdb.DefaultPath(); err != nil {
			return nil, err
		}
	}
	db, err := dirdb.Open(path)
	if err != nil {
		return nil, err
	}
	a.dirs = db
	return db, nil
}

// OpenReplay parses a local replay and emits it to the frontend
func (a *App) OpenReplay(path string) (*summary.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay: %w", err)
	}
	report, err := parser.Parse(data, parser.WithVersions(a.versions), parser.WithLogger(log.Logger))
	if err != nil {
		a.emitError(path, err)
		return nil, err
	}
	a.emitLoaded(path, report)
	return report, nil
}

// OpenRemoteReplay downloads and parses an archive replay
func (a *App) OpenRemoteReplay(url string) (*summary.Report, error) {
	data, err := a.archive.Download(a.ctx, url)
	if err != nil {
		a.emitError(url, err)
		return nil, err
	}
	report, err := parser.Parse(data, parser.WithVersions(a.versions), parser.WithSourceURL(url), parser.WithLogger(log.Logger))
	if err != nil {
		a.emitError(url, err)
		return nil, err
	}
	a.emitLoaded(url, report)
	return report, nil
}

// ListDirectory lists the replays in dir, newest first
func (a *App) ListDirectory(dir string) ([]ReplayEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	type entry struct {
		ReplayEntry
		mod time.Time
	}
	var files []entry
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".rep") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, entry{
			ReplayEntry: ReplayEntry{
				Name:     e.Name(),
				Path:     filepath.Join(dir, e.Name()),
				Size:     humanize.Bytes(uint64(info.Size())),
				Modified: humanize.Time(info.ModTime()),
			},
			mod: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })

	out := make([]ReplayEntry, len(files))
	for i, f := range files {
		out[i] = f.ReplayEntry
	}
	return out, nil
}

// RenameReplay renames a local replay to its suggested name
func (a *App) RenameReplay(path string) (string, error) {
	report, err := a.OpenReplay(path)
	if err != nil {
		return path, err
	}
	return collector.Rename(path, report)
}

// SearchRemoteUsers refreshes the directory cache for the last days and
// searches it for users matching query
func (a *App) SearchRemoteUsers(query string, days int) ([]dirdb.UserCount, error) {
	db, err := a.directoryDB()
	if err != nil {
		return nil, err
	}
	start, end := dayRange(days)

	a.emitRefresh("Refreshing archive listings...")
	res, err := db.Refresh(a.ctx, a.archive, start, end, time.Now().UTC(), collector.DefaultWorkerCount)
	if err != nil {
		return nil, err
	}
	a.emitRefresh(fmt.Sprintf("%d new days cached", len(res.Stored)))

	return db.SearchUsers(a.ctx, start, end, query)
}

// ListRemoteReplays lists every archive replay of user in the last days
func (a *App) ListRemoteReplays(user string, days int) ([]gentool.ReplayFile, error) {
	db, err := a.directoryDB()
	if err != nil {
		return nil, err
	}
	start, end := dayRange(days)

	userDays, err := db.UserDays(a.ctx, []string{user}, start, end)
	if err != nil {
		return nil, err
	}

	var files []gentool.ReplayFile
	for _, ud := range userDays {
		list, err := a.archive.ListReplays(a.ctx, ud.Day, ud.User)
		if err != nil {
			log.Warn().Err(err).Str("user", user).Time("day", ud.Day).Msg("listing failed")
			continue
		}
		files = append(files, list...)
	}
	return files, nil
}

// dayRange is [today - days + 1, today] in UTC, at least one day
func dayRange(days int) (time.Time, time.Time) {
	if days < 1 {
		days = 1
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	return end.AddDate(0, 0, -(days - 1)), end
}
