package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"genrep/internal/dirdb"
	"genrep/internal/gentool"
)

// LocalJobs lists every .rep file under dir.
func LocalJobs(dir string) ([]Job, error) {
	var jobs []Job
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".rep") {
			jobs = append(jobs, Job{Path: path})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Path < jobs[j].Path })
	return jobs, nil
}

// ReplayLister lists the replay files of one user directory.
type ReplayLister interface {
	ListReplays(ctx context.Context, day time.Time, user string) ([]gentool.ReplayFile, error)
}

// RemoteJobs lists the replay files of every user day. Directories that
// disappeared from the archive are skipped.
func RemoteJobs(ctx context.Context, l ReplayLister, days []dirdb.UserDay) ([]Job, error) {
	var jobs []Job
	for _, ud := range days {
		files, err := l.ListReplays(ctx, ud.Day, ud.User)
		if errors.Is(err, gentool.ErrNotFound) {
			log.Debug().Str("component", "collector").Str("user", ud.User).Time("day", ud.Day).Msg("directory gone")
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			jobs = append(jobs, Job{URL: f.URL})
		}
	}
	return jobs, nil
}
