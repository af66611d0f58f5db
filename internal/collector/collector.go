// Package collector parses replays in bulk and hands the reports to sinks.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"genrep/internal/parser"
	"genrep/internal/summary"
	"genrep/internal/versions"
)

const (
	// DefaultWorkerCount matches the size of the archive download pool.
	DefaultWorkerCount = 10

	// Bloom filter sizing for match id deduplication
	expectedMatches = 500000
	falsePositive   = 0.001
)

// Job is one replay to process. Exactly one of Path and URL is set.
type Job struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

func (j Job) String() string {
	if j.URL != "" {
		return j.URL
	}
	return j.Path
}

// JobResult is the outcome of one job.
type JobResult struct {
	Job       Job             `json:"job"`
	Report    *summary.Report `json:"report,omitempty"`
	Duplicate bool            `json:"duplicate,omitempty"`
	Err       error           `json:"-"`
	Error     string          `json:"error,omitempty"`
}

// Sink receives every unique report.
type Sink interface {
	Name() string
	Save(ctx context.Context, report *summary.Report) error
}

// Downloader fetches remote replay files.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// ProgressFunc is called after every finished job.
type ProgressFunc func(done, total int, res JobResult)

// Config holds collector settings.
type Config struct {
	WorkerCount int
	Versions    *versions.Registry
	Downloader  Downloader
	Progress    ProgressFunc
}

// Stats counts the results of a run.
type Stats struct {
	Parsed     int           `json:"parsed"`
	Duplicates int           `json:"duplicates"`
	Failed     int           `json:"failed"`
	Runtime    time.Duration `json:"runtime"`
}

// Collector runs jobs on a bounded worker pool.
type Collector struct {
	cfg   Config
	sinks []Sink

	seen   *bloom.BloomFilter
	seenMu sync.Mutex
}

// New creates a collector writing to sinks.
func New(cfg Config, sinks ...Sink) *Collector {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	return &Collector{
		cfg:   cfg,
		sinks: sinks,
		seen:  bloom.NewWithEstimates(expectedMatches, falsePositive),
	}
}

// Run processes jobs and returns one result per job, in job order. Job
// failures are recorded in the results; only cancellation stops the run.
func (c *Collector) Run(ctx context.Context, jobs []Job) ([]JobResult, Stats, error) {
	start := time.Now()
	results := make([]JobResult, len(jobs))

	var (
		mu    sync.Mutex
		done  int
		stats Stats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.WorkerCount)
	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := c.process(gctx, job)
			results[i] = res

			mu.Lock()
			done++
			switch {
			case res.Err != nil:
				stats.Failed++
			case res.Duplicate:
				stats.Duplicates++
			default:
				stats.Parsed++
			}
			n := done
			if c.cfg.Progress != nil {
				c.cfg.Progress(n, len(jobs), res)
			}
			mu.Unlock()

			if res.Err != nil && errors.Is(res.Err, context.Canceled) {
				return res.Err
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	stats.Runtime = time.Since(start)
	log.Info().
		Str("component", "collector").
		Int("parsed", stats.Parsed).
		Int("duplicates", stats.Duplicates).
		Int("failed", stats.Failed).
		Dur("runtime", stats.Runtime).
		Msg("run finished")
	return results, stats, err
}

func (c *Collector) process(ctx context.Context, job Job) JobResult {
	res := JobResult{Job: job}
	fail := func(err error) JobResult {
		res.Err = err
		res.Error = err.Error()
		log.Warn().Str("component", "collector").Str("job", job.String()).Err(err).Msg("job failed")
		return res
	}

	data, err := c.fetch(ctx, job)
	if err != nil {
		return fail(err)
	}

	opts := []parser.Option{parser.WithVersions(c.cfg.Versions), parser.WithLogger(log.Logger)}
	if job.URL != "" {
		opts = append(opts, parser.WithSourceURL(job.URL))
	}
	report, err := parser.Parse(data, opts...)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", job, err))
	}
	res.Report = report

	if c.markSeen(report.MatchID) {
		res.Duplicate = true
		return res
	}

	for _, s := range c.sinks {
		if err := s.Save(ctx, report); err != nil {
			return fail(fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	return res
}

func (c *Collector) fetch(ctx context.Context, job Job) ([]byte, error) {
	if job.URL == "" {
		data, err := os.ReadFile(job.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read replay: %w", err)
		}
		return data, nil
	}
	if c.cfg.Downloader == nil {
		return nil, fmt.Errorf("%s: no downloader configured", job.URL)
	}
	return c.cfg.Downloader.Download(ctx, job.URL)
}

// markSeen records id and reports whether it was already recorded.
func (c *Collector) markSeen(id string) bool {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	if c.seen.TestString(id) {
		return true
	}
	c.seen.AddString(id)
	return false
}
