package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"genrep/internal/collector"
	"genrep/internal/dirdb"
	"genrep/internal/gentool"
	"genrep/internal/notify"
	"genrep/internal/storage"
	"genrep/internal/store"
	"genrep/internal/versions"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	envLoaded := ""
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			envLoaded = path
			break
		}
	}

	dir := flag.String("dir", "", "Parse every replay under this local directory")
	users := flag.String("users", "", "Space separated user name fragments to collect from the archive")
	from := flag.String("from", "", "First archive day (YYYY-MM-DD), default 7 days ago")
	to := flag.String("to", "", "Last archive day (YYYY-MM-DD), default today")
	workers := flag.Int("workers", collector.DefaultWorkerCount, "Parallel downloads and parses")
	refreshOnly := flag.Bool("refresh-only", false, "Only refresh the directory cache")
	compress := flag.Bool("compress", false, "Compress finished JSONL files to cold storage after the run")
	flag.Parse()

	setupLogging()
	if envLoaded != "" {
		log.Info().Str("path", envLoaded).Msg("loaded .env")
	} else {
		log.Info().Msg("no .env file found, using environment variables")
	}

	if *dir == "" && *users == "" && !*refreshOnly {
		fmt.Println("Usage:")
		fmt.Println("  collector -dir=./replays")
		fmt.Println("  collector -users='alpha bravo' [-from=2024-03-01] [-to=2024-03-15]")
		fmt.Println("  collector -refresh-only [-from=...] [-to=...]")
		fmt.Println()
		fmt.Println("Reports are written as JSONL under BLOB_STORAGE_PATH:")
		fmt.Println("  hot/   - Active writes")
		fmt.Println("  warm/  - Closed files")
		fmt.Println("  cold/  - Compressed archives")
		fmt.Println()
		fmt.Println("DATABASE_URL and TURSO_DATABASE_URL add database sinks when set.")
		os.Exit(1)
	}

	var webhook *notify.WebhookClient
	if u := os.Getenv("DISCORD_WEBHOOK_URL"); u != "" {
		webhook = notify.NewWebhookClient(u)
	}

	ctx := collector.SetupSignalHandler(nil)
	source := *dir
	if source == "" {
		source = "archive: " + *users
	}

	stats, err := run(ctx, config{
		dir:         *dir,
		users:       *users,
		from:        *from,
		to:          *to,
		workers:     *workers,
		refreshOnly: *refreshOnly,
		compress:    *compress,
	})
	stats.Source = source

	if err != nil {
		log.Error().Err(err).Msg("collection failed")
		if webhook != nil {
			if werr := webhook.SendRunFailed(context.Background(), source, err); werr != nil {
				log.Warn().Err(werr).Msg("failed to send webhook")
			}
		}
		os.Exit(1)
	}
	if webhook != nil && !*refreshOnly {
		if werr := webhook.SendRunSummary(context.Background(), stats); werr != nil {
			log.Warn().Err(werr).Msg("failed to send webhook")
		}
	}
}

type config struct {
	dir         string
	users       string
	from, to    string
	workers     int
	refreshOnly bool
	compress    bool
}

func run(ctx context.Context, cfg config) (notify.RunStats, error) {
	var stats notify.RunStats

	client := gentool.NewClient(gentool.WithBaseURL(os.Getenv("GENTOOL_BASE_URL")))

	var jobs []collector.Job
	var err error
	if cfg.dir != "" {
		jobs, err = collector.LocalJobs(cfg.dir)
	} else {
		jobs, err = remoteJobs(ctx, client, cfg)
	}
	if err != nil || cfg.refreshOnly {
		return stats, err
	}
	log.Info().Int("replays", len(jobs)).Msg("jobs queued")

	// Get blob storage path from env (required)
	dataDir := strings.Trim(os.Getenv("BLOB_STORAGE_PATH"), "\"")
	if dataDir == "" {
		return stats, errors.New("BLOB_STORAGE_PATH environment variable not set")
	}
	rotator, err := storage.NewFileRotator(dataDir)
	if err != nil {
		return stats, fmt.Errorf("failed to create file rotator: %w", err)
	}
	defer func() {
		if err := rotator.Close(); err != nil {
			log.Error().Err(err).Msg("error closing rotator")
		}
	}()
	sinks := []collector.Sink{rotator}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pg, err := store.NewPostgres(ctx, dbURL)
		if err != nil {
			return stats, err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return stats, err
		}
		sinks = append(sinks, pg)
	}
	if tursoURL := os.Getenv("TURSO_DATABASE_URL"); tursoURL != "" {
		turso, err := store.NewTurso(tursoURL, os.Getenv("TURSO_AUTH_TOKEN"))
		if err != nil {
			return stats, err
		}
		defer turso.Close()
		if err := turso.Migrate(ctx); err != nil {
			return stats, err
		}
		sinks = append(sinks, turso)
	}

	reg := versions.NewRegistry()
	if vdir := os.Getenv("VERSIONS_DIR"); vdir != "" {
		if err := reg.LoadDir(os.DirFS(vdir), "."); err != nil {
			return stats, fmt.Errorf("failed to load version tables: %w", err)
		}
	}

	c := collector.New(collector.Config{
		WorkerCount: cfg.workers,
		Versions:    reg,
		Downloader:  client,
		Progress: func(done, total int, res collector.JobResult) {
			if done%100 == 0 || done == total {
				log.Info().Int("done", done).Int("total", total).Msg("progress")
			}
		},
	}, sinks...)

	_, runStats, err := c.Run(ctx, jobs)
	stats.Parsed = runStats.Parsed
	stats.Duplicates = runStats.Duplicates
	stats.Failed = runStats.Failed
	stats.Runtime = runStats.Runtime
	if err != nil {
		return stats, err
	}

	if cfg.compress {
		// close the hot file so it can be compressed with the rest
		if err := rotator.Close(); err != nil {
			return stats, err
		}
		n, err := rotator.CompressWarm()
		if err != nil {
			return stats, err
		}
		log.Info().Int("files", n).Msg("compressed to cold storage")
	}
	return stats, nil
}

func remoteJobs(ctx context.Context, client *gentool.Client, cfg config) ([]collector.Job, error) {
	now := time.Now().UTC()
	end := now.Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -7)
	var err error
	if cfg.from != "" {
		if start, err = time.Parse("2006-01-02", cfg.from); err != nil {
			return nil, fmt.Errorf("invalid -from: %w", err)
		}
	}
	if cfg.to != "" {
		if end, err = time.Parse("2006-01-02", cfg.to); err != nil {
			return nil, fmt.Errorf("invalid -to: %w", err)
		}
	}

	path := os.Getenv("DIRECTORY_DB")
	if path == "" {
		if path, err = dirdb.DefaultPath(); err != nil {
			return nil, err
		}
	}
	db, err := dirdb.Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	res, err := db.Refresh(ctx, client, start, end, now, cfg.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh directory cache: %w", err)
	}
	log.Info().
		Int("stored", len(res.Stored)).
		Int("notFound", len(res.NotFound)).
		Int("failed", len(res.Failed)).
		Msg("directory cache refreshed")
	if cfg.refreshOnly {
		return nil, nil
	}

	hits, err := db.SearchUsers(ctx, start, end, cfg.users)
	if err != nil {
		return nil, err
	}
	names := lo.Uniq(lo.Map(hits, func(h dirdb.UserCount, _ int) string { return h.User }))
	log.Info().Strs("users", names).Msg("matched users")

	days, err := db.UserDays(ctx, names, start, end)
	if err != nil {
		return nil, err
	}
	return collector.RemoteJobs(ctx, client, days)
}

func setupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
