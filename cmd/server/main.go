package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"genrep/internal/collector"
	"genrep/internal/gentool"
	"genrep/internal/server"
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

	setupLogging()
	if envLoaded != "" {
		log.Info().Str("path", envLoaded).Msg("loaded .env")
	}

	reg := versions.NewRegistry()
	if vdir := os.Getenv("VERSIONS_DIR"); vdir != "" {
		if err := reg.LoadDir(os.DirFS(vdir), "."); err != nil {
			log.Fatal().Err(err).Msg("failed to load version tables")
		}
	}

	var sinks []collector.Sink
	if dataDir := strings.Trim(os.Getenv("BLOB_STORAGE_PATH"), "\""); dataDir != "" {
		rotator, err := storage.NewFileRotator(dataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create file rotator")
		}
		defer rotator.Close()
		sinks = append(sinks, rotator)
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pg, err := store.NewPostgres(context.Background(), dbURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pg.Close()
		if err := pg.Migrate(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		sinks = append(sinks, pg)
	}

	srv := server.New(server.Config{
		Versions:   reg,
		Downloader: gentool.NewClient(gentool.WithBaseURL(os.Getenv("GENTOOL_BASE_URL"))),
		Sinks:      sinks,
	})
	defer srv.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	drained := make(chan struct{})
	collector.SetupSignalHandler(func(context.Context) {
		defer close(drained)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Close()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	})

	log.Info().Str("addr", "http://localhost:"+port).Msg("server starting")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	<-drained
}

func setupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
