// Package server exposes the replay parser over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"genrep/internal/collector"
	"genrep/internal/parser"
	"genrep/internal/replay"
	"genrep/internal/versions"
)

const (
	// Replays are small; the largest seen are a few megabytes.
	maxUploadBytes = 32 << 20

	maxJobURLs   = 1000
	writeTimeout = 10 * time.Second
)

type Server struct {
	mux      *http.ServeMux
	jobs     *JobStore
	cfg      Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

type Config struct {
	Versions    *versions.Registry
	Downloader  collector.Downloader
	Sinks       []collector.Sink
	WorkerCount int
}

func New(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		mux:    http.NewServeMux(),
		jobs:   NewJobStore(),
		cfg:    cfg,
		logger: log.With().Str("component", "server").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close cancels running jobs.
func (s *Server) Close() {
	s.cancel()
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/parse", s.handleParse)
	s.mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /api/jobs/{id}/ws", s.handleJobFeed)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file too large or invalid multipart form"})
		return
	}

	file, _, err := r.FormFile("replay")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing 'replay' file field"})
		return
	}
	defer file.Close()

	report, err := parser.ParseReader(file,
		parser.WithVersions(s.cfg.Versions),
		parser.WithLogger(log.Logger),
		parser.WithSourceURL(r.FormValue("source")))
	if err != nil {
		var fe *replay.FormatError
		if errors.As(err, &fe) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error().Err(err).Msg("parse failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type createJobRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if len(req.URLs) == 0 || len(req.URLs) > maxJobURLs {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "urls must hold 1 to 1000 replay URLs"})
		return
	}

	jobs := make([]collector.Job, 0, len(req.URLs))
	for _, u := range req.URLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "not an http URL: " + u})
			return
		}
		jobs = append(jobs, collector.Job{URL: u})
	}

	id := uuid.NewString()
	job := s.jobs.Create(id, len(jobs))
	go s.runJob(id, jobs)

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) runJob(id string, jobs []collector.Job) {
	s.logger.Info().Str("id", id).Int("replays", len(jobs)).Msg("job started")

	c := collector.New(collector.Config{
		WorkerCount: s.cfg.WorkerCount,
		Versions:    s.cfg.Versions,
		Downloader:  s.cfg.Downloader,
		Progress: func(done, _ int, res collector.JobResult) {
			s.jobs.Progress(id, done, res)
		},
	}, s.cfg.Sinks...)

	results, stats, err := c.Run(s.ctx, jobs)
	s.jobs.Finish(id, results, stats, err)

	if err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("job aborted")
		return
	}
	s.logger.Info().Str("id", id).Int("parsed", stats.Parsed).Int("failed", stats.Failed).Msg("job finished")
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleJobFeed streams progress events over a websocket. The first message
// is the job snapshot; the connection closes after the finished event.
func (s *Server) handleJobFeed(w http.ResponseWriter, r *http.Request) {
	job, events, unsubscribe, ok := s.jobs.Subscribe(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reader drains control frames and notices the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(v)
	}

	if err := send(job); err != nil {
		return
	}
	for {
		select {
		case ev, open := <-events:
			if !open {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
					time.Now().Add(writeTimeout))
				return
			}
			if err := send(ev); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
