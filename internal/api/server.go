// Package api exposes the HTTP interface for the scrape service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/citescout/citescout/internal/config"
	queuememory "github.com/citescout/citescout/internal/queue/memory"
	"github.com/citescout/citescout/internal/scholar"
)

// Enqueuer accepts work without blocking; a full queue is a backpressure
// signal surfaced to the client as 503.
type Enqueuer interface {
	TryEnqueue(item scholar.QueueItem) error
}

// ArtifactReader serves rendered artifacts for backends that are not
// directly addressable (memory, local disk).
type ArtifactReader interface {
	GetObject(path string) ([]byte, bool)
}

// Server wires HTTP handlers to the job store and queue.
type Server struct {
	router    chi.Router
	jobStore  scholar.JobStore
	queue     Enqueuer
	idGen     scholar.IDGenerator
	clock     scholar.Clock
	artifacts ArtifactReader
	registry  *prometheus.Registry
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The artifact
// reader and registry may be nil; the matching endpoints then return 404 or
// serve the default gatherer.
func NewServer(
	jobStore scholar.JobStore,
	queue Enqueuer,
	idGen scholar.IDGenerator,
	clock scholar.Clock,
	artifacts ArtifactReader,
	registry *prometheus.Registry,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:  jobStore,
		queue:     queue,
		idGen:     idGen,
		clock:     clock,
		artifacts: artifacts,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
	}

	requestTimeout := time.Duration(cfg.Server.RequestTimeoutS) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler())
	r.Get("/artifacts/*", s.getArtifact)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/v1", func(r chi.Router) {
			r.Route("/scrapes", func(r chi.Router) {
				r.Post("/", s.submitScrape)
				r.Get("/{job_id}", s.getScrape)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The job store is the only hard dependency at request time.
	if _, err := s.jobStore.GetJob(r.Context(), "readyz-probe"); err != nil &&
		!errors.Is(err, scholar.ErrJobNotFound) {
		writeError(w, http.StatusServiceUnavailable, "job store unavailable", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, s.logger)
}

func (s *Server) metricsHandler() http.Handler {
	if s.registry != nil {
		return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

type submitRequest struct {
	Author    string `json:"author"`
	MaxPapers *int   `json:"max_papers"`
}

func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", s.logger)
		return
	}
	ref, err := scholar.ParseAuthorRef(req.Author)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	maxPapers, err := s.resolveMaxPapers(req.MaxPapers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate job id", s.logger)
		return
	}
	now := s.clock.Now()
	job := scholar.Job{
		ID:        jobID,
		Status:    scholar.JobStatusQueued,
		AuthorRef: ref,
		MaxPapers: maxPapers,
		Submitted: now,
		UpdatedAt: now,
	}
	if err := s.jobStore.CreateJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, "create job", s.logger)
		return
	}

	item := scholar.QueueItem{
		JobID:     jobID,
		Ref:       ref,
		MaxPapers: maxPapers,
		Submitted: now.Unix(),
	}
	if err := s.queue.TryEnqueue(item); err != nil {
		if errors.Is(err, queuememory.ErrQueueFull) {
			s.abandonJob(r.Context(), jobID, "queue full")
			writeError(w, http.StatusServiceUnavailable, "queue full, retry later", s.logger)
			return
		}
		s.abandonJob(r.Context(), jobID, err.Error())
		writeError(w, http.StatusInternalServerError, "enqueue job", s.logger)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID}, s.logger)
}

func (s *Server) getScrape(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scholar.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", s.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "fetch job", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, job, s.logger)
}

func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		writeError(w, http.StatusNotFound, "artifact serving disabled", s.logger)
		return
	}
	path := chi.URLParam(r, "*")
	if path == "" || strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "invalid artifact path", s.logger)
		return
	}
	payload, ok := s.artifacts.GetObject(path)
	if !ok {
		writeError(w, http.StatusNotFound, "artifact not found", s.logger)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(path))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.logger.Error("artifact write failed", zap.Error(err))
	}
}

func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) resolveMaxPapers(requested *int) (int, error) {
	if requested == nil {
		return s.cfg.Scrape.MaxPapersDefault, nil
	}
	n := *requested
	if n <= 0 {
		return 0, errors.New("max_papers must be positive")
	}
	if limit := s.cfg.Scrape.MaxPapersLimit; limit > 0 && n > limit {
		return 0, fmt.Errorf("max_papers exceeds limit of %d", limit)
	}
	return n, nil
}

// abandonJob marks a job that never reached the queue as failed so it does
// not sit in queued forever.
func (s *Server) abandonJob(ctx context.Context, jobID, reason string) {
	jerr := &scholar.JobError{Code: scholar.ErrCodeInternal, Message: "not enqueued: " + reason}
	if err := s.jobStore.UpdateJobStatus(ctx, jobID, scholar.JobStatusFailed, jerr, nil); err != nil {
		s.logger.Error("abandon job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error", logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "unauthorized"}, zap.NewNop())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *zap.Logger) {
	writeJSON(w, status, map[string]string{"error": msg}, logger)
}
