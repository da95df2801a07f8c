// Package server exposes the pipeline over HTTP: a server-sent event stream per
// query plus JSON introspection of recent runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/pipeline"
	"github.com/aixgo-dev/searchflow/pkg/observability"
	"github.com/aixgo-dev/searchflow/pkg/security"
)

// Config holds the HTTP server settings
type Config struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	// WriteTimeout of 0 keeps long event streams open
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxQueryLength bounds accepted queries in bytes (default security.DefaultMaxQueryLength)
	MaxQueryLength int `yaml:"max_query_length"`

	// InjectionSensitivity is "off", "low", "medium" or "high" (default: off)
	InjectionSensitivity string `yaml:"injection_sensitivity"`

	// RateLimit is search requests per second per client; 0 disables limiting
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// Server serves search streams and run introspection
type Server struct {
	cfg     Config
	runner  *pipeline.Runner
	guard   *security.QueryGuard
	limiter *security.ClientLimiter
	logger  *zap.Logger
	handler http.Handler

	httpServer *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server over runner.
func New(runner *pipeline.Runner, cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		runner: runner,
		guard:  &security.QueryGuard{MaxLength: cfg.MaxQueryLength},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if sens := strings.ToLower(cfg.InjectionSensitivity); sens != "" && sens != "off" {
		s.guard.Detector = security.NewInjectionDetector(security.ParseSensitivity(sens))
	}
	if cfg.RateLimit > 0 {
		s.limiter = security.NewClientLimiter(cfg.RateLimit, cfg.RateBurst, 0)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /runs/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /runs/{id}/stages/{name}", s.handleStage)
	observability.Register(mux)

	s.handler = s.instrument(mux)
	return s
}

// Handler returns the root handler with request metrics and logging applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on cfg.Addr until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleSearch streams the events of one run as server-sent events.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(clientID(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	if err := s.guard.Check(query); err != nil {
		s.logger.Info("query rejected", zap.Error(err), zap.String("client", clientID(r)))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	run, events := s.runner.SubmitQuery(r.Context(), query)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Run-ID", run.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	broken := false
	for e := range events {
		if broken {
			continue
		}
		data, err := e.SSE()
		if err != nil {
			s.logger.Error("encode event", zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		if _, err := w.Write(data); err != nil {
			s.logger.Debug("client went away", zap.String("run_id", run.ID), zap.Error(err))
			broken = true
			continue
		}
		flusher.Flush()
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.runner.Runs()
	out := make([]pipeline.RunInfo, len(runs))
	for i, run := range runs {
		out[i] = run.Info()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run.Info())
}

type historyResponse struct {
	RunID    string           `json:"run_id"`
	Messages []*agent.Message `json:"messages"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs := run.History(limit)
	if msgs == nil {
		msgs = []*agent.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{RunID: run.ID, Messages: msgs})
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}

	st, err := run.StageState(r.PathValue("name"))
	if errors.Is(err, agent.ErrStageNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*pipeline.Run, bool) {
	id := r.PathValue("id")
	run, ok := s.runner.Run(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found: "+id)
	}
	return run, ok
}

// clientID identifies the caller for rate limiting.
func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
