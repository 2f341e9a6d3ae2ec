package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"vocsched/internal/config"
	appLog "vocsched/internal/log"
	"vocsched/internal/metrics"
	"vocsched/internal/pipeline"
)

// RefreshFunc runs the pipeline once and publishes the result.
type RefreshFunc func(ctx context.Context) error

// Server serves the last published schedule files.
type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	metrics *metrics.Metrics
	refresh RefreshFunc

	mu      sync.RWMutex
	current *pipeline.Artifacts
	lastErr error
}

// NewServer builds the routes. m and refresh may be nil.
func NewServer(cfg *config.Config, m *metrics.Metrics, refresh RefreshFunc) *Server {
	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		metrics: m,
		refresh: refresh,
	}
	s.registerRoutes()
	return s
}

// Handler returns the routes, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Publish replaces the served artifacts.
func (s *Server) Publish(a *pipeline.Artifacts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = a
	s.lastErr = nil
}

// Fail records a failed run. The previous artifacts stay published.
func (s *Server) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

func (s *Server) snapshot() (*pipeline.Artifacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.lastErr
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware protects every path except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="vocsched", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /schedule.json", s.artifact("application/json; charset=utf-8", func(a *pipeline.Artifacts) []byte { return a.JSON }))
	s.mux.HandleFunc("GET /schedule.xml", s.artifact("application/xml; charset=utf-8", func(a *pipeline.Artifacts) []byte { return a.XML }))
	s.mux.HandleFunc("GET /schedule.ics", s.artifact("text/calendar; charset=utf-8", func(a *pipeline.Artifacts) []byte { return a.ICS }))
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// artifact serves one rendered file; conditional requests are answered
// from the generation time.
func (s *Server) artifact(contentType string, pick func(*pipeline.Artifacts) []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, _ := s.snapshot()
		if a == nil {
			http.Error(w, "schedule not generated yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", contentType)
		http.ServeContent(w, r, r.URL.Path, a.GeneratedAt, bytes.NewReader(pick(a)))
	}
}

type rejectedEvent struct {
	Source string    `json:"source"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	Error  string    `json:"error"`
}

type statusResponse struct {
	Ready        bool            `json:"ready"`
	GeneratedAt  *time.Time      `json:"generated_at,omitempty"`
	Acronym      string          `json:"acronym,omitempty"`
	Events       int             `json:"events"`
	Imported     int             `json:"imported"`
	Rejected     []rejectedEvent `json:"rejected"`
	Warnings     []string        `json:"warnings"`
	SourceErrors []string        `json:"source_errors"`
	LastError    string          `json:"last_error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	a, lastErr := s.snapshot()
	resp := statusResponse{
		Rejected:     []rejectedEvent{},
		Warnings:     []string{},
		SourceErrors: []string{},
	}
	if lastErr != nil {
		resp.LastError = lastErr.Error()
	}
	if a != nil {
		resp.Ready = true
		resp.GeneratedAt = &a.GeneratedAt
		resp.Acronym = a.Schedule.Acronym()
		resp.Events = a.Schedule.EventCount()
		resp.Imported = a.Imported
		for _, rj := range a.Rejected {
			resp.Rejected = append(resp.Rejected, rejectedEvent{Source: rj.Source, Title: rj.Title, Start: rj.Start, Error: rj.Err.Error()})
		}
		for _, wn := range a.Warnings {
			resp.Warnings = append(resp.Warnings, wn.Error())
		}
		for _, e := range a.SourceErrors {
			resp.SourceErrors = append(resp.SourceErrors, e.Error())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusNotImplemented, "refresh not available")
		return
	}
	if err := s.refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.handleStatus(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.MarshalWrite(w, v, jsontext.WithIndent("  ")); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
