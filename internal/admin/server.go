// Package admin is the operator-facing HTTP surface: statistics,
// session listing, and Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkosms/smscd/internal/config"
	"github.com/arkosms/smscd/internal/session"
	"github.com/arkosms/smscd/internal/stats"
)

// SessionLister exposes the listener's live sessions.
type SessionLister interface {
	Sessions() []session.Info
}

// Server serves the admin endpoints.
type Server struct {
	config     config.AdminConfig
	stats      *stats.Stats
	sessions   SessionLister
	registry   *prometheus.Registry
	httpServer *http.Server
	stopOnce   sync.Once
}

func NewServer(cfg config.AdminConfig, st *stats.Stats, sessions SessionLister) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(stats.NewCollector(st))
	return &Server{
		config:   cfg,
		stats:    st,
		sessions: sessions,
		registry: registry,
	}
}

// ListenAndServe starts the HTTP server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	if s.httpServer != nil {
		return errors.New("admin server already started")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /statistics", s.handleStatistics)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	slog.Info("Starting admin HTTP server", slog.String("address", s.config.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Admin HTTP server ListenAndServe error", slog.Any("error", err))
		return err
	}
	slog.Info("Admin HTTP server stopped.")
	return nil
}

// Shutdown stops the server gracefully. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() {
		if s.httpServer == nil {
			return
		}
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn("Admin HTTP server shutdown error", slog.Any("error", err))
		}
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.sessions.Sessions()
	if infos == nil {
		infos = []session.Info{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode admin response", slog.Any("error", err))
	}
}
