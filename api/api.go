// Package api exposes a small read-only HTTP surface over the monitor:
// liveness, current status, and the recent delivery log.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/vigil/monitor"
	"github.com/hazyhaar/vigil/state"
)

// StatsSource reports engine counters. Satisfied by *monitor.Engine.
type StatsSource interface {
	Stats() monitor.Stats
}

// Server serves the status API for one monitored target.
type Server struct {
	target monitor.Target
	engine StatsSource
	store  *state.Store
	logger *slog.Logger
}

// NewServer creates the API server.
func NewServer(target monitor.Target, engine StatsSource, store *state.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{target: target, engine: engine, store: store, logger: logger}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)
	r.Get("/deliveries", s.handleDeliveries)
	return r
}

// statusResponse is the /status payload.
type statusResponse struct {
	URL       string            `json:"url"`
	Selector  string            `json:"selector"`
	Stats     monitor.Stats     `json:"stats"`
	Snapshot  *monitor.Snapshot `json:"snapshot,omitempty"`
	Heartbeat *state.Heartbeat  `json:"heartbeat,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{
		URL:      s.target.URL,
		Selector: s.target.Selector,
		Stats:    s.engine.Stats(),
	}

	snap, err := s.store.GetSnapshot(ctx, s.target.Key())
	if err != nil {
		writeError(w, 500, err)
		return
	}
	resp.Snapshot = snap

	hb, err := s.store.LatestHeartbeat(ctx, s.target.Key())
	if err != nil {
		writeError(w, 500, err)
		return
	}
	resp.Heartbeat = hb

	writeJSON(w, 200, resp)
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	attempts, err := s.store.RecentDeliveries(r.Context(), limit)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, map[string]any{"deliveries": attempts})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api: listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
