// Package api serves the activity engine over HTTP.
// GET endpoints are public and read-only.
// POST endpoints require the admin bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/engine"
	"github.com/talgya/serenissima/internal/persistence"
)

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 500
)

// Ticker is the part of the engine the API drives.
type Ticker interface {
	Tick(ctx context.Context) (engine.TickStats, error)
	Last() (engine.TickStats, time.Time, error)
}

// Server serves engine state over HTTP.
type Server struct {
	Store    persistence.Reader
	Engine   Ticker
	Addr     string
	AdminKey string // bearer token for POST endpoints; empty disables them
	Logger   *slog.Logger
	Clock    func() time.Time

	// TickLimit caps manual ticks per client per hour. Zero means 6.
	TickLimit int
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	limit := s.TickLimit
	if limit <= 0 {
		limit = 6
	}
	tickLimiter := NewRateLimiter(limit, time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/citizen/{username}", s.handleCitizen)
	mux.HandleFunc("GET /api/v1/activities", s.handleActivities)
	mux.HandleFunc("POST /api/v1/tick", s.adminOnly(tickLimiter.Limit(s.handleTick)))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger().Info("HTTP API listening", "addr", s.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no ACTIVITIES_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token != s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type tickView struct {
	At        *time.Time `json:"at,omitempty"`
	Processed int        `json:"processed"`
	Failed    int        `json:"failed"`
	Skipped   int        `json:"skipped"`
	Created   int        `json:"created"`
	Idle      int        `json:"idle"`
	TookMS    int64      `json:"took_ms"`
	Error     string     `json:"error,omitempty"`
}

func newTickView(stats engine.TickStats, at time.Time, err error) tickView {
	v := tickView{
		Processed: stats.Resolve.Processed,
		Failed:    stats.Resolve.Failed,
		Skipped:   stats.Resolve.Skipped + stats.Schedule.Skipped,
		Created:   stats.Schedule.Created,
		Idle:      stats.Schedule.Idle,
		TookMS:    stats.Took.Milliseconds(),
	}
	if !at.IsZero() {
		v.At = &at
	}
	if err != nil {
		v.Error = err.Error()
	}
	return v
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now()

	pending, err := s.Store.Activities(ctx, persistence.ActivityFilter{Status: activity.StatusCreated})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	failed, err := s.Store.Activities(ctx, persistence.ActivityFilter{
		Status: activity.StatusFailed, ProcessedAfter: now.Add(-24 * time.Hour),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	running, due := 0, 0
	byType := map[activity.Type]int{}
	for _, a := range pending {
		byType[a.Type]++
		switch {
		case a.IsConcluded(now):
			due++
		case a.IsActive(now):
			running++
		}
	}

	status := map[string]any{
		"time":            now,
		"pending":         len(pending),
		"running":         running,
		"due":             due,
		"failed_24h":      len(failed),
		"pending_by_type": byType,
	}
	if s.Engine != nil {
		status["last_tick"] = newTickView(s.Engine.Last())
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCitizen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := r.PathValue("username")

	c, err := s.Store.Citizen(ctx, username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	acts, err := s.Store.Activities(ctx, persistence.ActivityFilter{
		Citizen: username, Status: activity.StatusCreated,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	carried, err := s.Store.Resources(ctx, persistence.ResourceFilter{
		AssetType: economy.AssetCitizen, Asset: username,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var current *activity.Activity
	if len(acts) > 0 {
		current = acts[0]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"citizen":  c,
		"activity": current,
		"carried":  carried,
	})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := persistence.ActivityFilter{
		Citizen: q.Get("citizen"),
		Status:  activity.Status(q.Get("status")),
		Limit:   defaultActivityLimit,
	}
	if v := q.Get("type"); v != "" {
		t, err := activity.ParseType(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Types = []activity.Type{t}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		f.Limit = min(n, maxActivityLimit)
	}

	acts, err := s.Store.Activities(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if acts == nil {
		acts = []*activity.Activity{}
	}
	writeJSON(w, http.StatusOK, acts)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Engine.Tick(r.Context())
	if err != nil {
		s.logger().ErrorContext(r.Context(), "manual tick failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, newTickView(stats, s.now(), err))
		return
	}
	s.logger().InfoContext(r.Context(), "manual tick", "processed", stats.Resolve.Processed, "created", stats.Schedule.Created)
	writeJSON(w, http.StatusOK, newTickView(stats, s.now(), nil))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.logger().ErrorContext(r.Context(), "API request failed", "path", r.URL.Path, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
