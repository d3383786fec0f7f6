package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/api"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/engine"
	"github.com/talgya/serenissima/internal/persistence"
)

var noon = time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)

type fakeTicker struct {
	ticks int
	err   error
	at    time.Time
}

func (f *fakeTicker) Tick(context.Context) (engine.TickStats, error) {
	f.ticks++
	f.at = noon
	return engine.TickStats{Resolve: engine.ResolveStats{Processed: 2}, Schedule: engine.ScheduleStats{Created: 3}}, f.err
}

func (f *fakeTicker) Last() (engine.TickStats, time.Time, error) {
	if f.ticks == 0 {
		return engine.TickStats{}, time.Time{}, nil
	}
	return engine.TickStats{Resolve: engine.ResolveStats{Processed: 2}}, f.at, f.err
}

func newServer(t *testing.T, ticker *fakeTicker) (*api.Server, http.Handler) {
	t.Helper()
	store := persistence.NewMemory()
	walk := activity.New(activity.GotoWork, "gondoliere", noon.Add(-10*time.Minute), noon.Add(20*time.Minute))
	done := activity.New(activity.Rest, "gondoliere", noon.Add(-3*time.Hour), noon.Add(-time.Hour))
	seed := persistence.Seed{
		Citizens: []*agents.Citizen{
			{Username: "gondoliere", FirstName: "Piero", LastName: "Zen", SocialClass: agents.ClassPopolani, Ducats: 40, InVenice: true},
		},
		Resources: []economy.Resource{
			{ResourceKey: economy.CarriedBy("gondoliere", "fish", "gondoliere"), Count: 3},
		},
		Activities: []*activity.Activity{walk, done},
	}
	require.NoError(t, seed.Apply(context.Background(), store))

	s := &api.Server{
		Store:     store,
		Engine:    ticker,
		AdminKey:  "doge",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:     func() time.Time { return noon },
		TickLimit: 2,
	}
	return s, s.Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusCountsPendingWork(t *testing.T) {
	_, h := newServer(t, &fakeTicker{})

	rec := get(t, h, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pending  int            `json:"pending"`
		Running  int            `json:"running"`
		Due      int            `json:"due"`
		ByType   map[string]int `json:"pending_by_type"`
		LastTick struct {
			At *time.Time `json:"at"`
		} `json:"last_tick"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Pending)
	assert.Equal(t, 1, body.Running)
	assert.Equal(t, 1, body.Due)
	assert.Equal(t, 1, body.ByType[activity.Rest.String()])
	assert.Nil(t, body.LastTick.At, "no tick has run yet")
}

func TestCitizenShowsCarriedGoods(t *testing.T) {
	_, h := newServer(t, &fakeTicker{})

	rec := get(t, h, "/api/v1/citizen/gondoliere")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Citizen  agents.Citizen     `json:"citizen"`
		Activity *activity.Activity `json:"activity"`
		Carried  []economy.Resource `json:"carried"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Piero Zen", body.Citizen.Name())
	require.NotNil(t, body.Activity)
	require.Len(t, body.Carried, 1)
	assert.InDelta(t, 3, body.Carried[0].Count, 1e-9)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/citizen/nessuno").Code)
}

func TestActivitiesFilterAndLimit(t *testing.T) {
	_, h := newServer(t, &fakeTicker{})

	var acts []activity.Activity
	rec := get(t, h, "/api/v1/activities?citizen=gondoliere&type=rest")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acts))
	require.Len(t, acts, 1)
	assert.Equal(t, activity.Rest, acts[0].Type)

	rec = get(t, h, "/api/v1/activities?citizen=nessuno")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/activities?limit=zero").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/activities?type=gambling").Code)
}

func TestTickNeedsTheAdminToken(t *testing.T) {
	ticker := &fakeTicker{}
	_, h := newServer(t, ticker)

	post := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tick", nil)
		req.RemoteAddr = "10.0.0.7:5123"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, post(""))
	assert.Equal(t, http.StatusUnauthorized, post("dogaressa"))
	assert.Equal(t, 0, ticker.ticks)

	assert.Equal(t, http.StatusOK, post("doge"))
	assert.Equal(t, http.StatusOK, post("doge"))
	assert.Equal(t, http.StatusTooManyRequests, post("doge"))
	assert.Equal(t, 2, ticker.ticks)

	assert.Equal(t, http.StatusMethodNotAllowed, get(t, h, "/api/v1/tick").Code)
}

func TestTickWithoutAdminKeyIsDisabled(t *testing.T) {
	s, _ := newServer(t, &fakeTicker{})
	s.AdminKey = ""
	h := s.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tick", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFailedTickIsReported(t *testing.T) {
	ticker := &fakeTicker{err: errors.New("database is locked")}
	_, h := newServer(t, ticker)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tick", nil)
	req.Header.Set("Authorization", "Bearer doge")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")

	status := get(t, h, "/api/v1/status")
	assert.Contains(t, status.Body.String(), "database is locked")
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := api.NewRateLimiter(1, time.Minute)

	ok, _ := rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, wait := rl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok, "clients are limited separately")
}

func TestRateLimiterTrustsForwardedFor(t *testing.T) {
	rl := api.NewRateLimiter(1, time.Hour)
	h := rl.Limit(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	call := func(remote, xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1", "203.0.113.9, 10.0.0.1").Code)
	rec := call("10.0.0.2:1", "203.0.113.9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:2", "").Code)
}
