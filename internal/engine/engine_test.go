package engine_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/audit"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/config"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/engine"
	"github.com/talgya/serenissima/internal/pathfind"
	"github.com/talgya/serenissima/internal/persistence"
	"github.com/talgya/serenissima/internal/resolver"
	"github.com/talgya/serenissima/internal/scheduler"
	"github.com/talgya/serenissima/internal/social"
	"github.com/talgya/serenissima/internal/world"
)

var night = time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recorder) Record(e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recorder) Close() error { return nil }

func newEngine(t *testing.T, store persistence.Store, clk *clock, rec audit.Recorder) *engine.Engine {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tuning := config.DefaultTuning()
	sched := scheduler.New(pathfind.NewStraight(), nil, cat, agents.Calendar{Location: time.UTC, Catalog: cat}, tuning, logger)
	res := resolver.New(cat, tuning, logger)
	return engine.New(store, sched, res, cat, engine.Options{
		Workers: 4, Audit: rec, Logger: logger, Clock: clk.Now,
	})
}

func inn() *world.Building {
	return &world.Building{BuildingID: "inn-1", Type: "inn", Category: catalog.CategoryBusiness,
		SubCategory: catalog.SubCategoryInn, Owner: "oste", Position: world.Position{Lat: 45.4371, Lng: 12.3326}, IsConstructed: true}
}

func labourers(n int, now time.Time) []*agents.Citizen {
	ate := now.Add(-time.Hour)
	var out []*agents.Citizen
	for i := 0; i < n; i++ {
		out = append(out, &agents.Citizen{
			Username:    string(rune('a'+i)) + "-facchino",
			SocialClass: agents.ClassFacchini,
			Position:    &world.Position{Lat: 45.4340, Lng: 12.3390},
			Ducats:      5 * economy.Ducat,
			AteAt:       &ate,
			InVenice:    true,
		})
	}
	return out
}

func pending(t *testing.T, store persistence.Reader) []*activity.Activity {
	t.Helper()
	as, err := store.Activities(context.Background(), persistence.ActivityFilter{Status: activity.StatusCreated})
	require.NoError(t, err)
	return as
}

func TestScheduleResolveCycle(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	require.NoError(t, (&persistence.Seed{
		Citizens:  labourers(1, night),
		Buildings: []*world.Building{inn()},
	}).Apply(ctx, store))
	clk := &clock{now: night}
	rec := &recorder{}
	e := newEngine(t, store, clk, rec)

	stats, err := e.SchedulePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.ByHandler["shelter"])
	as := pending(t, store)
	require.Len(t, as, 1)
	assert.Equal(t, activity.TravelToInn, as[0].Type)

	// Still travelling: nothing to resolve, nobody idle.
	rs, err := e.ResolvePass(ctx)
	require.NoError(t, err)
	assert.Zero(t, rs.Concluded)
	stats, err = e.SchedulePass(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Idle)

	clk.Set(as[0].EndDate)
	ts, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.Resolve.Processed)
	assert.Equal(t, 1, ts.Schedule.Created)

	as = pending(t, store)
	require.Len(t, as, 1)
	assert.Equal(t, activity.Rest, as[0].Type)
	assert.Equal(t, "inn-1", as[0].ToBuilding)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, activity.StatusProcessed, rec.entries[0].Outcome)
	assert.Equal(t, activity.TravelToInn, rec.entries[0].Activity.Type)
}

func TestOverlappingSchedulePassesCreateOneActivityEach(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	citizens := labourers(6, night)
	require.NoError(t, (&persistence.Seed{Citizens: citizens, Buildings: []*world.Building{inn()}}).Apply(ctx, store))
	clk := &clock{now: night}
	first := newEngine(t, store, clk, nil)
	second := newEngine(t, store, clk, nil)

	var wg sync.WaitGroup
	results := make([]engine.ScheduleStats, 2)
	for i, e := range []*engine.Engine{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := e.SchedulePass(ctx)
			assert.NoError(t, err)
			results[i] = s
		}()
	}
	wg.Wait()

	assert.Equal(t, len(citizens), results[0].Created+results[1].Created)
	perCitizen := map[string]int{}
	for _, a := range pending(t, store) {
		perCitizen[a.Citizen]++
	}
	assert.Len(t, perCitizen, len(citizens))
	for name, n := range perCitizen {
		assert.Equal(t, 1, n, "citizen %s", name)
	}
}

func TestEmptyResolvePassDoesNothing(t *testing.T) {
	store := persistence.NewMemory()
	e := newEngine(t, store, &clock{now: night}, nil)
	stats, err := e.ResolvePass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.ResolveStats{}, stats)

	notes, err := store.Notifications(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestFailuresAreReportedToTheAdministrators(t *testing.T) {
	ctx := context.Background()
	tavern := &world.Building{BuildingID: "tav-1", Type: "tavern", Category: catalog.CategoryBusiness,
		SubCategory: catalog.SubCategoryTavern, Owner: "oste", IsConstructed: true}
	meal := activity.New(activity.EatAtTavern, "squattrinato", night.Add(-time.Hour), night.Add(-30*time.Minute))
	meal.ToBuilding = "tav-1"
	meal.Details = activity.MealDetails{Price: 10 * economy.Ducat, Operator: "oste"}
	store := persistence.NewMemory()
	require.NoError(t, (&persistence.Seed{
		Citizens: []*agents.Citizen{
			{Username: "squattrinato", InVenice: true},
			{Username: "oste", InVenice: true},
		},
		Buildings:  []*world.Building{tavern},
		Activities: []*activity.Activity{meal},
	}).Apply(ctx, store))
	rec := &recorder{}
	e := newEngine(t, store, &clock{now: night}, rec)

	stats, err := e.ResolvePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, meal.ActivityID, stats.Failures[0].ActivityID)

	notes, err := store.Notifications(ctx, social.AdminRecipient)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, social.NotificationAdmin, notes[0].Type)
	assert.Contains(t, notes[0].Content, "eat_at_tavern: 1")

	got, err := store.Activity(ctx, meal.ActivityID)
	require.NoError(t, err)
	assert.Equal(t, activity.StatusFailed, got.Status)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, activity.StatusFailed, rec.entries[0].Outcome)
	assert.NotEmpty(t, rec.entries[0].Error)

	// Failed activities are never picked up again.
	stats, err = e.ResolvePass(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Concluded)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	e := newEngine(t, persistence.NewMemory(), &clock{now: night}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, 10*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
