// Package engine runs the two passes of the activity engine: scheduling new
// activities for idle citizens and resolving activities that have ended.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/talgya/serenissima/internal/audit"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/keylock"
	"github.com/talgya/serenissima/internal/persistence"
	"github.com/talgya/serenissima/internal/resolver"
	"github.com/talgya/serenissima/internal/scheduler"
)

const lockStripes = 256

// Options tune an Engine. Zero values take defaults.
type Options struct {
	Workers  int
	Cooldown time.Duration
	Audit    audit.Recorder
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Engine wires the store, scheduler and resolver together.
type Engine struct {
	store     persistence.Store
	scheduler *scheduler.Scheduler
	resolver  *resolver.Resolver
	catalog   *catalog.Catalog

	workers  int
	cooldown time.Duration
	audit    audit.Recorder
	locks    *keylock.Striped
	tracer   trace.Tracer
	logger   *slog.Logger
	clock    func() time.Time

	mu      sync.Mutex
	last    TickStats
	lastAt  time.Time
	lastErr error
}

// New creates an engine.
func New(store persistence.Store, sched *scheduler.Scheduler, res *resolver.Resolver, cat *catalog.Catalog, opts Options) *Engine {
	e := &Engine{
		store:     store,
		scheduler: sched,
		resolver:  res,
		catalog:   cat,
		workers:   opts.Workers,
		cooldown:  opts.Cooldown,
		audit:     opts.Audit,
		locks:     keylock.New(lockStripes),
		tracer:    otel.Tracer("github.com/talgya/serenissima/internal/engine"),
		logger:    opts.Logger,
		clock:     opts.Clock,
	}
	if e.workers < 1 {
		e.workers = 1
	}
	if e.cooldown <= 0 {
		e.cooldown = time.Hour
	}
	if e.audit == nil {
		e.audit = audit.Discard{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

// Last returns the outcome of the most recent tick. The time is zero before
// the first one.
func (e *Engine) Last() (TickStats, time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.lastAt, e.lastErr
}
