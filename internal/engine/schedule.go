package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/logging"
	"github.com/talgya/serenissima/internal/persistence"
	"github.com/talgya/serenissima/internal/scheduler"
)

// ScheduleStats summarizes a schedule pass.
type ScheduleStats struct {
	Idle    int
	Created int
	Skipped int
	Errors  int
	// ByHandler counts created activities per winning handler; fallback
	// idles are counted under "idle".
	ByHandler map[string]int
}

func (s *ScheduleStats) add(handler string) {
	if handler == "" {
		handler = "idle"
	}
	s.Created++
	s.ByHandler[handler]++
}

// SchedulePass gives every idle citizen one new activity. A citizen is idle
// when no created activity of theirs is waiting, whether it is still running
// or has ended and awaits resolution.
func (e *Engine) SchedulePass(ctx context.Context) (ScheduleStats, error) {
	now := e.clock()
	ctx, span := e.tracer.Start(ctx, "engine.SchedulePass")
	defer span.End()

	stats := ScheduleStats{ByHandler: map[string]int{}}
	w, err := scheduler.LoadWorld(ctx, e.store, e.catalog, now, e.cooldown)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load world")
		return stats, err
	}
	busy, err := e.busyCitizens(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load busy citizens")
		return stats, err
	}

	var idle []*agents.Citizen
	for _, c := range w.Citizens() {
		if !busy[c.Username] {
			idle = append(idle, c)
		}
	}
	stats.Idle = len(idle)
	e.logger.InfoContext(ctx, "schedule pass", "idle", len(idle), "busy", len(busy))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, c := range idle {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			cctx := logging.WithCitizen(gctx, c.Username)
			plan := e.scheduler.Schedule(cctx, c, w)
			err := e.persistPlan(cctx, c.Username, plan)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stats.add(plan.Handler)
			case errors.Is(err, persistence.ErrCitizenBusy):
				stats.Skipped++
				e.logger.InfoContext(cctx, "citizen became busy, skipping")
			default:
				stats.Errors++
				e.logger.ErrorContext(cctx, "persist activity", "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	if notices := w.Notices(); len(notices) > 0 {
		if err := e.store.InTx(ctx, func(tx persistence.Tx) error {
			for i := range notices {
				if err := tx.Notify(ctx, &notices[i]); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			e.logger.ErrorContext(ctx, "save notifications", "count", len(notices), "error", err)
			stats.Errors++
		}
	}

	span.SetAttributes(
		attribute.Int("citizens.idle", stats.Idle),
		attribute.Int("activities.created", stats.Created),
		attribute.Int("activities.skipped", stats.Skipped),
	)
	e.logger.InfoContext(ctx, "schedule pass done",
		"created", stats.Created, "skipped", stats.Skipped, "errors", stats.Errors)
	return stats, ctx.Err()
}

func (e *Engine) busyCitizens(ctx context.Context) (map[string]bool, error) {
	pending, err := e.store.Activities(ctx, persistence.ActivityFilter{Status: activity.StatusCreated})
	if err != nil {
		return nil, fmt.Errorf("load pending activities: %w", err)
	}
	busy := make(map[string]bool, len(pending))
	for _, a := range pending {
		busy[a.Citizen] = true
	}
	return busy, nil
}

// persistPlan writes the planned activity, and any position the scheduler
// assigned, in one transaction. A pending activity created since the
// snapshot, for instance by an overlapping pass, wins.
func (e *Engine) persistPlan(ctx context.Context, username string, plan *scheduler.Plan) error {
	if plan == nil || plan.Activity == nil {
		return nil
	}
	return e.store.InTx(ctx, func(tx persistence.Tx) error {
		pending, err := tx.Activities(ctx, persistence.ActivityFilter{
			Citizen: username, Status: activity.StatusCreated, Limit: 1,
		})
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return fmt.Errorf("%s has pending %s: %w", username, pending[0].Type, persistence.ErrCitizenBusy)
		}
		if plan.Placed != nil {
			c, err := tx.Citizen(ctx, username)
			if err != nil {
				return err
			}
			if c.Position == nil {
				p := *plan.Placed
				c.Position = &p
				if err := tx.UpsertCitizen(ctx, c); err != nil {
					return err
				}
			}
		}
		return tx.CreateActivity(ctx, plan.Activity)
	})
}
