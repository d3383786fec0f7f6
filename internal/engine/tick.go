package engine

import (
	"context"
	"errors"
	"time"
)

// TickStats is the outcome of one tick.
type TickStats struct {
	Resolve  ResolveStats
	Schedule ScheduleStats
	Took     time.Duration
}

// Tick resolves what has ended, then schedules the citizens that freed up.
func (e *Engine) Tick(ctx context.Context) (stats TickStats, err error) {
	start := time.Now()
	defer func() {
		stats.Took = time.Since(start)
		e.mu.Lock()
		e.last, e.lastAt, e.lastErr = stats, e.clock(), err
		e.mu.Unlock()
	}()

	stats.Resolve, err = e.ResolvePass(ctx)
	if err != nil {
		return stats, err
	}
	stats.Schedule, err = e.SchedulePass(ctx)
	return stats, err
}

// Run ticks every interval until ctx is cancelled. A failed tick is logged
// and the loop carries on; the next tick is the retry.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	e.logger.InfoContext(ctx, "activity engine started", "interval", interval, "workers", e.workers)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		stats, err := e.Tick(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			e.logger.ErrorContext(ctx, "tick failed", "error", err)
		} else if err == nil {
			e.logger.InfoContext(ctx, "tick",
				"processed", stats.Resolve.Processed,
				"failed", stats.Resolve.Failed,
				"created", stats.Schedule.Created,
				"took", stats.Took.Round(time.Millisecond))
		}

		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "activity engine stopped")
			return nil
		case <-ticker.C:
		}
	}
}
