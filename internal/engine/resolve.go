package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/audit"
	"github.com/talgya/serenissima/internal/logging"
	"github.com/talgya/serenissima/internal/persistence"
	"github.com/talgya/serenissima/internal/resolver"
	"github.com/talgya/serenissima/internal/social"
)

// maxReportedFailures bounds how many failures the admin report lists.
const maxReportedFailures = 20

// ResolveStats summarizes a resolve pass.
type ResolveStats struct {
	Concluded int
	Processed int
	Failed    int
	Skipped   int
	Failures  []Failure
}

// Failure is one activity that could not be resolved.
type Failure struct {
	ActivityID string
	Type       activity.Type
	Citizen    string
	Reason     string
}

// ResolvePass concludes every created activity whose end has passed.
// Activities sharing a citizen, building or contract are resolved one after
// another; the rest run in parallel.
func (e *Engine) ResolvePass(ctx context.Context) (ResolveStats, error) {
	now := e.clock()
	ctx, span := e.tracer.Start(ctx, "engine.ResolvePass")
	defer span.End()

	var stats ResolveStats
	due, err := e.store.Activities(ctx, persistence.ActivityFilter{Status: activity.StatusCreated, EndedBy: now})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load concluded activities")
		return stats, fmt.Errorf("load concluded activities: %w", err)
	}
	stats.Concluded = len(due)
	if len(due) == 0 {
		return stats, nil
	}
	e.logger.InfoContext(ctx, "resolve pass", "concluded", len(due))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, a := range due {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			actx := logging.WithActivity(logging.WithCitizen(gctx, a.Citizen), a.ActivityID, a.Type.String())
			err := e.resolveOne(actx, a, now)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stats.Processed++
			case errors.Is(err, resolver.ErrAlreadyResolved):
				stats.Skipped++
			default:
				stats.Failed++
				stats.Failures = append(stats.Failures, Failure{
					ActivityID: a.ActivityID, Type: a.Type, Citizen: a.Citizen, Reason: err.Error(),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	if len(stats.Failures) > 0 {
		if err := e.reportFailures(ctx, stats.Failures, now); err != nil {
			e.logger.ErrorContext(ctx, "report failures", "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int("activities.concluded", stats.Concluded),
		attribute.Int("activities.processed", stats.Processed),
		attribute.Int("activities.failed", stats.Failed),
	)
	e.logger.InfoContext(ctx, "resolve pass done",
		"processed", stats.Processed, "failed", stats.Failed, "skipped", stats.Skipped)
	return stats, ctx.Err()
}

// resolveOne resolves a under the locks of everything it touches and writes
// the audit line.
func (e *Engine) resolveOne(ctx context.Context, a *activity.Activity, now time.Time) (err error) {
	ctx, span := e.tracer.Start(ctx, "engine.resolve", trace.WithAttributes(
		attribute.String("activity.id", a.ActivityID),
		attribute.String("activity.type", a.Type.String()),
		attribute.String("citizen", a.Citizen),
	))
	defer span.End()

	unlock := e.locks.LockAll(resolver.LockKeys(a)...)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", resolver.ErrIntegrity, r)
		}
		if errors.Is(err, resolver.ErrAlreadyResolved) {
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolve")
			e.logger.WarnContext(ctx, "activity failed", "error", err)
		} else {
			e.logger.DebugContext(ctx, "activity processed")
		}
		entry := audit.Entry{At: now, Outcome: a.Status, Activity: a}
		if err != nil {
			entry.Error = err.Error()
		}
		if aerr := e.audit.Record(entry); aerr != nil {
			e.logger.ErrorContext(ctx, "audit record", "error", aerr)
		}
	}()
	return e.resolver.Resolve(ctx, e.store, a, now)
}

// reportFailures leaves one aggregated notification for the administrators.
func (e *Engine) reportFailures(ctx context.Context, failures []Failure, now time.Time) error {
	byType := map[activity.Type]int{}
	for _, f := range failures {
		byType[f.Type]++
	}
	types := make([]activity.Type, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "%d activities failed at %s.", len(failures), now.UTC().Format(time.RFC3339))
	for _, t := range types {
		fmt.Fprintf(&b, "\n%s: %d", t, byType[t])
	}
	sorted := append([]Failure(nil), failures...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ActivityID < sorted[j].ActivityID })
	for i, f := range sorted {
		if i == maxReportedFailures {
			fmt.Fprintf(&b, "\n... and %d more", len(sorted)-i)
			break
		}
		fmt.Fprintf(&b, "\n- %s %s (%s): %s", f.Type, f.ActivityID, f.Citizen, f.Reason)
	}

	return e.store.InTx(ctx, func(tx persistence.Tx) error {
		return tx.Notify(ctx, &social.Notification{
			Citizen:   social.AdminRecipient,
			Type:      social.NotificationAdmin,
			Content:   b.String(),
			CreatedAt: now,
		})
	})
}
