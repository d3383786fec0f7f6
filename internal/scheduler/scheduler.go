// Package scheduler turns an idle citizen into their next activity. Handlers
// are tried in priority order; the first one that returns an activity wins.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/config"
	"github.com/talgya/serenissima/internal/kin"
	"github.com/talgya/serenissima/internal/logging"
	"github.com/talgya/serenissima/internal/pathfind"
	"github.com/talgya/serenissima/internal/world"
)

// Handler proposes an activity for a citizen. A nil activity with a nil
// error means the handler does not apply. An error means a collaborator
// failed; the scheduler logs it and moves on to the next handler.
type Handler interface {
	Name() string
	Evaluate(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error)
}

type handlerFunc struct {
	name string
	fn   func(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error)
}

func (h handlerFunc) Name() string { return h.name }

func (h handlerFunc) Evaluate(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	return h.fn(ctx, c, w)
}

// Scheduler holds the handler chain and its collaborators.
type Scheduler struct {
	finder   pathfind.Finder
	sender   kin.Sender // nil disables AI leisure decisions
	calendar agents.Calendar
	needs    agents.Needs
	tuning   config.Tuning
	catalog  *catalog.Catalog
	locator  *world.Locator
	logger   *slog.Logger

	handlers []Handler
}

// New builds a scheduler with the standard handler chain.
func New(finder pathfind.Finder, sender kin.Sender, cat *catalog.Catalog, cal agents.Calendar, tuning config.Tuning, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		finder:   finder,
		sender:   sender,
		calendar: cal,
		needs:    tuning.Needs(),
		tuning:   tuning,
		catalog:  cat,
		locator:  world.NewLocator(tuning.LocatorSeed, cat.Geography.LandPoints),
		logger:   logger,
	}
	s.handlers = []Handler{
		handlerFunc{"leave_venice", s.leaveVenice},
		handlerFunc{"emergency_fishing", s.emergencyFishing},
		handlerFunc{"emergency_eat", s.emergencyEat},
		handlerFunc{"shelter", s.shelter},
		handlerFunc{"deliver_carried", s.deliverCarried},
		handlerFunc{"construction", s.construction},
		handlerFunc{"storage_offload", s.storageOffload},
		handlerFunc{"provisioning", s.provisioning},
		handlerFunc{"production", s.production},
		handlerFunc{"porter_dispatch", s.porterDispatch},
		handlerFunc{"business_audit", s.businessAudit},
		handlerFunc{"goto_work", s.gotoWork},
		handlerFunc{"fishing", s.fishing},
		handlerFunc{"eat", s.eat},
		handlerFunc{"ai_leisure", s.aiLeisure},
		handlerFunc{"shopping", s.shopping},
		handlerFunc{"go_home", s.goHome},
	}
	return s
}

// Handlers returns the chain in priority order.
func (s *Scheduler) Handlers() []Handler {
	return s.handlers
}

// Handler returns the named handler, or nil.
func (s *Scheduler) Handler(name string) Handler {
	for _, h := range s.handlers {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// Plan is the outcome of scheduling one citizen.
type Plan struct {
	Activity *activity.Activity
	Handler  string // "" when nothing applied and the citizen idles
	// Placed is set when the citizen had no position and one was assigned.
	Placed *world.Position
}

// Schedule picks the citizen's next activity. It always returns a plan; when
// no handler applies the citizen idles.
func (s *Scheduler) Schedule(ctx context.Context, c *agents.Citizen, w *World) *Plan {
	plan := &Plan{}
	if c.Position == nil {
		if pos, ok := s.locator.Locate(c.Username, w.Now); ok {
			cc := *c
			cc.Position = &pos
			c = &cc
			plan.Placed = &pos
			s.logger.InfoContext(ctx, "assigned position", "position", pos)
		}
	}

	var reasons []string
	for _, h := range s.handlers {
		a, err := s.evaluate(ctx, h, c, w)
		if err != nil {
			s.logger.WarnContext(ctx, "handler failed", "handler", h.Name(), "error", err)
			reasons = append(reasons, h.Name()+": "+err.Error())
			continue
		}
		if a != nil {
			plan.Activity = a
			plan.Handler = h.Name()
			return plan
		}
	}

	reason := "nothing to do"
	if len(reasons) > 0 {
		reason = fmt.Sprintf("%d handler error(s), first: %s", len(reasons), reasons[0])
	}
	s.logger.InfoContext(ctx, "idling", "reason", reason)
	plan.Activity = s.idle(c, w, reason)
	return plan
}

// evaluate runs one handler, turning a panic into an error so one bad record
// cannot abort the pass.
func (s *Scheduler) evaluate(ctx context.Context, h Handler, c *agents.Citizen, w *World) (a *activity.Activity, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Evaluate(logging.WithAttrs(ctx, slog.String("handler", h.Name())), c, w)
}

func (s *Scheduler) idle(c *agents.Citizen, w *World, reason string) *activity.Activity {
	a := activity.New(activity.Idle, c.Username, w.Now, w.Now.Add(s.tuning.Idle()))
	a.Details = activity.IdleDetails{Reason: reason}
	return a
}

// period is the citizen's schedule period, honouring workplace hours.
func (s *Scheduler) period(c *agents.Citizen, w *World) agents.Period {
	return s.calendar.Period(c.SocialClass, workplaceType(c, w), w.Now)
}

func workplaceType(c *agents.Citizen, w *World) string {
	if wp := w.Workplace(c.Username); wp != nil {
		return wp.Type
	}
	return ""
}

// route asks the finder for a path under the external-call timeout.
func (s *Scheduler) route(ctx context.Context, from, to world.Position, when time.Time) (*pathfind.Route, error) {
	ctx, cancel := context.WithTimeout(ctx, s.tuning.ExternalTimeout())
	defer cancel()
	return s.finder.FindPath(ctx, from, to, when)
}

// timed builds an activity that starts now and lasts d.
func timed(t activity.Type, c *agents.Citizen, w *World, d time.Duration) *activity.Activity {
	return activity.New(t, c.Username, w.Now, w.Now.Add(d))
}

// journey builds an activity that follows a route and then lasts extra more.
// A citizen already at the destination gets a pathless activity.
func (s *Scheduler) journey(ctx context.Context, t activity.Type, c *agents.Citizen, w *World, dest world.Position, extra time.Duration) (*activity.Activity, error) {
	if c.Position == nil {
		return nil, nil
	}
	if c.At(dest) {
		d := extra
		if d <= 0 {
			d = time.Minute
		}
		return timed(t, c, w, d), nil
	}

	r, err := s.route(ctx, *c.Position, dest, w.Now)
	if errors.Is(err, pathfind.ErrNoRoute) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("route to %s: %w", dest, err)
	}

	end := r.End
	if !end.After(w.Now) {
		end = w.Now.Add(time.Minute)
	}
	a := activity.New(t, c.Username, w.Now, end.Add(extra))
	a.Path = r.Path
	a.Transporter = r.Transporter
	return a, nil
}

// travelTo sends the citizen to a building.
func (s *Scheduler) travelTo(ctx context.Context, t activity.Type, c *agents.Citizen, w *World, b *world.Building) (*activity.Activity, error) {
	a, err := s.journey(ctx, t, c, w, b.Position, 0)
	if a != nil {
		a.ToBuilding = b.BuildingID
	}
	return a, err
}

// nearestReachable tries candidates closest first and returns the first one
// the finder can route to, with its journey activity. Unroutable candidates
// are skipped; a finder failure aborts.
func nearestReachable[T any](ctx context.Context, s *Scheduler, c *agents.Citizen, w *World, cands []T, pos func(T) world.Position, build func(context.Context, T) (*activity.Activity, error)) (*activity.Activity, error) {
	if c.Position == nil || len(cands) == 0 {
		return nil, nil
	}
	ordered := append([]T(nil), cands...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return world.DistanceMeters(*c.Position, pos(ordered[i])) < world.DistanceMeters(*c.Position, pos(ordered[j]))
	})
	for _, cand := range ordered {
		a, err := build(ctx, cand)
		if err != nil {
			return nil, err
		}
		if a != nil {
			return a, nil
		}
	}
	return nil, nil
}

func buildingPos(b *world.Building) world.Position { return b.Position }
