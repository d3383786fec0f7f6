// Package resolver applies the effects of concluded activities to the world:
// citizens move, goods change hands, money is paid, buildings rise.
//
// Every activity resolves inside one store transaction together with its
// status change, so an activity either takes full effect and becomes
// processed or takes none and becomes failed.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/config"
	"github.com/talgya/serenissima/internal/pathfind"
	"github.com/talgya/serenissima/internal/persistence"
	"github.com/talgya/serenissima/internal/social"
)

var (
	// ErrBusinessRule marks a failure the world state explains: not enough
	// money, stock, or room.
	ErrBusinessRule = errors.New("business rule violated")

	// ErrIntegrity marks a failure the data explains: a record the activity
	// depends on is missing or malformed.
	ErrIntegrity = errors.New("integrity violation")

	// ErrAlreadyResolved is returned for an activity that is no longer in the
	// created state. Nothing is written.
	ErrAlreadyResolved = errors.New("activity already resolved")
)

type processor func(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error

// Resolver applies activity effects.
type Resolver struct {
	catalog *catalog.Catalog
	tuning  config.Tuning
	needs   agents.Needs
	fees    pathfind.FeePolicy
	trust   *social.TrustLedger
	logger  *slog.Logger
}

// New creates a resolver.
func New(cat *catalog.Catalog, tuning config.Tuning, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		catalog: cat,
		tuning:  tuning,
		needs:   tuning.Needs(),
		fees:    tuning.FeePolicy(),
		trust:   social.NewTrustLedger(),
		logger:  logger,
	}
}

func (r *Resolver) processor(t activity.Type) processor {
	switch t {
	case activity.GotoHome:
		return r.gotoHome
	case activity.GotoWork:
		return r.gotoWork
	case activity.TravelToInn, activity.GotoConstructionSite, activity.GotoLocation:
		return r.travel
	case activity.Rest, activity.Idle:
		return r.noop
	case activity.EatFromInventory, activity.EatAtHome, activity.EatAtTavern:
		return r.eat
	case activity.Production:
		return r.production
	case activity.FetchResource:
		return r.fetchResource
	case activity.FetchFromStorage:
		return r.fetchFromStorage
	case activity.FetchFromGalley:
		return r.fetchFromGalley
	case activity.DeliverResourceBatch:
		return r.deliverBatch
	case activity.DeliverToStorage:
		return r.deliverToStorage
	case activity.ConstructBuilding:
		return r.construct
	case activity.LeaveVenice:
		return r.leave
	case activity.Fishing, activity.EmergencyFishing:
		return r.fish
	case activity.CheckBusinessStatus:
		return r.checkBusiness
	}
	return nil
}

// Handles reports whether the resolver has a processor for t.
func (r *Resolver) Handles(t activity.Type) bool {
	return r.processor(t) != nil
}

// Resolve concludes a. On success a is processed; on failure it is failed
// with the reason appended to its notes and the returned error explains why.
// Either way the new status is persisted.
func (r *Resolver) Resolve(ctx context.Context, store persistence.Store, a *activity.Activity, now time.Time) error {
	work := *a
	err := store.InTx(ctx, func(tx persistence.Tx) error {
		cur, err := tx.Activity(ctx, a.ActivityID)
		if err != nil {
			return fmt.Errorf("%w: reload activity: %v", ErrIntegrity, err)
		}
		if cur.Status != activity.StatusCreated {
			return ErrAlreadyResolved
		}
		if err := r.apply(ctx, tx, &work, now); err != nil {
			return err
		}
		work.Status = activity.StatusProcessed
		work.ProcessedAt = &now
		return tx.UpdateActivity(ctx, &work)
	})
	if err == nil {
		*a = work
		return nil
	}
	if errors.Is(err, ErrAlreadyResolved) {
		return err
	}

	a.Status = activity.StatusFailed
	a.ProcessedAt = &now
	a.AddNote("failed: %v", err)
	if uerr := store.InTx(ctx, func(tx persistence.Tx) error {
		return tx.UpdateActivity(ctx, a)
	}); uerr != nil {
		return errors.Join(err, fmt.Errorf("record failure: %w", uerr))
	}
	return err
}

// apply runs the processor for a, turning a panic into an integrity failure.
func (r *Resolver) apply(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) (err error) {
	p := r.processor(a.Type)
	if p == nil {
		return fmt.Errorf("%w: no processor for %s", ErrIntegrity, a.Type)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic resolving %s: %v", ErrIntegrity, a.Type, rec)
		}
	}()
	return p(ctx, tx, a, now)
}

func (r *Resolver) noop(context.Context, persistence.Tx, *activity.Activity, time.Time) error {
	return nil
}

// LockKeys names every record a's resolution may write, for callers that
// serialize resolutions touching the same citizens, buildings, or contracts.
func LockKeys(a *activity.Activity) []string {
	keys := []string{"citizen:" + a.Citizen}
	add := func(prefix, id string) {
		if id != "" {
			keys = append(keys, prefix+id)
		}
	}
	add("building:", a.FromBuilding)
	add("building:", a.ToBuilding)
	add("contract:", a.ContractID)

	switch d := a.Details.(type) {
	case activity.TradeDetails:
		add("citizen:", d.Buyer)
		add("citizen:", d.Seller)
		add("building:", d.DeliverTo)
	case activity.GalleyDetails:
		add("citizen:", d.Buyer)
		add("citizen:", d.Merchant)
		add("citizen:", Treasury)
	case activity.ProductionDetails:
		add("citizen:", d.Operator)
	case activity.MealDetails:
		add("citizen:", d.Operator)
	case activity.DeliveryDetails:
		add("citizen:", d.Owner)
	case activity.ConstructionDetails:
		add("building:", d.Workshop)
	}
	if len(a.Path) > 0 {
		// Gondola fees go to whichever dock is nearest, or the treasury.
		add("citizen:", Treasury)
		add("fees:", "docks")
	}
	return keys
}
