package resolver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/persistence"
)

// production runs one recipe cycle at the workplace: inputs owned by the
// operator are consumed and outputs credited to them. Missing inputs or a
// full store fail the cycle without touching stock.
func (r *Resolver) production(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	d, ok := a.Details.(activity.ProductionDetails)
	if !ok {
		return fmt.Errorf("%w: production without recipe", ErrIntegrity)
	}
	wp, err := building(ctx, tx, a.FromBuilding)
	if err != nil {
		return err
	}
	op := d.Operator
	if op == "" {
		op = wp.Operator()
	}

	in, out := 0.0, 0.0
	for _, t := range sortedTypes(d.Inputs) {
		have, err := tx.Resource(ctx, economy.StoredIn(wp.BuildingID, t, op))
		if err != nil && !isNotFound(err) {
			return err
		}
		if have.Count+economy.CountEpsilon < d.Inputs[t] {
			return fmt.Errorf("%w: %s has %.3f %s, recipe needs %.3f", ErrBusinessRule, wp.BuildingID, have.Count, t, d.Inputs[t])
		}
		in += d.Inputs[t]
	}
	for _, amount := range d.Outputs {
		out += amount
	}
	space, err := r.freeSpace(ctx, tx, wp)
	if err != nil {
		return err
	}
	if out-in > space+economy.CountEpsilon {
		return fmt.Errorf("%w: %s has no room for %.3f units of output", ErrBusinessRule, wp.BuildingID, out)
	}

	for _, t := range sortedTypes(d.Inputs) {
		if err := adjust(ctx, tx, economy.StoredIn(wp.BuildingID, t, op), -d.Inputs[t], nil); err != nil {
			return err
		}
	}
	for _, t := range sortedTypes(d.Outputs) {
		if err := adjust(ctx, tx, economy.StoredIn(wp.BuildingID, t, op), d.Outputs[t], nil); err != nil {
			return err
		}
	}
	return nil
}

// construct applies one shift of work to a site. When the last minute is
// done the building stands, the contract completes, and the client's trust in
// the workshop grows by the completion bonus.
func (r *Resolver) construct(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	d, ok := a.Details.(activity.ConstructionDetails)
	if !ok {
		return fmt.Errorf("%w: construction without shift details", ErrIntegrity)
	}
	ct, err := r.checkContractLoaded(ctx, tx, a, now)
	if err != nil {
		return err
	}
	site, err := building(ctx, tx, a.ToBuilding)
	if err != nil {
		return err
	}
	if site.IsConstructed {
		a.AddNote("%s already built", site.BuildingID)
		return nil
	}

	site.ConstructionMinutesRemaining = math.Max(0, site.ConstructionMinutesRemaining-float64(d.WorkMinutes))
	done := site.ConstructionMinutesRemaining <= economy.CountEpsilon
	if done {
		site.ConstructionMinutesRemaining = 0
		site.IsConstructed = true
	}
	if err := tx.UpsertBuilding(ctx, site); err != nil {
		return err
	}
	if ct == nil {
		return nil
	}

	delta, reason := r.tuning.TrustConstructionProgress, "construction progress on "+site.BuildingID
	if done {
		ct.Status = economy.ContractCompleted
		if err := tx.UpsertContract(ctx, ct); err != nil {
			return err
		}
		delta, reason = r.tuning.TrustConstructionComplete, "construction of "+site.BuildingID+" completed"
	}
	if delta == 0 || ct.Buyer == "" || ct.Seller == "" {
		return nil
	}
	return r.trust.Adjust(ctx, tx, ct.Seller, ct.Buyer, delta, reason, now)
}

// eat consumes one unit of food, or buys a meal at a tavern, and stamps the
// time of the meal.
func (r *Resolver) eat(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	d, ok := a.Details.(activity.MealDetails)
	if !ok {
		return fmt.Errorf("%w: meal without details", ErrIntegrity)
	}
	switch a.Type {
	case activity.EatFromInventory:
		if err := adjust(ctx, tx, economy.CarriedBy(a.Citizen, d.ResourceType, d.Owner), -1, nil); err != nil {
			return err
		}
	case activity.EatAtHome:
		home, err := building(ctx, tx, a.ToBuilding)
		if err != nil {
			return err
		}
		if err := adjust(ctx, tx, economy.StoredIn(home.BuildingID, d.ResourceType, d.Owner), -1, nil); err != nil {
			return err
		}
	case activity.EatAtTavern:
		tavern, err := building(ctx, tx, a.ToBuilding)
		if err != nil {
			return err
		}
		op := d.Operator
		if op == "" {
			op = tavern.Operator()
		}
		if op == "" {
			return fmt.Errorf("%w: tavern %s has no operator", ErrIntegrity, tavern.BuildingID)
		}
		if err := pay(ctx, tx, a.Citizen, op, d.Price, "tavern_meal", tavern.BuildingID,
			"meal at "+tavern.BuildingID, now); err != nil {
			return err
		}
	}
	return r.fed(ctx, tx, a.Citizen, now)
}

func (r *Resolver) fed(ctx context.Context, tx persistence.Tx, username string, now time.Time) error {
	c, err := citizen(ctx, tx, username)
	if err != nil {
		return err
	}
	c.AteAt = &now
	return tx.UpsertCitizen(ctx, c)
}

// fish lands the catch at the water point. What does not fit in the
// fisherman's hands goes back in the lagoon. An emergency catch is partly
// eaten on the spot.
func (r *Resolver) fish(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	if err := r.travel(ctx, tx, a, now); err != nil {
		return err
	}
	yield := a.ResourceAmount(catalog.ResourceFish)
	if d, ok := a.Details.(activity.FishingDetails); ok && yield == 0 {
		yield = d.Yield
	}
	rows, err := carried(ctx, tx, a.Citizen)
	if err != nil {
		return err
	}
	catch := economy.Floor(math.Min(yield, r.needs.RemainingCapacity(a.Citizen, rows)))
	if catch < yield-economy.CountEpsilon {
		a.AddNote("landed %.3f of %.3f fish", catch, yield)
	}
	if catch > economy.CountEpsilon {
		key := economy.CarriedBy(a.Citizen, catalog.ResourceFish, a.Citizen)
		if err := adjust(ctx, tx, key, catch, nil); err != nil {
			return err
		}
	}

	if a.Type != activity.EmergencyFishing {
		return nil
	}
	if catch < 1-economy.CountEpsilon {
		a.AddNote("catch too small to eat")
		return nil
	}
	if err := adjust(ctx, tx, economy.CarriedBy(a.Citizen, catalog.ResourceFish, a.Citizen), -1, nil); err != nil {
		return err
	}
	return r.fed(ctx, tx, a.Citizen, now)
}

// checkBusiness records that the operator looked over the books.
func (r *Resolver) checkBusiness(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	b, err := building(ctx, tx, a.ToBuilding)
	if err != nil {
		return err
	}
	if err := relocate(ctx, tx, a.Citizen, b.Position); err != nil {
		return err
	}
	b.CheckedAt = &now
	return tx.UpsertBuilding(ctx, b)
}

func sortedTypes(m map[string]float64) []string {
	return catalog.Recipe{Inputs: m}.InputTypes()
}
