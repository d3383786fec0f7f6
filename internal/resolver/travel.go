package resolver

import (
	"context"
	"time"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/persistence"
)

// travel moves the citizen to the destination building, or to the end of the
// path for trips with no building, paying for any gondola legs. A pathless
// trip means the citizen was already there.
func (r *Resolver) travel(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	dest, ok := a.Destination()
	if !ok {
		return nil
	}
	if a.ToBuilding != "" {
		b, err := building(ctx, tx, a.ToBuilding)
		if err != nil {
			return err
		}
		dest = b.Position
	}
	if err := r.chargeFees(ctx, tx, a, now); err != nil {
		return err
	}
	return relocate(ctx, tx, a.Citizen, dest)
}

// chargeFees bills the traveller for each gondola segment. The fee goes to
// the operator of the public dock nearest the segment, or to the treasury
// when no dock is in range. A traveller who cannot pay rides free; the
// waiver is noted on the activity.
func (r *Resolver) chargeFees(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	charges := r.fees.Charges(a.Path)
	if len(charges) == 0 {
		return nil
	}
	docks, err := tx.Buildings(ctx, persistence.BuildingFilter{Type: catalog.TypePublicDock})
	if err != nil {
		return err
	}

	for _, ch := range charges {
		payee := Treasury
		if dock := r.fees.NearestDock(docks, ch.Segment); dock != nil && dock.Operator() != "" {
			payee = dock.Operator()
		}
		traveller, err := citizen(ctx, tx, a.Citizen)
		if err != nil {
			return err
		}
		if traveller.Ducats < ch.Amount {
			a.AddNote("gondola fee %s waived: traveller has %s", ch.Amount, traveller.Ducats)
			continue
		}
		if err := pay(ctx, tx, a.Citizen, payee, ch.Amount, "gondola_fee", a.Transporter,
			"gondola segment", now); err != nil {
			return err
		}
	}
	return nil
}

// gotoHome arrives home and stores everything the citizen owns and carries.
func (r *Resolver) gotoHome(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	if err := r.travel(ctx, tx, a, now); err != nil {
		return err
	}
	home, err := persistence.HomeOf(ctx, tx, a.Citizen)
	if err != nil {
		return err
	}
	if home == nil {
		a.AddNote("no home to unload at")
		return nil
	}
	rows, err := carried(ctx, tx, a.Citizen)
	if err != nil {
		return err
	}
	var own []economy.Resource
	for _, row := range rows {
		if row.Owner == a.Citizen && row.DeliverTo == "" {
			own = append(own, row)
		}
	}
	ok, err := r.deposit(ctx, tx, home, own)
	if err != nil {
		return err
	}
	if !ok {
		a.AddNote("home storage full, %.0f units kept in hand", economy.TotalCount(own))
	}
	return nil
}

// gotoWork arrives at work and unloads goods meant for the workplace: those
// marked for it and those its operator owns, including an operator's own
// goods when they work there themselves. When the batch does not fit the
// goods stay with the citizen.
func (r *Resolver) gotoWork(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	if err := r.travel(ctx, tx, a, now); err != nil {
		return err
	}
	wp, err := persistence.WorkplaceOf(ctx, tx, a.Citizen)
	if err != nil {
		return err
	}
	if wp == nil {
		a.AddNote("no workplace to unload at")
		return nil
	}
	rows, err := carried(ctx, tx, a.Citizen)
	if err != nil {
		return err
	}
	op := wp.Operator()
	var batch []economy.Resource
	for _, row := range rows {
		if row.DeliverTo == wp.BuildingID || (row.DeliverTo == "" && row.Owner == op) {
			batch = append(batch, row)
		}
	}
	ok, err := r.deposit(ctx, tx, wp, batch)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.WarnContext(ctx, "workplace storage full, goods left on citizen",
			"workplace", wp.BuildingID, "units", economy.TotalCount(batch))
		a.AddNote("workplace storage full, %.0f units kept in hand", economy.TotalCount(batch))
	}
	return nil
}

// leave takes a visitor out of the city along with what they own.
func (r *Resolver) leave(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	if err := r.travel(ctx, tx, a, now); err != nil {
		return err
	}
	rows, err := carried(ctx, tx, a.Citizen)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Owner != a.Citizen || row.DeliverTo != "" {
			a.AddNote("left carrying %.0f %s for %s", row.Count, row.Type, row.Owner)
			continue
		}
		row.Count = 0
		if err := tx.PutResource(ctx, row); err != nil {
			return err
		}
	}
	c, err := citizen(ctx, tx, a.Citizen)
	if err != nil {
		return err
	}
	c.InVenice = false
	return tx.UpsertCitizen(ctx, c)
}
