package resolver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/persistence"
)

// arriveAtSource pays the fare and places the citizen at the activity's source
// building.
func (r *Resolver) arriveAtSource(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	src, err := building(ctx, tx, a.FromBuilding)
	if err != nil {
		return err
	}
	if err := r.chargeFees(ctx, tx, a, now); err != nil {
		return err
	}
	return relocate(ctx, tx, a.Citizen, src.Position)
}

// fetchResource buys goods at the source and loads them on the citizen. The
// amount shrinks to what is in stock, what the citizen can carry, and what
// the buyer can afford; nothing left means a successful empty trip.
func (r *Resolver) fetchResource(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	d, ok := a.Details.(activity.TradeDetails)
	if !ok {
		return fmt.Errorf("%w: fetch without trade details", ErrIntegrity)
	}
	if err := r.checkContract(ctx, tx, a, now); err != nil {
		return err
	}
	if err := r.arriveAtSource(ctx, tx, a, now); err != nil {
		return err
	}

	for _, want := range a.Resources {
		key := economy.StoredIn(a.FromBuilding, want.ResourceID, d.Seller)
		stock, err := tx.Resource(ctx, key)
		if err != nil && !isNotFound(err) {
			return err
		}
		rows, err := carried(ctx, tx, a.Citizen)
		if err != nil {
			return err
		}
		buyer, err := citizen(ctx, tx, d.Buyer)
		if err != nil {
			return err
		}

		amount := math.Min(want.Amount, stock.Count)
		amount = math.Min(amount, r.needs.RemainingCapacity(a.Citizen, rows))
		amount = economy.Floor(math.Min(amount, economy.Affordable(buyer.Ducats, d.PricePerResource)))
		if amount <= economy.CountEpsilon {
			a.AddNote("nothing fetched of %.0f %s requested", want.Amount, want.ResourceID)
			continue
		}
		if amount < want.Amount-economy.CountEpsilon {
			a.AddNote("fetched %.3f of %.3f %s", amount, want.Amount, want.ResourceID)
		}

		total := d.PricePerResource.Times(amount)
		if total > buyer.Ducats {
			total = buyer.Ducats
		}
		if err := pay(ctx, tx, d.Buyer, d.Seller, total, "resource_purchase", want.ResourceID,
			fmt.Sprintf("%.3f %s from %s", amount, want.ResourceID, a.FromBuilding), now); err != nil {
			return err
		}
		if err := move(ctx, tx, key, economy.CarriedBy(a.Citizen, want.ResourceID, d.Buyer), amount, d.DeliverTo); err != nil {
			return err
		}
		if d.Buyer != d.Seller && r.tuning.TrustTrade != 0 {
			if err := r.trust.Adjust(ctx, tx, d.Buyer, d.Seller, r.tuning.TrustTrade, "trade: "+want.ResourceID, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// fetchFromStorage collects goods the buyer already owns from rented space.
func (r *Resolver) fetchFromStorage(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	d, ok := a.Details.(activity.TradeDetails)
	if !ok {
		return fmt.Errorf("%w: storage fetch without trade details", ErrIntegrity)
	}
	if err := r.arriveAtSource(ctx, tx, a, now); err != nil {
		return err
	}
	for _, want := range a.Resources {
		key := economy.StoredIn(a.FromBuilding, want.ResourceID, d.Buyer)
		stock, err := tx.Resource(ctx, key)
		if err != nil && !isNotFound(err) {
			return err
		}
		rows, err := carried(ctx, tx, a.Citizen)
		if err != nil {
			return err
		}
		amount := economy.Floor(math.Min(math.Min(want.Amount, stock.Count), r.needs.RemainingCapacity(a.Citizen, rows)))
		if amount <= economy.CountEpsilon {
			a.AddNote("nothing fetched of %.0f %s requested", want.Amount, want.ResourceID)
			continue
		}
		if amount < want.Amount-economy.CountEpsilon {
			a.AddNote("fetched %.3f of %.3f %s", amount, want.Amount, want.ResourceID)
		}
		if err := move(ctx, tx, key, economy.CarriedBy(a.Citizen, want.ResourceID, d.Buyer), amount, d.DeliverTo); err != nil {
			return err
		}
	}
	return nil
}

// fetchFromGalley unloads an import. The whole batch must fit in the
// porter's hands and the buyer must afford all of it. Settlement is two
// legs in the same transaction: the buyer pays the merchant in full, then
// the merchant remits the treasury's share.
func (r *Resolver) fetchFromGalley(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	d, ok := a.Details.(activity.GalleyDetails)
	if !ok {
		return fmt.Errorf("%w: galley fetch without galley details", ErrIntegrity)
	}
	ct, err := r.checkContractLoaded(ctx, tx, a, now)
	if err != nil {
		return err
	}

	rows, err := carried(ctx, tx, a.Citizen)
	if err != nil {
		return err
	}
	batch := 0.0
	for _, want := range a.Resources {
		batch += want.Amount
	}
	if left := r.needs.RemainingCapacity(a.Citizen, rows); batch > left+economy.CountEpsilon {
		return fmt.Errorf("%w: batch of %.3f exceeds carry room %.3f", ErrBusinessRule, batch, left)
	}
	if err := r.arriveAtSource(ctx, tx, a, now); err != nil {
		return err
	}

	for _, want := range a.Resources {
		from := economy.StoredIn(a.FromBuilding, want.ResourceID, d.Merchant)
		if err := move(ctx, tx, from, economy.CarriedBy(a.Citizen, want.ResourceID, d.Buyer), want.Amount, d.DeliverTo); err != nil {
			return err
		}
		total := d.PricePerResource.Times(want.Amount)
		if err := pay(ctx, tx, d.Buyer, d.Merchant, total, "import_purchase", want.ResourceID,
			fmt.Sprintf("%.3f %s from galley %s", want.Amount, want.ResourceID, a.FromBuilding), now); err != nil {
			return err
		}
		share, _ := economy.Split(total, d.TreasuryPercent)
		if err := pay(ctx, tx, d.Merchant, Treasury, share, "import_duty", want.ResourceID,
			fmt.Sprintf("%d%% of %s", d.TreasuryPercent, total), now); err != nil {
			return err
		}
	}

	if ct != nil && ct.Type == economy.ContractImport {
		ct.TargetAmount -= batch
		if ct.TargetAmount <= economy.CountEpsilon {
			ct.TargetAmount = 0
			ct.Status = economy.ContractCompleted
		}
		if err := tx.UpsertContract(ctx, ct); err != nil {
			return err
		}
	}
	return nil
}

// deliverBatch drops off goods carried for a building. All carried rows
// marked for the building go in, or none do.
func (r *Resolver) deliverBatch(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	dest, err := building(ctx, tx, a.ToBuilding)
	if err != nil {
		return err
	}
	if err := r.travel(ctx, tx, a, now); err != nil {
		return err
	}
	rows, err := carried(ctx, tx, a.Citizen)
	if err != nil {
		return err
	}
	var batch []economy.Resource
	for _, row := range rows {
		if row.DeliverTo == dest.BuildingID {
			batch = append(batch, row)
		}
	}
	if len(batch) == 0 {
		a.AddNote("nothing carried for %s", dest.BuildingID)
		return nil
	}
	ok, err := r.deposit(ctx, tx, dest, batch)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s cannot take %.3f units", ErrBusinessRule, dest.BuildingID, economy.TotalCount(batch))
	}
	return nil
}

// deliverToStorage carries the operator's surplus from the workplace into
// rented warehouse space. The rented amount and the warehouse's capacity
// both bound the batch.
func (r *Resolver) deliverToStorage(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	d, ok := a.Details.(activity.DeliveryDetails)
	if !ok {
		return fmt.Errorf("%w: storage delivery without owner", ErrIntegrity)
	}
	ct, err := r.checkContractLoaded(ctx, tx, a, now)
	if err != nil {
		return err
	}
	storage, err := building(ctx, tx, a.ToBuilding)
	if err != nil {
		return err
	}

	batch := 0.0
	for _, want := range a.Resources {
		batch += want.Amount
	}
	space, err := r.freeSpace(ctx, tx, storage)
	if err != nil {
		return err
	}
	if batch > space+economy.CountEpsilon {
		return fmt.Errorf("%w: %s has room for %.3f, batch is %.3f", ErrBusinessRule, storage.BuildingID, space, batch)
	}
	if ct != nil {
		held, err := tx.Resources(ctx, persistence.ResourceFilter{
			AssetType: economy.AssetBuilding, Asset: storage.BuildingID, Owner: d.Owner, Type: ct.ResourceType,
		})
		if err != nil {
			return err
		}
		if economy.TotalCount(held)+batch > ct.TargetAmount+economy.CountEpsilon {
			return fmt.Errorf("%w: batch exceeds the %.3f units rented", ErrBusinessRule, ct.TargetAmount)
		}
	}

	for _, want := range a.Resources {
		from := economy.StoredIn(a.FromBuilding, want.ResourceID, d.Owner)
		to := economy.StoredIn(storage.BuildingID, want.ResourceID, d.Owner)
		if err := move(ctx, tx, from, to, want.Amount, ""); err != nil {
			return err
		}
	}
	return r.travel(ctx, tx, a, now)
}

// checkContract fails the activity when its contract is gone or closed.
func (r *Resolver) checkContract(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) error {
	_, err := r.checkContractLoaded(ctx, tx, a, now)
	return err
}

func (r *Resolver) checkContractLoaded(ctx context.Context, tx persistence.Tx, a *activity.Activity, now time.Time) (*economy.Contract, error) {
	if a.ContractID == "" {
		return nil, nil
	}
	ct, err := tx.Contract(ctx, a.ContractID)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: contract %s", ErrIntegrity, a.ContractID)
	}
	if err != nil {
		return nil, err
	}
	if !ct.ActiveAt(now) {
		return nil, fmt.Errorf("%w: contract %s is %s", ErrBusinessRule, ct.ContractID, ct.Status)
	}
	return ct, nil
}
