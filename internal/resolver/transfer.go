package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/persistence"
	"github.com/talgya/serenissima/internal/social"
	"github.com/talgya/serenissima/internal/world"
)

// Treasury is the account that collects the state's share of trade and fees
// nobody else can claim.
const Treasury = social.AdminRecipient

// citizen loads a citizen that must exist.
func citizen(ctx context.Context, tx persistence.Tx, username string) (*agents.Citizen, error) {
	c, err := tx.Citizen(ctx, username)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("%w: citizen %s", ErrIntegrity, username)
	}
	return c, err
}

// building loads a building that must exist.
func building(ctx context.Context, tx persistence.Tx, id string) (*world.Building, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: activity names no building", ErrIntegrity)
	}
	b, err := tx.Building(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("%w: building %s", ErrIntegrity, id)
	}
	return b, err
}

func isNotFound(err error) bool {
	return errors.Is(err, persistence.ErrNotFound)
}

// account loads a payee. The treasury is opened on first use.
func account(ctx context.Context, tx persistence.Tx, username string) (*agents.Citizen, error) {
	c, err := tx.Citizen(ctx, username)
	if errors.Is(err, persistence.ErrNotFound) && username == Treasury {
		return &agents.Citizen{Username: Treasury, FirstName: "Consiglio", LastName: "dei Dieci", SocialClass: agents.ClassNobili}, nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("%w: payee %s", ErrIntegrity, username)
	}
	return c, err
}

// pay moves amount from payer to payee and writes the ledger entry. The payer
// must hold the full amount.
func pay(ctx context.Context, tx persistence.Tx, payer, payee string, amount economy.Ducats, kind, asset, notes string, now time.Time) error {
	if amount == 0 || payer == payee {
		return nil
	}
	if amount < 0 {
		return fmt.Errorf("%w: negative payment %s", ErrIntegrity, amount)
	}
	from, err := citizen(ctx, tx, payer)
	if err != nil {
		return err
	}
	if from.Ducats < amount {
		return fmt.Errorf("%w: %s has %s, needs %s for %s", ErrBusinessRule, payer, from.Ducats, amount, kind)
	}
	to, err := account(ctx, tx, payee)
	if err != nil {
		return err
	}

	from.Ducats -= amount
	to.Ducats += amount
	if err := tx.UpsertCitizen(ctx, from); err != nil {
		return err
	}
	if err := tx.UpsertCitizen(ctx, to); err != nil {
		return err
	}
	return tx.RecordTransaction(ctx, &economy.Transaction{
		Type:       kind,
		Asset:      asset,
		Seller:     payee,
		Buyer:      payer,
		Price:      amount,
		Notes:      notes,
		ExecutedAt: now,
	})
}

// adjust changes a resource row by delta. A row that would go negative is a
// business-rule failure; a row reaching zero is deleted by the store. When
// deliverTo is non-nil it replaces the row's delivery mark.
func adjust(ctx context.Context, tx persistence.Tx, key economy.ResourceKey, delta float64, deliverTo *string) error {
	row, err := tx.Resource(ctx, key)
	if errors.Is(err, persistence.ErrNotFound) {
		row = economy.Resource{ResourceKey: key}
	} else if err != nil {
		return err
	}
	if row.Count+delta < -economy.CountEpsilon {
		return fmt.Errorf("%w: %s holds %.3f, cannot remove %.3f", ErrBusinessRule, key, row.Count, -delta)
	}
	row.Count += delta
	if row.Count < 0 {
		row.Count = 0
	}
	if deliverTo != nil {
		row.DeliverTo = *deliverTo
	}
	return tx.PutResource(ctx, row)
}

// move transfers amount units between two rows.
func move(ctx context.Context, tx persistence.Tx, from, to economy.ResourceKey, amount float64, deliverTo string) error {
	if err := adjust(ctx, tx, from, -amount, nil); err != nil {
		return err
	}
	return adjust(ctx, tx, to, amount, &deliverTo)
}

// carried returns what a citizen holds.
func carried(ctx context.Context, tx persistence.Tx, username string) ([]economy.Resource, error) {
	return tx.Resources(ctx, persistence.ResourceFilter{AssetType: economy.AssetCitizen, Asset: username})
}

// freeSpace is how many more units fit in a building. Buildings whose type
// declares no capacity are unbounded.
func (r *Resolver) freeSpace(ctx context.Context, tx persistence.Tx, b *world.Building) (float64, error) {
	capacity := r.catalog.StorageCapacity(b.Type)
	if capacity <= 0 {
		return math.Inf(1), nil
	}
	rows, err := tx.Resources(ctx, persistence.ResourceFilter{AssetType: economy.AssetBuilding, Asset: b.BuildingID})
	if err != nil {
		return 0, err
	}
	return capacity - economy.TotalCount(rows), nil
}

// deposit moves whole carried rows into a building's storage, all or none.
func (r *Resolver) deposit(ctx context.Context, tx persistence.Tx, b *world.Building, rows []economy.Resource) (bool, error) {
	if len(rows) == 0 {
		return true, nil
	}
	space, err := r.freeSpace(ctx, tx, b)
	if err != nil {
		return false, err
	}
	if economy.TotalCount(rows) > space+economy.CountEpsilon {
		return false, nil
	}
	for _, row := range rows {
		to := economy.StoredIn(b.BuildingID, row.Type, row.Owner)
		if err := move(ctx, tx, row.ResourceKey, to, row.Count, ""); err != nil {
			return false, err
		}
	}
	return true, nil
}

// relocate puts a citizen at p.
func relocate(ctx context.Context, tx persistence.Tx, username string, p world.Position) error {
	c, err := citizen(ctx, tx, username)
	if err != nil {
		return err
	}
	c.Position = &p
	return tx.UpsertCitizen(ctx, c)
}
