package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/persistence"
	"github.com/talgya/serenissima/internal/social"
	"github.com/talgya/serenissima/internal/world"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]persistence.Store {
	t.Helper()
	db, err := persistence.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]persistence.Store{
		"memory": persistence.NewMemory(),
		"sqlite": db,
	}
}

func seed() *persistence.Seed {
	ate := t0.Add(-2 * time.Hour)
	return &persistence.Seed{
		Citizens: []*agents.Citizen{
			{Username: "anna", SocialClass: agents.ClassPopolani, Position: &world.Position{Lat: 45.43, Lng: 12.33}, Ducats: 100 * economy.Ducat, AteAt: &ate, InVenice: true},
			{Username: "zeno", SocialClass: agents.ClassForestieri, Ducats: 5 * economy.Ducat, InVenice: false},
		},
		Buildings: []*world.Building{
			{BuildingID: "home-1", Type: "canal_house", Category: "home", Owner: "zeno", Occupant: "anna", Position: world.Position{Lat: 45.431, Lng: 12.331}, IsConstructed: true},
			{BuildingID: "bak-1", Type: "bakery", Category: "business", Owner: "zeno", RunBy: "anna", Occupant: "anna", Position: world.Position{Lat: 45.432, Lng: 12.332}, IsConstructed: true},
		},
		Contracts: []*economy.Contract{
			{ContractID: "c-1", Type: economy.ContractPublicSell, Seller: "zeno", ResourceType: "bread", PricePerResource: 6 * economy.Ducat, TargetAmount: 10, SellerBuilding: "bak-1", CreatedAt: t0.Add(-time.Hour), Status: economy.ContractActive},
		},
		Resources: []economy.Resource{
			{ResourceKey: economy.StoredIn("bak-1", "bread", "anna"), Count: 12},
			{ResourceKey: economy.CarriedBy("anna", "flour", "zeno"), Count: 3, DeliverTo: "bak-1"},
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, seed().Apply(ctx, store))

			anna, err := store.Citizen(ctx, "anna")
			require.NoError(t, err)
			assert.Equal(t, agents.ClassPopolani, anna.SocialClass)
			require.NotNil(t, anna.Position)
			assert.InDelta(t, 45.43, anna.Position.Lat, 1e-9)
			assert.Equal(t, 100*economy.Ducat, anna.Ducats)
			require.NotNil(t, anna.AteAt)
			assert.True(t, anna.AteAt.Equal(t0.Add(-2*time.Hour)))

			zeno, err := store.Citizen(ctx, "zeno")
			require.NoError(t, err)
			assert.Nil(t, zeno.Position)

			_, err = store.Citizen(ctx, "nobody")
			assert.True(t, errors.Is(err, persistence.ErrNotFound))

			inVenice := true
			cs, err := store.Citizens(ctx, persistence.CitizenFilter{InVenice: &inVenice})
			require.NoError(t, err)
			require.Len(t, cs, 1)
			assert.Equal(t, "anna", cs[0].Username)

			home, err := persistence.HomeOf(ctx, store, "anna")
			require.NoError(t, err)
			require.NotNil(t, home)
			assert.Equal(t, "home-1", home.BuildingID)

			work, err := persistence.WorkplaceOf(ctx, store, "anna")
			require.NoError(t, err)
			assert.Equal(t, "bak-1", work.BuildingID)

			operated, err := store.Buildings(ctx, persistence.BuildingFilter{OperatedBy: "zeno"})
			require.NoError(t, err)
			require.Len(t, operated, 1)
			assert.Equal(t, "home-1", operated[0].BuildingID)

			active, err := store.Contracts(ctx, persistence.ContractFilter{Type: economy.ContractPublicSell, ActiveAt: t0})
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, 6*economy.Ducat, active[0].PricePerResource)

			carried, err := store.Resources(ctx, persistence.ResourceFilter{AssetType: economy.AssetCitizen, Asset: "anna"})
			require.NoError(t, err)
			require.Len(t, carried, 1)
			assert.Equal(t, "bak-1", carried[0].DeliverTo)
		})
	}
}

func TestPutResourceDeletesEmptyRows(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := economy.StoredIn("b", "fish", "anna")

			require.NoError(t, store.InTx(ctx, func(tx persistence.Tx) error {
				return tx.PutResource(ctx, economy.Resource{ResourceKey: key, Count: 2})
			}))
			require.NoError(t, store.InTx(ctx, func(tx persistence.Tx) error {
				return tx.PutResource(ctx, economy.Resource{ResourceKey: key, Count: 1e-9})
			}))
			_, err := store.Resource(ctx, key)
			assert.True(t, errors.Is(err, persistence.ErrNotFound))

			err = store.InTx(ctx, func(tx persistence.Tx) error {
				return tx.PutResource(ctx, economy.Resource{ResourceKey: key, Count: -1})
			})
			assert.True(t, errors.Is(err, persistence.ErrNegativeCount))
		})
	}
}

func TestInTxRollsBack(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, seed().Apply(ctx, store))

			boom := errors.New("boom")
			err := store.InTx(ctx, func(tx persistence.Tx) error {
				c, err := tx.Citizen(ctx, "anna")
				if err != nil {
					return err
				}
				c.Ducats = 0
				if err := tx.UpsertCitizen(ctx, c); err != nil {
					return err
				}
				inside, err := tx.Citizen(ctx, "anna")
				if err != nil {
					return err
				}
				assert.Equal(t, economy.Ducats(0), inside.Ducats)
				return boom
			})
			assert.ErrorIs(t, err, boom)

			anna, err := store.Citizen(ctx, "anna")
			require.NoError(t, err)
			assert.Equal(t, 100*economy.Ducat, anna.Ducats)
		})
	}
}

func TestCreateActivityRejectsOverlap(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := activity.New(activity.Rest, "anna", t0, t0.Add(time.Hour))
			first.Details = activity.IdleDetails{Reason: "tired"}
			require.NoError(t, store.InTx(ctx, func(tx persistence.Tx) error {
				return tx.CreateActivity(ctx, first)
			}))

			second := activity.New(activity.Idle, "anna", t0.Add(30*time.Minute), t0.Add(90*time.Minute))
			err := store.InTx(ctx, func(tx persistence.Tx) error {
				return tx.CreateActivity(ctx, second)
			})
			assert.ErrorIs(t, err, persistence.ErrCitizenBusy)

			// Once the first is resolved the slot is free again.
			now := t0.Add(time.Hour)
			first.Status = activity.StatusProcessed
			first.ProcessedAt = &now
			require.NoError(t, store.InTx(ctx, func(tx persistence.Tx) error {
				if err := tx.UpdateActivity(ctx, first); err != nil {
					return err
				}
				return tx.CreateActivity(ctx, second)
			}))

			got, err := store.Activity(ctx, first.ActivityID)
			require.NoError(t, err)
			assert.Equal(t, activity.StatusProcessed, got.Status)
			assert.Equal(t, activity.IdleDetails{Reason: "tired"}, got.Details)

			recent, err := store.Activities(ctx, persistence.ActivityFilter{Status: activity.StatusProcessed, ProcessedAfter: t0})
			require.NoError(t, err)
			assert.Len(t, recent, 1)

			activeNow, err := store.Activities(ctx, persistence.ActivityFilter{Citizen: "anna", ActiveAt: t0.Add(80 * time.Minute)})
			require.NoError(t, err)
			require.Len(t, activeNow, 1)
			assert.Equal(t, second.ActivityID, activeNow[0].ActivityID)
		})
	}
}

func TestRelationshipsAndLedger(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ledger := social.NewTrustLedger()
			require.NoError(t, store.InTx(ctx, func(tx persistence.Tx) error {
				if err := ledger.Adjust(ctx, tx, "zeno", "anna", 5, "built", t0); err != nil {
					return err
				}
				return tx.RecordTransaction(ctx, &economy.Transaction{
					Type: "resource_purchase", Seller: "zeno", Buyer: "anna", Price: 30 * economy.Ducat, ExecutedAt: t0,
				})
			}))

			rel, err := store.Relationship(ctx, "anna", "zeno")
			require.NoError(t, err)
			require.NotNil(t, rel)
			assert.Equal(t, "anna", rel.Citizen1)
			assert.Equal(t, 5.0, rel.TrustScore)
			assert.Len(t, rel.Notes, 1)

			none, err := store.Relationship(ctx, "anna", "marco")
			require.NoError(t, err)
			assert.Nil(t, none)

			txs, err := store.Transactions(ctx, "zeno")
			require.NoError(t, err)
			require.Len(t, txs, 1)
			assert.Equal(t, 30*economy.Ducat, txs[0].Price)
		})
	}
}
