// Package persistence provides the world-state store: typed access to
// citizens, buildings, contracts, resources, activities, relationships,
// ledger entries, and notifications.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/social"
	"github.com/talgya/serenissima/internal/world"
)

var (
	// ErrNotFound is returned when a record looked up by id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCitizenBusy is returned when creating an activity that would overlap
	// another unresolved activity of the same citizen.
	ErrCitizenBusy = errors.New("citizen already has an activity")

	// ErrNegativeCount is returned when a resource write would go below zero.
	ErrNegativeCount = errors.New("resource count would be negative")
)

// CitizenFilter selects citizens. Zero fields match everything.
type CitizenFilter struct {
	InVenice  *bool
	Usernames []string
}

// BuildingFilter selects buildings. Zero fields match everything.
type BuildingFilter struct {
	IDs         []string
	Type        string
	Category    string
	SubCategory string
	Owner       string
	RunBy       string
	Occupant    string
	// OperatedBy matches RunBy, or Owner when RunBy is empty.
	OperatedBy  string
	Constructed *bool
}

// ContractFilter selects contracts. Zero fields match everything.
type ContractFilter struct {
	IDs            []string
	Type           economy.ContractType
	Status         economy.ContractStatus
	Buyer          string
	Seller         string
	ResourceType   string
	BuyerBuilding  string
	SellerBuilding string
	// ActiveAt keeps contracts whose validity window contains the instant.
	ActiveAt time.Time
}

// ResourceFilter selects inventory rows. Zero fields match everything.
type ResourceFilter struct {
	Type      string
	AssetType economy.AssetType
	Asset     string
	Owner     string
	DeliverTo string
}

// ActivityFilter selects activities. Zero fields match everything.
type ActivityFilter struct {
	IDs        []string
	Citizen    string
	Status     activity.Status
	Types      []activity.Type
	ContractID string
	// EndedBy keeps activities whose EndDate is at or before the instant.
	EndedBy time.Time
	// ActiveAt keeps activities whose window contains the instant.
	ActiveAt time.Time
	// ProcessedAfter keeps activities resolved after the instant.
	ProcessedAfter time.Time
	Limit          int
}

// Reader is the query side of the store, available inside and outside a
// transaction.
type Reader interface {
	Citizen(ctx context.Context, username string) (*agents.Citizen, error)
	Citizens(ctx context.Context, f CitizenFilter) ([]*agents.Citizen, error)
	Building(ctx context.Context, id string) (*world.Building, error)
	Buildings(ctx context.Context, f BuildingFilter) ([]*world.Building, error)
	Contract(ctx context.Context, id string) (*economy.Contract, error)
	Contracts(ctx context.Context, f ContractFilter) ([]*economy.Contract, error)
	Resource(ctx context.Context, key economy.ResourceKey) (economy.Resource, error)
	Resources(ctx context.Context, f ResourceFilter) ([]economy.Resource, error)
	Activity(ctx context.Context, id string) (*activity.Activity, error)
	Activities(ctx context.Context, f ActivityFilter) ([]*activity.Activity, error)
	// Relationship returns nil, nil for a pair that has never interacted.
	Relationship(ctx context.Context, a, b string) (*social.Relationship, error)
	Transactions(ctx context.Context, party string) ([]economy.Transaction, error)
	Notifications(ctx context.Context, citizen string) ([]social.Notification, error)
}

// Tx is a unit of work. Writes become visible to other readers only when the
// function passed to Store.InTx returns nil.
type Tx interface {
	Reader
	UpsertCitizen(ctx context.Context, c *agents.Citizen) error
	UpsertBuilding(ctx context.Context, b *world.Building) error
	UpsertContract(ctx context.Context, c *economy.Contract) error
	// PutResource writes a row's count, deleting the row when the count is at
	// or below economy.CountEpsilon.
	PutResource(ctx context.Context, r economy.Resource) error
	// CreateActivity fails with ErrCitizenBusy when the citizen already has a
	// created activity whose window overlaps the new one.
	CreateActivity(ctx context.Context, a *activity.Activity) error
	UpdateActivity(ctx context.Context, a *activity.Activity) error
	SaveRelationship(ctx context.Context, r *social.Relationship) error
	RecordTransaction(ctx context.Context, t *economy.Transaction) error
	Notify(ctx context.Context, n *social.Notification) error
}

// Store is the world-state store.
type Store interface {
	Reader
	// InTx runs fn in a transaction, committing when it returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Seed is a batch of records loaded in one transaction by tests and the
// CLI's fixture loader.
type Seed struct {
	Citizens      []*agents.Citizen      `json:"citizens"`
	Buildings     []*world.Building      `json:"buildings"`
	Contracts     []*economy.Contract    `json:"contracts"`
	Resources     []economy.Resource     `json:"resources"`
	Activities    []*activity.Activity   `json:"activities"`
	Relationships []*social.Relationship `json:"relationships"`
}

// Apply writes every record of the seed.
func (s *Seed) Apply(ctx context.Context, store Store) error {
	return store.InTx(ctx, func(tx Tx) error {
		for _, c := range s.Citizens {
			if err := tx.UpsertCitizen(ctx, c); err != nil {
				return err
			}
		}
		for _, b := range s.Buildings {
			if err := tx.UpsertBuilding(ctx, b); err != nil {
				return err
			}
		}
		for _, c := range s.Contracts {
			if err := tx.UpsertContract(ctx, c); err != nil {
				return err
			}
		}
		for _, r := range s.Resources {
			if err := tx.PutResource(ctx, r); err != nil {
				return err
			}
		}
		for _, a := range s.Activities {
			if err := tx.CreateActivity(ctx, a); err != nil {
				return err
			}
		}
		for _, r := range s.Relationships {
			if err := tx.SaveRelationship(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// HomeOf returns the citizen's home, or nil when homeless.
func HomeOf(ctx context.Context, r Reader, username string) (*world.Building, error) {
	return firstBuilding(ctx, r, BuildingFilter{Occupant: username, Category: "home"})
}

// WorkplaceOf returns the business the citizen works at, or nil.
func WorkplaceOf(ctx context.Context, r Reader, username string) (*world.Building, error) {
	return firstBuilding(ctx, r, BuildingFilter{Occupant: username, Category: "business"})
}

func firstBuilding(ctx context.Context, r Reader, f BuildingFilter) (*world.Building, error) {
	bs, err := r.Buildings(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(bs) == 0 {
		return nil, nil
	}
	return bs[0], nil
}

func matchString(want, got string) bool {
	return want == "" || want == got
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
