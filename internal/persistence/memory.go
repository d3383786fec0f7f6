package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/social"
	"github.com/talgya/serenissima/internal/world"
)

// Memory is an in-process Store. Committed state is never mutated in place:
// a transaction works on a private copy that replaces the committed state on
// success, so readers can use whatever snapshot they grabbed without locks.
type Memory struct {
	mu      sync.RWMutex // guards st
	writeMu sync.Mutex   // serializes transactions
	st      *state
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{st: newState()}
}

type state struct {
	citizens      map[string]agents.Citizen
	buildings     map[string]world.Building
	contracts     map[string]economy.Contract
	resources     map[economy.ResourceKey]economy.Resource
	activities    map[string]activity.Activity
	relationships map[[2]string]social.Relationship
	transactions  []economy.Transaction
	notifications []social.Notification
}

func newState() *state {
	return &state{
		citizens:      map[string]agents.Citizen{},
		buildings:     map[string]world.Building{},
		contracts:     map[string]economy.Contract{},
		resources:     map[economy.ResourceKey]economy.Resource{},
		activities:    map[string]activity.Activity{},
		relationships: map[[2]string]social.Relationship{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.citizens {
		c.citizens[k] = *cloneCitizen(&v)
	}
	for k, v := range s.buildings {
		c.buildings[k] = *cloneBuilding(&v)
	}
	for k, v := range s.contracts {
		c.contracts[k] = *cloneContract(&v)
	}
	for k, v := range s.resources {
		c.resources[k] = v
	}
	for k, v := range s.activities {
		c.activities[k] = *cloneActivity(&v)
	}
	for k, v := range s.relationships {
		c.relationships[k] = *cloneRelationship(&v)
	}
	c.transactions = append([]economy.Transaction(nil), s.transactions...)
	c.notifications = append([]social.Notification(nil), s.notifications...)
	return c
}

func (m *Memory) snapshot() *state {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st
}

// InTx runs fn against a private copy of the state and publishes it on
// success.
func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.snapshot().clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}

	m.mu.Lock()
	m.st = work
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) Citizen(ctx context.Context, username string) (*agents.Citizen, error) {
	return m.snapshot().Citizen(ctx, username)
}

func (m *Memory) Citizens(ctx context.Context, f CitizenFilter) ([]*agents.Citizen, error) {
	return m.snapshot().Citizens(ctx, f)
}

func (m *Memory) Building(ctx context.Context, id string) (*world.Building, error) {
	return m.snapshot().Building(ctx, id)
}

func (m *Memory) Buildings(ctx context.Context, f BuildingFilter) ([]*world.Building, error) {
	return m.snapshot().Buildings(ctx, f)
}

func (m *Memory) Contract(ctx context.Context, id string) (*economy.Contract, error) {
	return m.snapshot().Contract(ctx, id)
}

func (m *Memory) Contracts(ctx context.Context, f ContractFilter) ([]*economy.Contract, error) {
	return m.snapshot().Contracts(ctx, f)
}

func (m *Memory) Resource(ctx context.Context, key economy.ResourceKey) (economy.Resource, error) {
	return m.snapshot().Resource(ctx, key)
}

func (m *Memory) Resources(ctx context.Context, f ResourceFilter) ([]economy.Resource, error) {
	return m.snapshot().Resources(ctx, f)
}

func (m *Memory) Activity(ctx context.Context, id string) (*activity.Activity, error) {
	return m.snapshot().Activity(ctx, id)
}

func (m *Memory) Activities(ctx context.Context, f ActivityFilter) ([]*activity.Activity, error) {
	return m.snapshot().Activities(ctx, f)
}

func (m *Memory) Relationship(ctx context.Context, a, b string) (*social.Relationship, error) {
	return m.snapshot().Relationship(ctx, a, b)
}

func (m *Memory) Transactions(ctx context.Context, party string) ([]economy.Transaction, error) {
	return m.snapshot().Transactions(ctx, party)
}

func (m *Memory) Notifications(ctx context.Context, citizen string) ([]social.Notification, error) {
	return m.snapshot().Notifications(ctx, citizen)
}

// Reads over a state snapshot.

func (s *state) Citizen(_ context.Context, username string) (*agents.Citizen, error) {
	c, ok := s.citizens[username]
	if !ok {
		return nil, fmt.Errorf("citizen %s: %w", username, ErrNotFound)
	}
	return cloneCitizen(&c), nil
}

func (s *state) Citizens(_ context.Context, f CitizenFilter) ([]*agents.Citizen, error) {
	var out []*agents.Citizen
	for _, c := range s.citizens {
		if f.InVenice != nil && c.InVenice != *f.InVenice {
			continue
		}
		if len(f.Usernames) > 0 && !containsString(f.Usernames, c.Username) {
			continue
		}
		out = append(out, cloneCitizen(&c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *state) Building(_ context.Context, id string) (*world.Building, error) {
	b, ok := s.buildings[id]
	if !ok {
		return nil, fmt.Errorf("building %s: %w", id, ErrNotFound)
	}
	return cloneBuilding(&b), nil
}

func (s *state) Buildings(_ context.Context, f BuildingFilter) ([]*world.Building, error) {
	var out []*world.Building
	for _, b := range s.buildings {
		if len(f.IDs) > 0 && !containsString(f.IDs, b.BuildingID) {
			continue
		}
		if !matchString(f.Type, b.Type) || !matchString(f.Category, b.Category) ||
			!matchString(f.SubCategory, b.SubCategory) || !matchString(f.Owner, b.Owner) ||
			!matchString(f.RunBy, b.RunBy) || !matchString(f.Occupant, b.Occupant) {
			continue
		}
		if f.OperatedBy != "" && b.Operator() != f.OperatedBy {
			continue
		}
		if f.Constructed != nil && b.IsConstructed != *f.Constructed {
			continue
		}
		out = append(out, cloneBuilding(&b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BuildingID < out[j].BuildingID })
	return out, nil
}

func (s *state) Contract(_ context.Context, id string) (*economy.Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %s: %w", id, ErrNotFound)
	}
	return cloneContract(&c), nil
}

func (s *state) Contracts(_ context.Context, f ContractFilter) ([]*economy.Contract, error) {
	var out []*economy.Contract
	for _, c := range s.contracts {
		if len(f.IDs) > 0 && !containsString(f.IDs, c.ContractID) {
			continue
		}
		if !matchString(string(f.Type), string(c.Type)) || !matchString(string(f.Status), string(c.Status)) ||
			!matchString(f.Buyer, c.Buyer) || !matchString(f.Seller, c.Seller) ||
			!matchString(f.ResourceType, c.ResourceType) ||
			!matchString(f.BuyerBuilding, c.BuyerBuilding) || !matchString(f.SellerBuilding, c.SellerBuilding) {
			continue
		}
		if !f.ActiveAt.IsZero() && !c.ActiveAt(f.ActiveAt) {
			continue
		}
		out = append(out, cloneContract(&c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ContractID < out[j].ContractID
	})
	return out, nil
}

func (s *state) Resource(_ context.Context, key economy.ResourceKey) (economy.Resource, error) {
	r, ok := s.resources[key]
	if !ok {
		return economy.Resource{}, fmt.Errorf("resource %s: %w", key, ErrNotFound)
	}
	return r, nil
}

func (s *state) Resources(_ context.Context, f ResourceFilter) ([]economy.Resource, error) {
	var out []economy.Resource
	for _, r := range s.resources {
		if !matchString(f.Type, r.Type) || !matchString(string(f.AssetType), string(r.AssetType)) ||
			!matchString(f.Asset, r.Asset) || !matchString(f.Owner, r.Owner) ||
			!matchString(f.DeliverTo, r.DeliverTo) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceKey.String() < out[j].ResourceKey.String() })
	return out, nil
}

func (s *state) Activity(_ context.Context, id string) (*activity.Activity, error) {
	a, ok := s.activities[id]
	if !ok {
		return nil, fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	return cloneActivity(&a), nil
}

func (s *state) Activities(_ context.Context, f ActivityFilter) ([]*activity.Activity, error) {
	var out []*activity.Activity
	for _, a := range s.activities {
		if !matchActivity(f, &a) {
			continue
		}
		out = append(out, cloneActivity(&a))
	}
	sortActivities(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchActivity(f ActivityFilter, a *activity.Activity) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, a.ActivityID) {
		return false
	}
	if !matchString(f.Citizen, a.Citizen) || !matchString(string(f.Status), string(a.Status)) ||
		!matchString(f.ContractID, a.ContractID) {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == a.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.EndedBy.IsZero() && a.EndDate.After(f.EndedBy) {
		return false
	}
	if !f.ActiveAt.IsZero() && (f.ActiveAt.Before(a.StartDate) || !f.ActiveAt.Before(a.EndDate)) {
		return false
	}
	if !f.ProcessedAfter.IsZero() && (a.ProcessedAt == nil || !a.ProcessedAt.After(f.ProcessedAfter)) {
		return false
	}
	return true
}

func sortActivities(as []*activity.Activity) {
	sort.Slice(as, func(i, j int) bool {
		if !as[i].EndDate.Equal(as[j].EndDate) {
			return as[i].EndDate.Before(as[j].EndDate)
		}
		return as[i].ActivityID < as[j].ActivityID
	})
}

func (s *state) Relationship(_ context.Context, a, b string) (*social.Relationship, error) {
	c1, c2 := social.Pair(a, b)
	r, ok := s.relationships[[2]string{c1, c2}]
	if !ok {
		return nil, nil
	}
	return cloneRelationship(&r), nil
}

func (s *state) Transactions(_ context.Context, party string) ([]economy.Transaction, error) {
	var out []economy.Transaction
	for _, t := range s.transactions {
		if party == "" || t.Buyer == party || t.Seller == party {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *state) Notifications(_ context.Context, citizen string) ([]social.Notification, error) {
	var out []social.Notification
	for _, n := range s.notifications {
		if citizen == "" || n.Citizen == citizen {
			out = append(out, n)
		}
	}
	return out, nil
}

// memTx writes into a private state copy.
type memTx struct {
	*state
}

func (tx *memTx) UpsertCitizen(_ context.Context, c *agents.Citizen) error {
	if c.Username == "" {
		return fmt.Errorf("upsert citizen: empty username")
	}
	tx.citizens[c.Username] = *cloneCitizen(c)
	return nil
}

func (tx *memTx) UpsertBuilding(_ context.Context, b *world.Building) error {
	if b.BuildingID == "" {
		return fmt.Errorf("upsert building: empty id")
	}
	tx.buildings[b.BuildingID] = *cloneBuilding(b)
	return nil
}

func (tx *memTx) UpsertContract(_ context.Context, c *economy.Contract) error {
	if c.ContractID == "" {
		return fmt.Errorf("upsert contract: empty id")
	}
	tx.contracts[c.ContractID] = *cloneContract(c)
	return nil
}

func (tx *memTx) PutResource(_ context.Context, r economy.Resource) error {
	if r.Count < -economy.CountEpsilon {
		return fmt.Errorf("put %s = %.6f: %w", r.ResourceKey, r.Count, ErrNegativeCount)
	}
	if r.IsEmpty() {
		delete(tx.resources, r.ResourceKey)
		return nil
	}
	tx.resources[r.ResourceKey] = r
	return nil
}

func (tx *memTx) CreateActivity(_ context.Context, a *activity.Activity) error {
	if _, dup := tx.activities[a.ActivityID]; dup {
		return fmt.Errorf("create activity %s: duplicate id", a.ActivityID)
	}
	for _, other := range tx.activities {
		if other.Citizen == a.Citizen && overlaps(&other, a) {
			return fmt.Errorf("create %s for %s: %w", a.Type, a.Citizen, ErrCitizenBusy)
		}
	}
	tx.activities[a.ActivityID] = *cloneActivity(a)
	return nil
}

func (tx *memTx) UpdateActivity(_ context.Context, a *activity.Activity) error {
	if _, ok := tx.activities[a.ActivityID]; !ok {
		return fmt.Errorf("update activity %s: %w", a.ActivityID, ErrNotFound)
	}
	tx.activities[a.ActivityID] = *cloneActivity(a)
	return nil
}

func (tx *memTx) SaveRelationship(_ context.Context, r *social.Relationship) error {
	c1, c2 := social.Pair(r.Citizen1, r.Citizen2)
	cp := cloneRelationship(r)
	cp.Citizen1, cp.Citizen2 = c1, c2
	tx.relationships[[2]string{c1, c2}] = *cp
	return nil
}

func (tx *memTx) RecordTransaction(_ context.Context, t *economy.Transaction) error {
	t.ID = int64(len(tx.transactions) + 1)
	tx.transactions = append(tx.transactions, *t)
	return nil
}

func (tx *memTx) Notify(_ context.Context, n *social.Notification) error {
	n.ID = int64(len(tx.notifications) + 1)
	tx.notifications = append(tx.notifications, *n)
	return nil
}

// overlaps reports whether an unresolved activity blocks a new one.
func overlaps(existing, incoming *activity.Activity) bool {
	if existing.Status != activity.StatusCreated {
		return false
	}
	return existing.EndDate.After(incoming.StartDate) && incoming.EndDate.After(existing.StartDate)
}

func clonePosition(p *world.Position) *world.Position {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneCitizen(c *agents.Citizen) *agents.Citizen {
	cp := *c
	cp.Position = clonePosition(c.Position)
	cp.AteAt = cloneTime(c.AteAt)
	cp.DepartAt = cloneTime(c.DepartAt)
	return &cp
}

func cloneBuilding(b *world.Building) *world.Building {
	cp := *b
	cp.CheckedAt = cloneTime(b.CheckedAt)
	return &cp
}

func cloneContract(c *economy.Contract) *economy.Contract {
	cp := *c
	cp.EndAt = cloneTime(c.EndAt)
	return &cp
}

func cloneActivity(a *activity.Activity) *activity.Activity {
	cp := *a
	cp.Resources = append([]activity.ResourceAmount(nil), a.Resources...)
	cp.Path = append([]world.PathPoint(nil), a.Path...)
	cp.ProcessedAt = cloneTime(a.ProcessedAt)
	if d, ok := a.Details.(activity.ProductionDetails); ok {
		d.Inputs = cloneCounts(d.Inputs)
		d.Outputs = cloneCounts(d.Outputs)
		cp.Details = d
	}
	return &cp
}

func cloneCounts(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	cp := make(map[string]float64, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneRelationship(r *social.Relationship) *social.Relationship {
	cp := *r
	cp.Notes = append([]string(nil), r.Notes...)
	return &cp
}
