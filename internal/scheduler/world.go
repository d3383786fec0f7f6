package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/persistence"
	"github.com/talgya/serenissima/internal/social"
	"github.com/talgya/serenissima/internal/world"
)

// World is a read-only snapshot of the city taken once per schedule pass.
// Handlers read it concurrently. The only mutable parts are the claim table,
// which stops two citizens from being sent after the same stock in one pass,
// and the notice list collected for the orchestrator to persist.
type World struct {
	Now     time.Time
	Catalog *catalog.Catalog

	citizens   map[string]*agents.Citizen
	buildings  map[string]*world.Building
	sorted     []*world.Building
	contracts  []*economy.Contract
	homes      map[string]*world.Building
	workplaces map[string]*world.Building
	carried    map[string][]economy.Resource
	stored     map[string][]economy.Resource
	failed     map[string]bool

	mu      sync.Mutex
	claims  map[string]float64
	notices []social.Notification
}

// Snapshot is the raw material of a World.
type Snapshot struct {
	Citizens  []*agents.Citizen
	Buildings []*world.Building
	Contracts []*economy.Contract
	Resources []economy.Resource
	// Failed are recently failed activities; their contracts are on cooldown.
	Failed []*activity.Activity
}

// NewWorld indexes a snapshot. Only contracts active at now are kept.
func NewWorld(now time.Time, cat *catalog.Catalog, s Snapshot) *World {
	w := &World{
		Now:        now,
		Catalog:    cat,
		citizens:   make(map[string]*agents.Citizen, len(s.Citizens)),
		buildings:  make(map[string]*world.Building, len(s.Buildings)),
		homes:      make(map[string]*world.Building),
		workplaces: make(map[string]*world.Building),
		carried:    make(map[string][]economy.Resource),
		stored:     make(map[string][]economy.Resource),
		failed:     make(map[string]bool),
		claims:     make(map[string]float64),
	}
	for _, c := range s.Citizens {
		w.citizens[c.Username] = c
	}

	w.sorted = append(w.sorted, s.Buildings...)
	sort.Slice(w.sorted, func(i, j int) bool { return w.sorted[i].BuildingID < w.sorted[j].BuildingID })
	for _, b := range w.sorted {
		w.buildings[b.BuildingID] = b
		if b.Occupant == "" {
			continue
		}
		switch b.Category {
		case catalog.CategoryHome:
			if _, ok := w.homes[b.Occupant]; !ok {
				w.homes[b.Occupant] = b
			}
		case catalog.CategoryBusiness:
			if _, ok := w.workplaces[b.Occupant]; !ok {
				w.workplaces[b.Occupant] = b
			}
		}
	}

	for _, c := range s.Contracts {
		if c.ActiveAt(now) {
			w.contracts = append(w.contracts, c)
		}
	}
	sort.Slice(w.contracts, func(i, j int) bool { return w.contracts[i].ContractID < w.contracts[j].ContractID })

	for _, r := range s.Resources {
		if r.IsEmpty() {
			continue
		}
		switch r.AssetType {
		case economy.AssetCitizen:
			w.carried[r.Asset] = append(w.carried[r.Asset], r)
		case economy.AssetBuilding:
			w.stored[r.Asset] = append(w.stored[r.Asset], r)
		}
	}

	for _, a := range s.Failed {
		if a.ContractID != "" {
			w.failed[a.ContractID] = true
		}
	}
	return w
}

// LoadWorld reads a snapshot from the store. Activities that failed within
// cooldown of now put their contracts on cooldown.
func LoadWorld(ctx context.Context, r persistence.Reader, cat *catalog.Catalog, now time.Time, cooldown time.Duration) (*World, error) {
	inVenice := true
	citizens, err := r.Citizens(ctx, persistence.CitizenFilter{InVenice: &inVenice})
	if err != nil {
		return nil, fmt.Errorf("load citizens: %w", err)
	}
	buildings, err := r.Buildings(ctx, persistence.BuildingFilter{})
	if err != nil {
		return nil, fmt.Errorf("load buildings: %w", err)
	}
	contracts, err := r.Contracts(ctx, persistence.ContractFilter{Status: economy.ContractActive, ActiveAt: now})
	if err != nil {
		return nil, fmt.Errorf("load contracts: %w", err)
	}
	resources, err := r.Resources(ctx, persistence.ResourceFilter{})
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	failed, err := r.Activities(ctx, persistence.ActivityFilter{
		Status:         activity.StatusFailed,
		ProcessedAfter: now.Add(-cooldown),
	})
	if err != nil {
		return nil, fmt.Errorf("load failed activities: %w", err)
	}

	return NewWorld(now, cat, Snapshot{
		Citizens:  citizens,
		Buildings: buildings,
		Contracts: contracts,
		Resources: resources,
		Failed:    failed,
	}), nil
}

func (w *World) Citizen(username string) *agents.Citizen { return w.citizens[username] }

// Citizens returns everyone in the snapshot, ordered by username.
func (w *World) Citizens() []*agents.Citizen {
	out := make([]*agents.Citizen, 0, len(w.citizens))
	for _, c := range w.citizens {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (w *World) Building(id string) *world.Building { return w.buildings[id] }

// Buildings returns the buildings matching keep, ordered by id.
func (w *World) Buildings(keep func(*world.Building) bool) []*world.Building {
	var out []*world.Building
	for _, b := range w.sorted {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

func (w *World) Home(username string) *world.Building { return w.homes[username] }

func (w *World) Workplace(username string) *world.Building { return w.workplaces[username] }

// Carried returns the rows a citizen holds.
func (w *World) Carried(username string) []economy.Resource { return w.carried[username] }

// Stored returns the rows held in a building.
func (w *World) Stored(buildingID string) []economy.Resource { return w.stored[buildingID] }

// Contracts returns active contracts of one type, ordered by id.
func (w *World) Contracts(t economy.ContractType) []*economy.Contract {
	var out []*economy.Contract
	for _, c := range w.contracts {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// RecentlyFailed reports whether an activity against the contract failed
// within the cooldown window.
func (w *World) RecentlyFailed(contractID string) bool {
	return contractID != "" && w.failed[contractID]
}

// Pool is a quantity several citizens may be sent after in one pass, such as
// a building's stock of one resource or a contract's outstanding amount.
type Pool struct {
	Key       string
	Available float64
}

// Claim reserves up to want units from every pool at once and returns the
// amount granted, which is bounded by the least remaining pool. Claims only
// live for the pass.
func (w *World) Claim(want float64, pools ...Pool) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	granted := want
	for _, p := range pools {
		granted = min(granted, p.Available-w.claims[p.Key])
	}
	granted = economy.Floor(granted)
	if granted <= economy.CountEpsilon {
		return 0
	}
	for _, p := range pools {
		w.claims[p.Key] += granted
	}
	return granted
}

// Notify queues a notification for the orchestrator to persist after the
// pass.
func (w *World) Notify(n social.Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notices = append(w.notices, n)
}

// Notices returns and clears the queued notifications.
func (w *World) Notices() []social.Notification {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.notices
	w.notices = nil
	return out
}
