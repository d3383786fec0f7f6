// Labour handlers: deliveries, construction, stock management, production,
// porters, and owners checking on their businesses.
package scheduler

import (
	"context"
	"math"
	"sort"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/world"
)

// deliverCarried drops off goods the citizen carries for someone else.
// Cargo for the citizen's own workplace goes there as a goto_work.
func (s *Scheduler) deliverCarried(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	rows := courierRows(w.Carried(c.Username))
	if len(rows) == 0 {
		return nil, nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DeliverTo != rows[j].DeliverTo {
			return rows[i].DeliverTo < rows[j].DeliverTo
		}
		return rows[i].Type < rows[j].Type
	})
	destID := rows[0].DeliverTo
	dest := w.Building(destID)
	if dest == nil {
		s.logger.WarnContext(ctx, "carried goods bound for unknown building", "building", destID)
		return nil, nil
	}

	if wp := w.Workplace(c.Username); wp != nil && wp.BuildingID == destID {
		return s.travelTo(ctx, activity.GotoWork, c, w, wp)
	}

	a, err := s.journey(ctx, activity.DeliverResourceBatch, c, w, dest.Position, 0)
	if a == nil || err != nil {
		return nil, err
	}
	a.ToBuilding = destID
	for _, r := range rows {
		if r.DeliverTo == destID {
			a.Resources = append(a.Resources, activity.ResourceAmount{ResourceID: r.Type, Amount: r.Count})
		}
	}
	a.Details = activity.DeliveryDetails{Owner: rows[0].Owner}
	return a, nil
}

// construction sends builders of a construction workshop to the sites their
// workshop has contracted for.
func (s *Scheduler) construction(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.period(c, w) != agents.PeriodWork {
		return nil, nil
	}
	wp := w.Workplace(c.Username)
	if wp == nil || wp.SubCategory != catalog.SubCategoryConstruction {
		return nil, nil
	}

	for _, ct := range w.Contracts(economy.ContractConstruction) {
		if ct.SellerBuilding != wp.BuildingID || w.RecentlyFailed(ct.ContractID) {
			continue
		}
		site := w.Building(ct.BuyerBuilding)
		if site == nil || site.IsConstructed {
			continue
		}
		if c.At(site.Position) {
			work := float64(s.tuning.ConstructionShiftMinutes)
			if site.ConstructionMinutesRemaining > 0 {
				work = math.Min(work, math.Ceil(site.ConstructionMinutesRemaining))
			}
			work = math.Max(work, 1)
			a := timed(activity.ConstructBuilding, c, w, minutesOf(work))
			a.FromBuilding = wp.BuildingID
			a.ToBuilding = site.BuildingID
			a.ContractID = ct.ContractID
			a.Details = activity.ConstructionDetails{WorkMinutes: int(work), Workshop: wp.BuildingID}
			return a, nil
		}
		a, err := s.travelTo(ctx, activity.GotoConstructionSite, c, w, site)
		if err != nil {
			return nil, err
		}
		if a != nil {
			a.ContractID = ct.ContractID
			return a, nil
		}
	}
	return nil, nil
}

// storageOffload moves surplus stock from a crowded workplace into rented
// warehouse space.
func (s *Scheduler) storageOffload(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.period(c, w) != agents.PeriodWork {
		return nil, nil
	}
	wp := w.Workplace(c.Username)
	if wp == nil || !c.At(wp.Position) {
		return nil, nil
	}
	capacity := s.catalog.StorageCapacity(wp.Type)
	stored := w.Stored(wp.BuildingID)
	if capacity <= 0 || economy.TotalCount(stored) <= s.tuning.StorageOffloadRatio*capacity {
		return nil, nil
	}
	carry := s.needs.RemainingCapacity(c.Username, w.Carried(c.Username))
	if carry <= economy.CountEpsilon {
		return nil, nil
	}

	op := wp.Operator()
	for _, ct := range w.Contracts(economy.ContractStorageQuery) {
		if ct.Buyer != op || (ct.BuyerBuilding != "" && ct.BuyerBuilding != wp.BuildingID) || w.RecentlyFailed(ct.ContractID) {
			continue
		}
		storage := w.Building(ct.SellerBuilding)
		if storage == nil {
			continue
		}
		have := economy.CountOf(stored, ct.ResourceType, op)
		if have <= economy.CountEpsilon {
			continue
		}
		held := w.Stored(storage.BuildingID)
		rented := ct.TargetAmount - economy.CountOf(held, ct.ResourceType, op)
		space := s.catalog.StorageCapacity(storage.Type) - economy.TotalCount(held)
		want := math.Min(math.Min(have, carry), math.Min(rented, space))
		if want <= economy.CountEpsilon {
			continue
		}

		a, err := s.journey(ctx, activity.DeliverToStorage, c, w, storage.Position, s.tuning.StorageWork())
		if err != nil {
			return nil, err
		}
		if a == nil {
			continue
		}
		amount := w.Claim(want,
			Pool{Key: "stock:" + wp.BuildingID + ":" + ct.ResourceType, Available: have},
			Pool{Key: "rent:" + ct.ContractID, Available: math.Min(rented, space)},
		)
		if amount <= 0 {
			continue
		}
		a.FromBuilding = wp.BuildingID
		a.ToBuilding = storage.BuildingID
		a.ContractID = ct.ContractID
		a.Resources = []activity.ResourceAmount{{ResourceID: ct.ResourceType, Amount: amount}}
		a.Details = activity.DeliveryDetails{Owner: op}
		return a, nil
	}
	return nil, nil
}

// runnableRecipe returns the first recipe whose inputs are in stock and whose
// outputs fit once the inputs are consumed.
func (s *Scheduler) runnableRecipe(wp *world.Building, w *World) (catalog.Recipe, bool) {
	bt, ok := s.catalog.Building(wp.Type)
	if !ok {
		return catalog.Recipe{}, false
	}
	op := wp.Operator()
	stored := w.Stored(wp.BuildingID)
	capacity := s.catalog.StorageCapacity(wp.Type)

	for _, rec := range bt.Recipes {
		in, out := 0.0, 0.0
		ready := true
		for _, t := range rec.InputTypes() {
			if economy.CountOf(stored, t, op)+economy.CountEpsilon < rec.Inputs[t] {
				ready = false
				break
			}
			in += rec.Inputs[t]
		}
		if !ready {
			continue
		}
		for _, t := range rec.OutputTypes() {
			out += rec.Outputs[t]
		}
		if capacity > 0 && economy.TotalCount(stored)-in+out > capacity+economy.CountEpsilon {
			continue
		}
		return rec, true
	}
	return catalog.Recipe{}, false
}

// production works the first recipe the workplace can run.
func (s *Scheduler) production(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.period(c, w) != agents.PeriodWork {
		return nil, nil
	}
	wp := w.Workplace(c.Username)
	if wp == nil || !c.At(wp.Position) {
		return nil, nil
	}
	rec, ok := s.runnableRecipe(wp, w)
	if !ok {
		return nil, nil
	}

	d := s.tuning.Production()
	if rec.Minutes > 0 {
		d = minutesOf(float64(rec.Minutes))
	}
	a := timed(activity.Production, c, w, d)
	a.FromBuilding = wp.BuildingID
	a.ToBuilding = wp.BuildingID
	for _, t := range rec.OutputTypes() {
		a.Resources = append(a.Resources, activity.ResourceAmount{ResourceID: t, Amount: rec.Outputs[t]})
	}
	a.Details = activity.ProductionDetails{
		Operator: wp.Operator(),
		Inputs:   copyAmounts(rec.Inputs),
		Outputs:  copyAmounts(rec.Outputs),
	}
	return a, nil
}

func copyAmounts(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// provisioning fetches missing recipe inputs for the workplace when no recipe
// can run.
func (s *Scheduler) provisioning(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.period(c, w) != agents.PeriodWork {
		return nil, nil
	}
	wp := w.Workplace(c.Username)
	if wp == nil {
		return nil, nil
	}
	bt, ok := s.catalog.Building(wp.Type)
	if !ok || len(bt.Recipes) == 0 {
		return nil, nil
	}
	if _, ok := s.runnableRecipe(wp, w); ok {
		return nil, nil
	}
	if s.needs.IsFull(c.Username, w.Carried(c.Username)) {
		return nil, nil
	}

	op := wp.Operator()
	stored := w.Stored(wp.BuildingID)
	for _, rec := range bt.Recipes {
		for _, t := range rec.InputTypes() {
			need := rec.Inputs[t] - economy.CountOf(stored, t, op)
			if need <= economy.CountEpsilon {
				continue
			}
			a, err := s.provision(ctx, c, w, wp, t, need)
			if a != nil || err != nil {
				return a, err
			}
		}
	}
	return nil, nil
}

// fetchPlan is a pickup the scheduler wants to make.
type fetchPlan struct {
	typ      activity.Type
	from, to *world.Building
	contract string
	resource string
	want     float64
	pools    []Pool
	details  activity.Details
}

// fetch routes the citizen to the source and claims the goods. It declines
// when the source is unreachable or the goods are already claimed this pass.
func (s *Scheduler) fetch(ctx context.Context, c *agents.Citizen, w *World, p fetchPlan) (*activity.Activity, error) {
	if economy.Floor(p.want) <= economy.CountEpsilon {
		return nil, nil
	}
	a, err := s.journey(ctx, p.typ, c, w, p.from.Position, 0)
	if a == nil || err != nil {
		return nil, err
	}
	amount := w.Claim(p.want, p.pools...)
	if amount <= 0 {
		return nil, nil
	}
	a.FromBuilding = p.from.BuildingID
	if p.to != nil {
		a.ToBuilding = p.to.BuildingID
	}
	a.ContractID = p.contract
	a.Resources = []activity.ResourceAmount{{ResourceID: p.resource, Amount: amount}}
	a.Details = p.details
	return a, nil
}

func stockPool(b *world.Building, resource string, available float64) Pool {
	return Pool{Key: "stock:" + b.BuildingID + ":" + resource, Available: available}
}

func funds(w *World, username string) economy.Ducats {
	if c := w.Citizen(username); c != nil {
		return c.Ducats
	}
	return 0
}

// provision tries, in order: the operator's own warehouse space, a standing
// recurrent supplier, the cheapest public offer, and finally anyone holding
// the resource at catalog price. Contracts on cooldown are skipped.
func (s *Scheduler) provision(ctx context.Context, c *agents.Citizen, w *World, wp *world.Building, resource string, need float64) (*activity.Activity, error) {
	op := wp.Operator()
	carry := s.needs.RemainingCapacity(c.Username, w.Carried(c.Username))
	purse := funds(w, op)
	want := math.Min(need, carry)

	for _, ct := range w.Contracts(economy.ContractStorageQuery) {
		if ct.Buyer != op || ct.ResourceType != resource || w.RecentlyFailed(ct.ContractID) {
			continue
		}
		src := w.Building(ct.SellerBuilding)
		if src == nil {
			continue
		}
		avail := economy.CountOf(w.Stored(src.BuildingID), resource, op)
		a, err := s.fetch(ctx, c, w, fetchPlan{
			typ: activity.FetchFromStorage, from: src, to: wp, contract: ct.ContractID, resource: resource,
			want:    math.Min(want, avail),
			pools:   []Pool{stockPool(src, resource, avail)},
			details: activity.TradeDetails{Buyer: op, Seller: op, DeliverTo: wp.BuildingID, Purpose: "provisioning"},
		})
		if a != nil || err != nil {
			return a, err
		}
	}

	buy := func(ct *economy.Contract) (*activity.Activity, error) {
		src := w.Building(ct.SellerBuilding)
		if src == nil || ct.Seller == op {
			return nil, nil
		}
		avail := economy.CountOf(w.Stored(src.BuildingID), resource, ct.Seller)
		affordable := economy.Affordable(purse, ct.PricePerResource)
		return s.fetch(ctx, c, w, fetchPlan{
			typ: activity.FetchResource, from: src, to: wp, contract: ct.ContractID, resource: resource,
			want:  math.Min(math.Min(want, avail), affordable),
			pools: []Pool{stockPool(src, resource, avail)},
			details: activity.TradeDetails{
				Buyer: op, Seller: ct.Seller, PricePerResource: ct.PricePerResource,
				DeliverTo: wp.BuildingID, Purpose: "provisioning",
			},
		})
	}

	for _, ct := range w.Contracts(economy.ContractRecurrent) {
		if ct.Buyer != op || ct.ResourceType != resource || w.RecentlyFailed(ct.ContractID) {
			continue
		}
		if ct.BuyerBuilding != "" && ct.BuyerBuilding != wp.BuildingID {
			continue
		}
		if a, err := buy(ct); a != nil || err != nil {
			return a, err
		}
	}

	var offers []*economy.Contract
	for _, ct := range w.Contracts(economy.ContractPublicSell) {
		if ct.ResourceType == resource && !w.RecentlyFailed(ct.ContractID) {
			offers = append(offers, ct)
		}
	}
	sort.SliceStable(offers, func(i, j int) bool { return offers[i].PricePerResource < offers[j].PricePerResource })
	for _, ct := range offers {
		if a, err := buy(ct); a != nil || err != nil {
			return a, err
		}
	}

	rt, ok := s.catalog.Resource(resource)
	if !ok {
		return nil, nil
	}
	price := rt.BasePrice()
	holders := w.Buildings(func(b *world.Building) bool {
		if b.BuildingID == wp.BuildingID || b.Operator() == "" || b.Operator() == op {
			return false
		}
		if b.Category != catalog.CategoryBusiness && b.Category != catalog.CategoryStorage {
			return false
		}
		return economy.CountOf(w.Stored(b.BuildingID), resource, b.Operator()) > economy.CountEpsilon
	})
	return nearestReachable(ctx, s, c, w, holders, buildingPos,
		func(ctx context.Context, src *world.Building) (*activity.Activity, error) {
			avail := economy.CountOf(w.Stored(src.BuildingID), resource, src.Operator())
			return s.fetch(ctx, c, w, fetchPlan{
				typ: activity.FetchResource, from: src, to: wp, resource: resource,
				want:  math.Min(math.Min(want, avail), economy.Affordable(purse, price)),
				pools: []Pool{stockPool(src, resource, avail)},
				details: activity.TradeDetails{
					Buyer: op, Seller: src.Operator(), PricePerResource: price,
					DeliverTo: wp.BuildingID, Purpose: "opportunistic",
				},
			})
		})
}

// porterDispatch sends porters to unload galleys for import contracts.
func (s *Scheduler) porterDispatch(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.period(c, w) != agents.PeriodWork {
		return nil, nil
	}
	wp := w.Workplace(c.Username)
	if wp == nil || wp.SubCategory != catalog.SubCategoryPorter {
		return nil, nil
	}
	carry := s.needs.RemainingCapacity(c.Username, w.Carried(c.Username))
	if carry <= economy.CountEpsilon {
		return nil, nil
	}

	for _, ct := range w.Contracts(economy.ContractImport) {
		if w.RecentlyFailed(ct.ContractID) || ct.TargetAmount <= economy.CountEpsilon {
			continue
		}
		galley := w.Building(ct.SellerBuilding)
		dest := w.Building(ct.BuyerBuilding)
		if galley == nil || dest == nil || galley.Type != catalog.TypeMerchantGalley {
			continue
		}
		stock := economy.CountOf(w.Stored(galley.BuildingID), ct.ResourceType, ct.Seller)
		if stock <= economy.CountEpsilon {
			continue
		}
		affordable := economy.Affordable(funds(w, ct.Buyer), ct.PricePerResource)
		a, err := s.fetch(ctx, c, w, fetchPlan{
			typ: activity.FetchFromGalley, from: galley, to: dest, contract: ct.ContractID, resource: ct.ResourceType,
			want: math.Min(math.Min(carry, stock), math.Min(ct.TargetAmount, affordable)),
			pools: []Pool{
				stockPool(galley, ct.ResourceType, stock),
				{Key: "import:" + ct.ContractID, Available: ct.TargetAmount},
			},
			details: activity.GalleyDetails{
				Buyer: ct.Buyer, Merchant: ct.Seller, PricePerResource: ct.PricePerResource,
				TreasuryPercent: s.tuning.GalleyTreasuryPercent, DeliverTo: dest.BuildingID,
			},
		})
		if a != nil || err != nil {
			return a, err
		}
	}
	return nil, nil
}

// businessAudit has owners visit businesses they have not checked on lately.
func (s *Scheduler) businessAudit(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.period(c, w) == agents.PeriodRest {
		return nil, nil
	}
	every := s.tuning.BusinessCheckEvery()
	due := w.Buildings(func(b *world.Building) bool {
		return b.Category == catalog.CategoryBusiness && b.Operator() == c.Username &&
			(b.CheckedAt == nil || w.Now.Sub(*b.CheckedAt) >= every)
	})
	return nearestReachable(ctx, s, c, w, due, buildingPos,
		func(ctx context.Context, b *world.Building) (*activity.Activity, error) {
			if c.At(b.Position) {
				a := timed(activity.CheckBusinessStatus, c, w, s.tuning.BusinessCheck())
				a.ToBuilding = b.BuildingID
				return a, nil
			}
			a, err := s.travelTo(ctx, activity.GotoLocation, c, w, b)
			if a != nil {
				a.Details = activity.LocationDetails{Purpose: activity.CheckBusinessStatus.String()}
			}
			return a, err
		})
}

// gotoWork sends a worker to their workplace during working hours.
func (s *Scheduler) gotoWork(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.period(c, w) != agents.PeriodWork {
		return nil, nil
	}
	wp := w.Workplace(c.Username)
	if wp == nil || c.At(wp.Position) {
		return nil, nil
	}
	return s.travelTo(ctx, activity.GotoWork, c, w, wp)
}
