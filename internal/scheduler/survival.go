// Survival handlers: departure, hunger, fishing, and a roof for the night.
package scheduler

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/world"
)

// departureTime is how long leaving takes when the map has no exit points.
const departureTime = 10 * time.Minute

// leaveVenice sends a visitor home once their stay is over or their purse
// runs low. Goods carried for others are delivered first.
func (s *Scheduler) leaveVenice(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if c.SocialClass != agents.ClassForestieri || !c.InVenice {
		return nil, nil
	}
	due := c.DepartAt != nil && !w.Now.Before(*c.DepartAt)
	broke := c.Ducats < s.tuning.LeaveBelow()
	if !due && !broke {
		return nil, nil
	}
	if len(courierRows(w.Carried(c.Username))) > 0 {
		return nil, nil
	}

	exits := s.catalog.Geography.ExitPoints
	if len(exits) == 0 {
		return timed(activity.LeaveVenice, c, w, departureTime), nil
	}
	return nearestReachable(ctx, s, c, w, exits,
		func(p world.Position) world.Position { return p },
		func(ctx context.Context, p world.Position) (*activity.Activity, error) {
			return s.journey(ctx, activity.LeaveVenice, c, w, p, 0)
		})
}

// emergencyFishing lets a starving fisherman with nothing to eat catch a meal.
func (s *Scheduler) emergencyFishing(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if !s.needs.IsStarving(c, w.Now) || !isFisherman(c, w) {
		return nil, nil
	}
	if _, ok := s.ownFood(w.Carried(c.Username), c.Username); ok {
		return nil, nil
	}
	if s.period(c, w) == agents.PeriodRest {
		return nil, nil
	}
	return s.goFishing(ctx, c, w, activity.EmergencyFishing, s.tuning.EmergencyFishingYield)
}

// fishing is the daily work of fishermen who have no workshop.
func (s *Scheduler) fishing(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if !isFisherman(c, w) || s.period(c, w) != agents.PeriodWork {
		return nil, nil
	}
	if s.needs.IsFull(c.Username, w.Carried(c.Username)) {
		return nil, nil
	}
	return s.goFishing(ctx, c, w, activity.Fishing, s.tuning.FishingYield)
}

func isFisherman(c *agents.Citizen, w *World) bool {
	home := w.Home(c.Username)
	return home != nil && home.Type == catalog.TypeFishermansCottage && w.Workplace(c.Username) == nil
}

func (s *Scheduler) goFishing(ctx context.Context, c *agents.Citizen, w *World, t activity.Type, yield float64) (*activity.Activity, error) {
	var spots []catalog.WaterPoint
	for _, wp := range s.catalog.Geography.WaterPoints {
		if wp.HasFish {
			spots = append(spots, wp)
		}
	}
	return nearestReachable(ctx, s, c, w, spots,
		func(wp catalog.WaterPoint) world.Position { return wp.Position },
		func(ctx context.Context, wp catalog.WaterPoint) (*activity.Activity, error) {
			a, err := s.journey(ctx, t, c, w, wp.Position, s.tuning.Fishing())
			if a == nil || err != nil {
				return nil, err
			}
			a.Resources = []activity.ResourceAmount{{ResourceID: catalog.ResourceFish, Amount: yield}}
			a.Details = activity.FishingDetails{WaterPoint: wp.ID, Yield: yield}
			return a, nil
		})
}

// emergencyEat feeds a starving citizen by any means available.
func (s *Scheduler) emergencyEat(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if !s.needs.IsStarving(c, w.Now) {
		return nil, nil
	}
	return s.meal(ctx, c, w)
}

// eat feeds a hungry citizen.
func (s *Scheduler) eat(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if !s.needs.IsHungry(c, w.Now) {
		return nil, nil
	}
	return s.meal(ctx, c, w)
}

// meal tries carried food, then food at home, then a tavern the citizen can
// afford.
func (s *Scheduler) meal(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if r, ok := s.ownFood(w.Carried(c.Username), c.Username); ok {
		a := timed(activity.EatFromInventory, c, w, s.tuning.Eat())
		a.Resources = []activity.ResourceAmount{{ResourceID: r.Type, Amount: 1}}
		a.Details = activity.MealDetails{ResourceType: r.Type, Owner: c.Username}
		return a, nil
	}

	if home := w.Home(c.Username); home != nil {
		if r, ok := s.ownFood(w.Stored(home.BuildingID), c.Username); ok {
			if c.At(home.Position) {
				a := timed(activity.EatAtHome, c, w, s.tuning.Eat())
				a.FromBuilding = home.BuildingID
				a.ToBuilding = home.BuildingID
				a.Resources = []activity.ResourceAmount{{ResourceID: r.Type, Amount: 1}}
				a.Details = activity.MealDetails{ResourceType: r.Type, Owner: c.Username}
				return a, nil
			}
			a, err := s.travelTo(ctx, activity.GotoHome, c, w, home)
			if a != nil || err != nil {
				return a, err
			}
		}
	}

	price := s.tuning.TavernMeal()
	if c.Ducats < price {
		return nil, nil
	}
	taverns := w.Buildings(func(b *world.Building) bool {
		return b.SubCategory == catalog.SubCategoryTavern && b.IsConstructed && b.Operator() != ""
	})
	return nearestReachable(ctx, s, c, w, taverns, buildingPos,
		func(ctx context.Context, b *world.Building) (*activity.Activity, error) {
			if c.At(b.Position) {
				a := timed(activity.EatAtTavern, c, w, s.tuning.Eat())
				a.ToBuilding = b.BuildingID
				a.Details = activity.MealDetails{Price: price, Operator: b.Operator()}
				return a, nil
			}
			a, err := s.travelTo(ctx, activity.GotoLocation, c, w, b)
			if a != nil {
				a.Details = activity.LocationDetails{Purpose: activity.EatAtTavern.String()}
			}
			return a, err
		})
}

// ownFood picks a whole unit of food owned by the citizen from rows, lowest
// type name first so the choice is stable.
func (s *Scheduler) ownFood(rows []economy.Resource, username string) (economy.Resource, bool) {
	var food []economy.Resource
	for _, r := range rows {
		if r.Owner == username && r.DeliverTo == "" && s.catalog.IsFood(r.Type) && r.Count >= 1-economy.CountEpsilon {
			food = append(food, r)
		}
	}
	if len(food) == 0 {
		return economy.Resource{}, false
	}
	sort.Slice(food, func(i, j int) bool { return food[i].Type < food[j].Type })
	return food[0], true
}

// shelter puts citizens to bed during their rest period: at home, or at the
// nearest inn for the homeless.
func (s *Scheduler) shelter(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.period(c, w) != agents.PeriodRest {
		return nil, nil
	}
	if home := w.Home(c.Username); home != nil {
		return s.restAt(ctx, c, w, home, activity.GotoHome)
	}
	inns := w.Buildings(func(b *world.Building) bool {
		return b.SubCategory == catalog.SubCategoryInn && b.IsConstructed
	})
	return nearestReachable(ctx, s, c, w, inns, buildingPos,
		func(ctx context.Context, b *world.Building) (*activity.Activity, error) {
			return s.restAt(ctx, c, w, b, activity.TravelToInn)
		})
}

// restAt rests in b until the current period ends, travelling there first if
// needed.
func (s *Scheduler) restAt(ctx context.Context, c *agents.Citizen, w *World, b *world.Building, travel activity.Type) (*activity.Activity, error) {
	if !c.At(b.Position) {
		return s.travelTo(ctx, travel, c, w, b)
	}
	end := s.calendar.PeriodEnd(c.SocialClass, workplaceType(c, w), w.Now)
	a := activity.New(activity.Rest, c.Username, w.Now, end)
	a.FromBuilding = b.BuildingID
	a.ToBuilding = b.BuildingID
	return a, nil
}

// courierRows returns the carried rows marked for delivery elsewhere.
func courierRows(rows []economy.Resource) []economy.Resource {
	var out []economy.Resource
	for _, r := range rows {
		if r.DeliverTo != "" {
			out = append(out, r)
		}
	}
	return out
}

// ownGoods returns carried rows the citizen owns outright.
func ownGoods(rows []economy.Resource, username string) []economy.Resource {
	var out []economy.Resource
	for _, r := range rows {
		if r.DeliverTo == "" && r.Owner == username {
			out = append(out, r)
		}
	}
	return out
}

func minutesOf(n float64) time.Duration {
	return time.Duration(math.Ceil(n)) * time.Minute
}
