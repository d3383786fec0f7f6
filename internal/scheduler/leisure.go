// Leisure handlers: what citizens do with their free time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/kin"
	"github.com/talgya/serenissima/internal/social"
	"github.com/talgya/serenissima/internal/world"
)

// strategyChannel is the persona channel leisure questions are asked on.
const strategyChannel = "activities"

// aiLeisure asks an AI persona how it wants to spend its free time. A reply
// without a usable decision leaves the choice to the remaining handlers.
func (s *Scheduler) aiLeisure(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.sender == nil || !c.IsAI || s.period(c, w) != agents.PeriodLeisure {
		return nil, nil
	}

	addSystem := map[string]any{
		"ducats":       c.Ducats.Float(),
		"social_class": c.SocialClass.String(),
		"hungry":       s.needs.IsHungry(c, w.Now),
		"time":         w.Now.Format("2006-01-02T15:04:05Z07:00"),
	}
	if home := w.Home(c.Username); home != nil {
		addSystem["home"] = home.BuildingID
	}
	prompt := fmt.Sprintf("%s, you have free time. Reply with JSON "+
		`{"action": "stay|visit|shop|rest", "building": "...", "resource": "...", "reason": "..."}.`, c.Name())

	sctx, cancel := context.WithTimeout(ctx, s.tuning.ExternalTimeout())
	defer cancel()
	reply, err := s.sender.Send(sctx, c.Username, strategyChannel, prompt, addSystem)
	if err != nil {
		w.Notify(social.Notification{
			Citizen:   c.Username,
			Type:      social.NotificationSystem,
			Content:   "Your leisure plans could not be consulted this hour: " + err.Error(),
			CreatedAt: w.Now,
		})
		return nil, fmt.Errorf("ask %s for leisure plans: %w", c.Username, err)
	}

	d, err := kin.ParseDecision(reply)
	if errors.Is(err, kin.ErrNoDecision) {
		s.logger.DebugContext(ctx, "persona gave no decision", "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	switch d.Action {
	case kin.ActionStay:
		return s.idle(c, w, "chose to stay: "+d.Reason), nil
	case kin.ActionVisit:
		b := w.Building(d.Building)
		if b == nil || c.At(b.Position) {
			return nil, nil
		}
		a, err := s.travelTo(ctx, activity.GotoLocation, c, w, b)
		if a != nil {
			a.Details = activity.LocationDetails{Purpose: d.Reason}
		}
		return a, err
	case kin.ActionShop:
		return s.shop(ctx, c, w, d.Resource)
	case kin.ActionRest:
		if home := w.Home(c.Username); home != nil {
			return s.restAt(ctx, c, w, home, activity.GotoHome)
		}
	}
	return nil, nil
}

// shopping buys goods for the citizen's own use during leisure.
func (s *Scheduler) shopping(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.period(c, w) != agents.PeriodLeisure {
		return nil, nil
	}
	return s.shop(ctx, c, w, "")
}

type offer struct {
	contract *economy.Contract
	source   *world.Building
	stock    float64
	tierGap  int
	value    float64 // price × distance
}

// shop picks the best public offer the citizen can use, restricted to one
// resource when only is set. Offers are ranked by how closely the resource's
// tier matches the citizen's, then by the largest price × distance.
func (s *Scheduler) shop(ctx context.Context, c *agents.Citizen, w *World, only string) (*activity.Activity, error) {
	if c.Position == nil || c.Ducats < s.tuning.ShoppingFloor() {
		return nil, nil
	}
	carried := w.Carried(c.Username)
	if len(ownGoods(carried, c.Username)) > 0 {
		return nil, nil
	}
	carry := s.needs.RemainingCapacity(c.Username, carried)
	if carry <= economy.CountEpsilon {
		return nil, nil
	}

	tier := c.SocialClass.Tier()
	var offers []offer
	for _, ct := range w.Contracts(economy.ContractPublicSell) {
		if ct.Seller == c.Username || w.RecentlyFailed(ct.ContractID) {
			continue
		}
		if only != "" && ct.ResourceType != only {
			continue
		}
		rt, ok := s.catalog.Resource(ct.ResourceType)
		if !ok || rt.Tier > tier {
			continue
		}
		if only == "" && !slices.Contains(s.tuning.ShoppingCategories, rt.Category) {
			continue
		}
		src := w.Building(ct.SellerBuilding)
		if src == nil {
			continue
		}
		stock := economy.CountOf(w.Stored(src.BuildingID), ct.ResourceType, ct.Seller)
		if stock <= economy.CountEpsilon {
			continue
		}
		gap := rt.Tier - tier
		if gap < 0 {
			gap = -gap
		}
		offers = append(offers, offer{
			contract: ct,
			source:   src,
			stock:    stock,
			tierGap:  gap,
			value:    ct.PricePerResource.Float() * world.DistanceMeters(*c.Position, src.Position),
		})
	}
	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].tierGap != offers[j].tierGap {
			return offers[i].tierGap < offers[j].tierGap
		}
		return offers[i].value > offers[j].value
	})

	var to *world.Building
	if home := w.Home(c.Username); home != nil {
		to = home
	}
	for _, o := range offers {
		ct := o.contract
		want := math.Min(math.Min(s.tuning.ShoppingMaxUnits, o.stock), carry)
		want = math.Min(want, math.Floor(economy.Affordable(c.Ducats, ct.PricePerResource)))
		a, err := s.fetch(ctx, c, w, fetchPlan{
			typ: activity.FetchResource, from: o.source, to: to, contract: ct.ContractID, resource: ct.ResourceType,
			want:  want,
			pools: []Pool{stockPool(o.source, ct.ResourceType, o.stock)},
			details: activity.TradeDetails{
				Buyer: c.Username, Seller: ct.Seller, PricePerResource: ct.PricePerResource, Purpose: "shopping",
			},
		})
		if a != nil || err != nil {
			return a, err
		}
	}
	return nil, nil
}

// goHome brings a citizen home in their free time, dropping off what they
// bought on the way.
func (s *Scheduler) goHome(ctx context.Context, c *agents.Citizen, w *World) (*activity.Activity, error) {
	if s.period(c, w) != agents.PeriodLeisure {
		return nil, nil
	}
	home := w.Home(c.Username)
	if home == nil {
		return nil, nil
	}
	if c.At(home.Position) && len(ownGoods(w.Carried(c.Username), c.Username)) == 0 {
		return nil, nil
	}
	return s.travelTo(ctx, activity.GotoHome, c, w, home)
}
