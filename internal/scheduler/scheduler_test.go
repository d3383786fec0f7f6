package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/catalog"
	"github.com/talgya/serenissima/internal/config"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/kin"
	kinmocks "github.com/talgya/serenissima/internal/kin/mocks"
	"github.com/talgya/serenissima/internal/pathfind"
	"github.com/talgya/serenissima/internal/pathfind/mocks"
	"github.com/talgya/serenissima/internal/scheduler"
	"github.com/talgya/serenissima/internal/world"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func at(hour int) time.Time { return day.Add(time.Duration(hour) * time.Hour) }

func pos(lat, lng float64) *world.Position { return &world.Position{Lat: lat, Lng: lng} }

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

func newScheduler(t *testing.T, finder pathfind.Finder, sender kin.Sender) *scheduler.Scheduler {
	t.Helper()
	cat := testCatalog(t)
	return scheduler.New(finder, sender, cat, agents.Calendar{Location: time.UTC, Catalog: cat},
		config.DefaultTuning(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fed(now time.Time) *time.Time {
	t := now.Add(-time.Hour)
	return &t
}

func TestHandlerOrder(t *testing.T) {
	s := newScheduler(t, pathfind.NewStraight(), nil)
	var names []string
	for _, h := range s.Handlers() {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{
		"leave_venice", "emergency_fishing", "emergency_eat", "shelter", "deliver_carried",
		"construction", "storage_offload", "provisioning", "production", "porter_dispatch",
		"business_audit", "goto_work", "fishing", "eat", "ai_leisure", "shopping", "go_home",
	}, names)
	assert.NotNil(t, s.Handler("shelter"))
	assert.Nil(t, s.Handler("nope"))
}

// Homeless labourer at night: first to the inn, then rest there until dawn.
func TestHomelessFacchiniRestsAtInn(t *testing.T) {
	ctrl := gomock.NewController(t)
	finder := mocks.NewMockFinder(ctrl)
	s := newScheduler(t, finder, nil)

	now := at(23)
	inn := &world.Building{BuildingID: "inn-1", Type: "inn", Category: catalog.CategoryBusiness,
		SubCategory: catalog.SubCategoryInn, Owner: "oste", Position: world.Position{Lat: 45.4371, Lng: 12.3326}, IsConstructed: true}
	beppe := &agents.Citizen{Username: "beppe", SocialClass: agents.ClassFacchini, Position: pos(45.4340, 12.3390),
		Ducats: 5 * economy.Ducat, AteAt: fed(now), InVenice: true}

	finder.EXPECT().FindPath(gomock.Any(), *beppe.Position, inn.Position, now).Return(&pathfind.Route{
		Path:  []world.PathPoint{{Lat: 45.4340, Lng: 12.3390}, {Lat: 45.4371, Lng: 12.3326}},
		Start: now, End: now.Add(12 * time.Minute),
	}, nil)

	w := scheduler.NewWorld(now, testCatalog(t), scheduler.Snapshot{
		Citizens:  []*agents.Citizen{beppe},
		Buildings: []*world.Building{inn},
	})
	plan := s.Schedule(context.Background(), beppe, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, "shelter", plan.Handler)
	assert.Equal(t, activity.TravelToInn, plan.Activity.Type)
	assert.Equal(t, "inn-1", plan.Activity.ToBuilding)
	assert.Equal(t, now.Add(12*time.Minute), plan.Activity.EndDate)

	arrived := *beppe
	arrived.Position = &inn.Position
	later := now.Add(12 * time.Minute)
	w = scheduler.NewWorld(later, testCatalog(t), scheduler.Snapshot{
		Citizens:  []*agents.Citizen{&arrived},
		Buildings: []*world.Building{inn},
	})
	plan = s.Schedule(context.Background(), &arrived, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, activity.Rest, plan.Activity.Type)
	assert.Equal(t, "inn-1", plan.Activity.ToBuilding)
	assert.True(t, plan.Activity.EndDate.Equal(at(24+5)), "rest ends when the rest period does, got %s", plan.Activity.EndDate)
}

// Starving fisherman with an empty larder heads for the nearest water with fish.
func TestStarvingFishermanGoesFishing(t *testing.T) {
	ctrl := gomock.NewController(t)
	finder := mocks.NewMockFinder(ctrl)
	s := newScheduler(t, finder, nil)
	cat := testCatalog(t)

	now := at(10)
	ate := now.Add(-30 * time.Hour)
	cottage := &world.Building{BuildingID: "cottage-1", Type: catalog.TypeFishermansCottage, Category: catalog.CategoryHome,
		Occupant: "nico", Position: world.Position{Lat: 45.4298, Lng: 12.3364}}
	nico := &agents.Citizen{Username: "nico", SocialClass: agents.ClassFacchini, Position: pos(45.4305, 12.3430),
		AteAt: &ate, InVenice: true}

	var bacino catalog.WaterPoint
	for _, wp := range cat.Geography.WaterPoints {
		if wp.ID == "wp_bacino" {
			bacino = wp
		}
	}
	require.True(t, bacino.HasFish)

	finder.EXPECT().FindPath(gomock.Any(), *nico.Position, bacino.Position, now).Return(&pathfind.Route{
		Path:  []world.PathPoint{{Lat: 45.4305, Lng: 12.3430}, {Lat: bacino.Position.Lat, Lng: bacino.Position.Lng}},
		Start: now, End: now.Add(5 * time.Minute),
	}, nil)

	w := scheduler.NewWorld(now, cat, scheduler.Snapshot{
		Citizens:  []*agents.Citizen{nico},
		Buildings: []*world.Building{cottage},
	})
	plan := s.Schedule(context.Background(), nico, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, activity.EmergencyFishing, plan.Activity.Type)
	details, ok := plan.Activity.Details.(activity.FishingDetails)
	require.True(t, ok)
	assert.Equal(t, "wp_bacino", details.WaterPoint)
	assert.Equal(t, now.Add(5*time.Minute+time.Hour), plan.Activity.EndDate)
}

func carpentryWorld(now time.Time, cat *catalog.Catalog, timber float64, failed ...*activity.Activity) (*agents.Citizen, *scheduler.World) {
	shopPos := world.Position{Lat: 45.4371, Lng: 12.3326}
	gio := &agents.Citizen{Username: "giovanni", SocialClass: agents.ClassPopolani, Position: &shopPos,
		Ducats: 20 * economy.Ducat, AteAt: fed(now), InVenice: true}
	mastro := &agents.Citizen{Username: "mastro", SocialClass: agents.ClassCittadini, Ducats: 1000 * economy.Ducat, InVenice: true}

	shop := &world.Building{BuildingID: "carp-1", Type: "carpentry_workshop", Category: catalog.CategoryBusiness,
		SubCategory: "workshop", Owner: "mastro", Occupant: "giovanni", Position: shopPos, IsConstructed: true}
	yard := &world.Building{BuildingID: "yard-1", Type: "market_stall", Category: catalog.CategoryBusiness,
		Owner: "legnaiolo", Position: world.Position{Lat: 45.4340, Lng: 12.3390}, IsConstructed: true}
	yard2 := &world.Building{BuildingID: "yard-2", Type: "market_stall", Category: catalog.CategoryBusiness,
		Owner: "segantino", Position: world.Position{Lat: 45.4408, Lng: 12.3155}, IsConstructed: true}

	resources := []economy.Resource{
		{ResourceKey: economy.StoredIn("yard-1", "timber", "legnaiolo"), Count: 50},
		{ResourceKey: economy.StoredIn("yard-2", "timber", "segantino"), Count: 50},
	}
	if timber > 0 {
		resources = append(resources, economy.Resource{ResourceKey: economy.StoredIn("carp-1", "timber", "mastro"), Count: timber})
	}
	return gio, scheduler.NewWorld(now, cat, scheduler.Snapshot{
		Citizens:  []*agents.Citizen{gio, mastro},
		Buildings: []*world.Building{shop, yard, yard2},
		Contracts: []*economy.Contract{
			{ContractID: "sell-cheap", Type: economy.ContractPublicSell, Seller: "legnaiolo", ResourceType: "timber",
				PricePerResource: 8 * economy.Ducat, SellerBuilding: "yard-1", TargetAmount: 50, CreatedAt: day, Status: economy.ContractActive},
			{ContractID: "sell-dear", Type: economy.ContractPublicSell, Seller: "segantino", ResourceType: "timber",
				PricePerResource: 11 * economy.Ducat, SellerBuilding: "yard-2", TargetAmount: 50, CreatedAt: day, Status: economy.ContractActive},
		},
		Resources: resources,
		Failed:    failed,
	})
}

// A carpenter with no timber goes buying before any production; with timber
// in stock the next pass produces.
func TestProvisioningPrecedesProduction(t *testing.T) {
	s := newScheduler(t, pathfind.NewStraight(), nil)
	cat := testCatalog(t)
	now := at(10)

	gio, w := carpentryWorld(now, cat, 0)
	plan := s.Schedule(context.Background(), gio, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, "provisioning", plan.Handler)
	a := plan.Activity
	assert.Equal(t, activity.FetchResource, a.Type)
	assert.Equal(t, "sell-cheap", a.ContractID, "cheapest offer first")
	assert.Equal(t, "yard-1", a.FromBuilding)
	assert.Equal(t, 10.0, a.ResourceAmount("timber"))
	trade, ok := a.Details.(activity.TradeDetails)
	require.True(t, ok)
	assert.Equal(t, "mastro", trade.Buyer)
	assert.Equal(t, "legnaiolo", trade.Seller)
	assert.Equal(t, "carp-1", trade.DeliverTo)

	gio, w = carpentryWorld(now, cat, 10)
	plan = s.Schedule(context.Background(), gio, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, activity.Production, plan.Activity.Type)
	prod, ok := plan.Activity.Details.(activity.ProductionDetails)
	require.True(t, ok)
	assert.Equal(t, map[string]float64{"timber": 10}, prod.Inputs)
	assert.Equal(t, "mastro", prod.Operator)
	assert.Equal(t, 2*time.Hour, plan.Activity.Duration())
}

func TestProvisioningSkipsContractsOnCooldown(t *testing.T) {
	s := newScheduler(t, pathfind.NewStraight(), nil)
	now := at(10)

	failed := &activity.Activity{ActivityID: "old", Type: activity.FetchResource, ContractID: "sell-cheap", Status: activity.StatusFailed}
	gio, w := carpentryWorld(now, testCatalog(t), 0, failed)
	plan := s.Schedule(context.Background(), gio, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, "sell-dear", plan.Activity.ContractID)
}

func TestPortersDoNotDoubleBookAGalley(t *testing.T) {
	s := newScheduler(t, pathfind.NewStraight(), nil)
	cat := testCatalog(t)
	now := at(9)

	hall := &world.Building{BuildingID: "hall", Type: "porter_guild_hall", Category: catalog.CategoryBusiness,
		SubCategory: catalog.SubCategoryPorter, Owner: "gilda", Position: world.Position{Lat: 45.4371, Lng: 12.3326}}
	hall2 := *hall
	hall2.BuildingID = "hall-2"
	galley := &world.Building{BuildingID: "galley-1", Type: catalog.TypeMerchantGalley, Category: catalog.CategoryTransport,
		Owner: "mercante", Position: world.Position{Lat: 45.4315, Lng: 12.3278}}
	shop := &world.Building{BuildingID: "bakery-1", Type: "bakery", Category: catalog.CategoryBusiness, Owner: "fornaio",
		Position: world.Position{Lat: 45.4389, Lng: 12.3412}}

	var porters []*agents.Citizen
	for _, name := range []string{"primo", "secondo"} {
		porters = append(porters, &agents.Citizen{Username: name, SocialClass: agents.ClassFacchini,
			Position: &world.Position{Lat: 45.4371, Lng: 12.3326}, AteAt: fed(now), InVenice: true})
	}
	hall.Occupant = "primo"
	hall2.Occupant = "secondo"

	w := scheduler.NewWorld(now, cat, scheduler.Snapshot{
		Citizens: append(porters,
			&agents.Citizen{Username: "fornaio", Ducats: 10000 * economy.Ducat, InVenice: true}),
		Buildings: []*world.Building{hall, &hall2, galley, shop},
		Contracts: []*economy.Contract{{
			ContractID: "imp-1", Type: economy.ContractImport, Buyer: "fornaio", Seller: "mercante", ResourceType: "flour",
			PricePerResource: 100 * economy.Ducat, TargetAmount: 15, BuyerBuilding: "bakery-1", SellerBuilding: "galley-1",
			CreatedAt: day, Status: economy.ContractActive,
		}},
		Resources: []economy.Resource{{ResourceKey: economy.StoredIn("galley-1", "flour", "mercante"), Count: 15}},
	})

	first := s.Schedule(context.Background(), porters[0], w)
	require.NotNil(t, first.Activity)
	assert.Equal(t, activity.FetchFromGalley, first.Activity.Type)
	assert.Equal(t, 15.0, first.Activity.ResourceAmount("flour"))
	galleyDetails, ok := first.Activity.Details.(activity.GalleyDetails)
	require.True(t, ok)
	assert.Equal(t, int64(50), galleyDetails.TreasuryPercent)
	assert.Equal(t, "bakery-1", galleyDetails.DeliverTo)

	second := s.Schedule(context.Background(), porters[1], w)
	require.NotNil(t, second.Activity)
	assert.NotEqual(t, activity.FetchFromGalley, second.Activity.Type)
}

func TestShoppingPrefersTierFitThenPriceTimesDistance(t *testing.T) {
	s := newScheduler(t, pathfind.NewStraight(), nil)
	cat := testCatalog(t)
	now := at(19) // leisure for Popolani

	here := world.Position{Lat: 45.4371, Lng: 12.3326}
	near := &world.Building{BuildingID: "stall-near", Type: "market_stall", Category: catalog.CategoryBusiness, Owner: "a",
		Position: world.Position{Lat: 45.4372, Lng: 12.3327}}
	far := &world.Building{BuildingID: "stall-far", Type: "market_stall", Category: catalog.CategoryBusiness, Owner: "b",
		Position: world.Position{Lat: 45.4315, Lng: 12.3278}}
	bread := &world.Building{BuildingID: "stall-bread", Type: "market_stall", Category: catalog.CategoryBusiness, Owner: "c",
		Position: here}

	sell := func(id, seller, building, resource string, price economy.Ducats) *economy.Contract {
		return &economy.Contract{ContractID: id, Type: economy.ContractPublicSell, Seller: seller, ResourceType: resource,
			PricePerResource: price, SellerBuilding: building, TargetAmount: 10, CreatedAt: day, Status: economy.ContractActive}
	}
	lucia := &agents.Citizen{Username: "lucia", SocialClass: agents.ClassPopolani, Position: &here,
		Ducats: 100 * economy.Ducat, AteAt: fed(now), InVenice: true}

	w := scheduler.NewWorld(now, cat, scheduler.Snapshot{
		Citizens:  []*agents.Citizen{lucia},
		Buildings: []*world.Building{near, far, bread},
		Contracts: []*economy.Contract{
			sell("c-bread", "c", "stall-bread", "bread", 2*economy.Ducat),
			sell("c-near", "a", "stall-near", "cheese", 12*economy.Ducat),
			sell("c-far", "b", "stall-far", "cheese", 12*economy.Ducat),
			sell("c-wine", "a", "stall-near", "wine", 20*economy.Ducat),
		},
		Resources: []economy.Resource{
			{ResourceKey: economy.StoredIn("stall-bread", "bread", "c"), Count: 10},
			{ResourceKey: economy.StoredIn("stall-near", "cheese", "a"), Count: 10},
			{ResourceKey: economy.StoredIn("stall-far", "cheese", "b"), Count: 10},
			{ResourceKey: economy.StoredIn("stall-near", "wine", "a"), Count: 10},
		},
	})

	plan := s.Schedule(context.Background(), lucia, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, "shopping", plan.Handler)
	assert.Equal(t, "c-far", plan.Activity.ContractID)
	assert.Equal(t, 5.0, plan.Activity.ResourceAmount("cheese"))
}

func TestIdleFallbackAndPlacement(t *testing.T) {
	s := newScheduler(t, pathfind.NewStraight(), nil)
	now := at(15) // leisure for Nobili
	doge := &agents.Citizen{Username: "doge", SocialClass: agents.ClassNobili, AteAt: fed(now), InVenice: true}

	w := scheduler.NewWorld(now, testCatalog(t), scheduler.Snapshot{Citizens: []*agents.Citizen{doge}})
	plan := s.Schedule(context.Background(), doge, w)
	require.NotNil(t, plan.Placed)
	assert.Nil(t, doge.Position, "the snapshot citizen is not modified")
	require.NotNil(t, plan.Activity)
	assert.Equal(t, activity.Idle, plan.Activity.Type)
	assert.Equal(t, time.Hour, plan.Activity.Duration())
	_, ok := plan.Activity.Details.(activity.IdleDetails)
	assert.True(t, ok)

	again := s.Schedule(context.Background(), doge, w)
	assert.Equal(t, *plan.Placed, *again.Placed, "placement is deterministic")
}

func TestFinderErrorsFallThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	finder := mocks.NewMockFinder(ctrl)
	s := newScheduler(t, finder, nil)

	now := at(23)
	home := &world.Building{BuildingID: "h", Type: "artisan_s_house", Category: catalog.CategoryHome, Occupant: "rosa",
		Position: world.Position{Lat: 45.4371, Lng: 12.3326}}
	rosa := &agents.Citizen{Username: "rosa", SocialClass: agents.ClassPopolani, Position: pos(45.4298, 12.3364),
		AteAt: fed(now), InVenice: true}

	finder.EXPECT().FindPath(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("transport service timeout")).AnyTimes()

	w := scheduler.NewWorld(now, testCatalog(t), scheduler.Snapshot{
		Citizens: []*agents.Citizen{rosa}, Buildings: []*world.Building{home},
	})
	plan := s.Schedule(context.Background(), rosa, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, activity.Idle, plan.Activity.Type)
	assert.Contains(t, plan.Activity.Details.(activity.IdleDetails).Reason, "shelter")
}

func TestForestieriLeaveWhenBroke(t *testing.T) {
	s := newScheduler(t, pathfind.NewStraight(), nil)
	now := at(10)
	hans := &agents.Citizen{Username: "hans", SocialClass: agents.ClassForestieri, Position: pos(45.4371, 12.3326),
		Ducats: 10 * economy.Ducat, AteAt: fed(now), InVenice: true}

	w := scheduler.NewWorld(now, testCatalog(t), scheduler.Snapshot{Citizens: []*agents.Citizen{hans}})
	plan := s.Schedule(context.Background(), hans, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, activity.LeaveVenice, plan.Activity.Type)
	assert.NotEmpty(t, plan.Activity.Path)
}

func TestAILeisureVisit(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := kinmocks.NewMockSender(ctrl)
	s := newScheduler(t, pathfind.NewStraight(), sender)
	now := at(19)

	palazzo := &world.Building{BuildingID: "ca-doro", Type: "nobili_palazzo", Category: catalog.CategoryHome,
		Position: world.Position{Lat: 45.4408, Lng: 12.3155}}
	bianca := &agents.Citizen{Username: "bianca", SocialClass: agents.ClassCittadini, Position: pos(45.4371, 12.3326),
		AteAt: fed(now), InVenice: true, IsAI: true}

	sender.EXPECT().Send(gomock.Any(), "bianca", gomock.Any(), gomock.Any(), gomock.Any()).
		Return("Certainly!\n```json\n{\"action\": \"visit\", \"building\": \"ca-doro\", \"reason\": \"admire the facade\"}\n```", nil)

	w := scheduler.NewWorld(now, testCatalog(t), scheduler.Snapshot{
		Citizens: []*agents.Citizen{bianca}, Buildings: []*world.Building{palazzo},
	})
	plan := s.Schedule(context.Background(), bianca, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, "ai_leisure", plan.Handler)
	assert.Equal(t, activity.GotoLocation, plan.Activity.Type)
	assert.Equal(t, "ca-doro", plan.Activity.ToBuilding)
	assert.Equal(t, activity.LocationDetails{Purpose: "admire the facade"}, plan.Activity.Details)
}

func TestAILeisureFailureLeavesSystemMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := kinmocks.NewMockSender(ctrl)
	s := newScheduler(t, pathfind.NewStraight(), sender)
	now := at(19)

	bianca := &agents.Citizen{Username: "bianca", SocialClass: agents.ClassCittadini, Position: pos(45.4371, 12.3326),
		AteAt: fed(now), InVenice: true, IsAI: true}
	sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", errors.New("503 from persona service"))

	w := scheduler.NewWorld(now, testCatalog(t), scheduler.Snapshot{Citizens: []*agents.Citizen{bianca}})
	plan := s.Schedule(context.Background(), bianca, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, activity.Idle, plan.Activity.Type)

	notices := w.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "bianca", notices[0].Citizen)
	assert.Empty(t, w.Notices(), "notices are drained")
}

func TestAILeisureToleratesProse(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := kinmocks.NewMockSender(ctrl)
	s := newScheduler(t, pathfind.NewStraight(), sender)
	now := at(19)

	bianca := &agents.Citizen{Username: "bianca", SocialClass: agents.ClassCittadini, Position: pos(45.4371, 12.3326),
		AteAt: fed(now), InVenice: true, IsAI: true}
	sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return("I shall simply enjoy the evening breeze.", nil)

	w := scheduler.NewWorld(now, testCatalog(t), scheduler.Snapshot{Citizens: []*agents.Citizen{bianca}})
	plan := s.Schedule(context.Background(), bianca, w)
	require.NotNil(t, plan.Activity)
	assert.Empty(t, w.Notices())
	assert.NotEqual(t, "ai_leisure", plan.Handler)
}

func TestHungryCitizenEatsCarriedFoodFirst(t *testing.T) {
	s := newScheduler(t, pathfind.NewStraight(), nil)
	now := at(15)
	ate := now.Add(-13 * time.Hour)
	marta := &agents.Citizen{Username: "marta", SocialClass: agents.ClassPopolani, Position: pos(45.4371, 12.3326),
		AteAt: &ate, InVenice: true}

	w := scheduler.NewWorld(now, testCatalog(t), scheduler.Snapshot{
		Citizens: []*agents.Citizen{marta},
		Resources: []economy.Resource{
			{ResourceKey: economy.CarriedBy("marta", "timber", "marta"), Count: 3},
			{ResourceKey: economy.CarriedBy("marta", "bread", "marta"), Count: 2},
		},
	})
	plan := s.Schedule(context.Background(), marta, w)
	require.NotNil(t, plan.Activity)
	assert.Equal(t, activity.EatFromInventory, plan.Activity.Type)
	assert.Equal(t, activity.MealDetails{ResourceType: "bread", Owner: "marta"}, plan.Activity.Details)
}

func TestClaimIsBoundedByEveryPool(t *testing.T) {
	w := scheduler.NewWorld(day, nil, scheduler.Snapshot{})
	a := scheduler.Pool{Key: "a", Available: 10}
	b := scheduler.Pool{Key: "b", Available: 4}

	assert.Equal(t, 4.0, w.Claim(6, a, b))
	assert.Equal(t, 0.0, w.Claim(6, a, b))
	assert.Equal(t, 6.0, w.Claim(6, a))
	assert.Equal(t, 0.0, w.Claim(1, a))
}
