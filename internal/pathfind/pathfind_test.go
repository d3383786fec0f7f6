package pathfind_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/pathfind"
	"github.com/talgya/serenissima/internal/world"
)

var when = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

// metersNorth returns the latitude offset of d meters along a meridian.
func metersNorth(d float64) float64 {
	return d / 6371000.0 * 180 / math.Pi
}

func TestGondolaFeeForTwoKilometres(t *testing.T) {
	path := []world.PathPoint{
		{Lat: 45.43, Lng: 12.33},
		{Lat: 45.43 + metersNorth(2000), Lng: 12.33, TransportMode: world.TransportGondola},
	}
	policy := pathfind.DefaultFeePolicy()

	charges := policy.Charges(path)
	require.Len(t, charges, 1)
	assert.Equal(t, 20*economy.Ducat, charges[0].Amount)
	assert.Equal(t, 20*economy.Ducat, policy.Total(path))
}

func TestEachGondolaSegmentIsCharged(t *testing.T) {
	step := metersNorth(1000)
	path := []world.PathPoint{
		{Lat: 45.40, Lng: 12.33},
		{Lat: 45.40 + step, Lng: 12.33, TransportMode: world.TransportGondola},
		{Lat: 45.40 + 2*step, Lng: 12.33},
		{Lat: 45.40 + 3*step, Lng: 12.33, TransportMode: world.TransportGondola},
	}
	charges := pathfind.DefaultFeePolicy().Charges(path)
	require.Len(t, charges, 2)
	assert.Equal(t, 15*economy.Ducat, charges[0].Amount)
	assert.Equal(t, 15*economy.Ducat, charges[1].Amount)

	walk := []world.PathPoint{{Lat: 45.4, Lng: 12.3}, {Lat: 45.41, Lng: 12.3}}
	assert.Equal(t, economy.Ducats(0), pathfind.DefaultFeePolicy().Total(walk))
}

func TestNearestDock(t *testing.T) {
	seg := world.Segment{Mode: world.TransportGondola, Points: []world.PathPoint{
		{Lat: 45.43, Lng: 12.33},
		{Lat: 45.43 + metersNorth(500), Lng: 12.33},
	}}
	near := &world.Building{BuildingID: "dock-near", Position: world.Position{Lat: 45.43 + metersNorth(50), Lng: 12.33}}
	far := &world.Building{BuildingID: "dock-far", Position: world.Position{Lat: 45.43 + metersNorth(2000), Lng: 12.33}}

	policy := pathfind.DefaultFeePolicy()
	got := policy.NearestDock([]*world.Building{far, near}, seg)
	require.NotNil(t, got)
	assert.Equal(t, "dock-near", got.BuildingID)
	assert.Nil(t, policy.NearestDock([]*world.Building{far}, seg))
}

func TestStraightFinder(t *testing.T) {
	start := world.Position{Lat: 45.43, Lng: 12.33}
	end := world.Position{Lat: 45.43 + metersNorth(1400), Lng: 12.33}

	route, err := pathfind.NewStraight().FindPath(context.Background(), start, end, when)
	require.NoError(t, err)
	assert.Equal(t, 1000*time.Second, route.Duration())
	assert.True(t, route.Destination().Same(end))

	route, err = pathfind.NewStraight().FindPath(context.Background(), start, start, when)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, route.Duration())
}

func TestClientFindPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transport", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req["endPoint"].(map[string]any)["lat"].(float64) > 46 {
			_, _ = w.Write([]byte(`{"success": false, "error": "off the map"}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"success": true,
			"path": [{"lat": 45.43, "lng": 12.33}, {"lat": 45.44, "lng": 12.33, "transportMode": "gondola"}],
			"timing": {"startDate": "2026-07-01T09:00:00Z", "durationSeconds": 600},
			"transporter": "gondoliere_7"
		}`))
	}))
	defer srv.Close()

	c := pathfind.NewClient(srv.URL, time.Second)
	route, err := c.FindPath(context.Background(), world.Position{Lat: 45.43, Lng: 12.33}, world.Position{Lat: 45.44, Lng: 12.33}, when)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, route.Duration())
	assert.Equal(t, "gondoliere_7", route.Transporter)
	assert.Equal(t, world.TransportGondola, route.Path[1].TransportMode)

	_, err = c.FindPath(context.Background(), world.Position{}, world.Position{Lat: 47}, when)
	assert.True(t, errors.Is(err, pathfind.ErrNoRoute))
}

func TestClientSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := pathfind.NewClient(srv.URL, time.Second).FindPath(context.Background(), world.Position{}, world.Position{}, when)
	require.Error(t, err)
	assert.False(t, errors.Is(err, pathfind.ErrNoRoute))
}
