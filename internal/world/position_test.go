package world_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/serenissima/internal/world"
)

func TestDistanceMeters(t *testing.T) {
	a := world.Position{Lat: 45.4371, Lng: 12.3326}
	require.InDelta(t, 0, world.DistanceMeters(a, a), 1e-9)

	// One hundredth of a degree of latitude is roughly 1.11 km.
	b := world.Position{Lat: 45.4471, Lng: 12.3326}
	assert.InDelta(t, 1112, world.DistanceMeters(a, b), 5)
	assert.True(t, a.Same(world.Position{Lat: 45.437100001, Lng: 12.3326}))
}

func TestSegments(t *testing.T) {
	path := []world.PathPoint{
		{Lat: 45.430, Lng: 12.330},
		{Lat: 45.431, Lng: 12.330},
		{Lat: 45.432, Lng: 12.330, TransportMode: world.TransportGondola},
		{Lat: 45.433, Lng: 12.330, TransportMode: world.TransportGondola},
		{Lat: 45.434, Lng: 12.330},
	}

	segs := world.Segments(path)
	require.Len(t, segs, 3)
	assert.Equal(t, "walk", segs[0].Mode)
	assert.Equal(t, world.TransportGondola, segs[1].Mode)
	require.Len(t, segs[1].Points, 3)
	assert.Equal(t, 45.431, segs[1].Points[0].Lat)
	assert.InDelta(t, world.PathLengthMeters(path),
		segs[0].LengthMeters()+segs[1].LengthMeters()+segs[2].LengthMeters(), 1e-6)

	assert.Empty(t, world.Segments(path[:1]))
}

func TestLocatorIsDeterministic(t *testing.T) {
	points := []world.Position{
		{Lat: 45.4371, Lng: 12.3326},
		{Lat: 45.4340, Lng: 12.3390},
		{Lat: 45.4408, Lng: 12.3155},
	}
	now := time.Date(1525, 3, 4, 10, 0, 0, 0, time.UTC)

	l1 := world.NewLocator(42, points)
	l2 := world.NewLocator(42, points)
	p1, ok := l1.Locate("marco_polo", now)
	require.True(t, ok)
	p2, _ := l2.Locate("marco_polo", now)
	assert.Equal(t, p1, p2)
	assert.Contains(t, points, p1)

	_, ok = world.NewLocator(42, nil).Locate("marco_polo", now)
	assert.False(t, ok)
}
