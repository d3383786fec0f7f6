package pathfind

import (
	"context"
	"time"

	"github.com/talgya/serenissima/internal/world"
)

// Straight is an offline finder that walks in a straight line. Used when no
// transport service is configured, and in tests.
type Straight struct {
	MetersPerSecond float64
	MinDuration     time.Duration
}

// NewStraight returns a walker at roughly 5 km/h.
func NewStraight() *Straight {
	return &Straight{MetersPerSecond: 1.4, MinDuration: time.Minute}
}

// FindPath returns a two-point walking route.
func (s *Straight) FindPath(ctx context.Context, start, end world.Position, when time.Time) (*Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	speed := s.MetersPerSecond
	if speed <= 0 {
		speed = 1.4
	}
	d := time.Duration(world.DistanceMeters(start, end) / speed * float64(time.Second)).Round(time.Second)
	if d < s.MinDuration {
		d = s.MinDuration
	}
	return &Route{
		Path: []world.PathPoint{
			{Lat: start.Lat, Lng: start.Lng},
			{Lat: end.Lat, Lng: end.Lng},
		},
		Start: when,
		End:   when.Add(d),
	}, nil
}
