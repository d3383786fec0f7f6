// Package pathfind finds travel routes between two points of the city and
// prices the gondola legs of a route.
package pathfind

import (
	"context"
	"errors"
	"time"

	"github.com/talgya/serenissima/internal/world"
)

//go:generate go tool mockgen -destination=./mocks/finder_mock.go -package=mocks . Finder

// ErrNoRoute means the service answered but found no way between the points.
var ErrNoRoute = errors.New("no route")

// Route is a travel plan.
type Route struct {
	Path        []world.PathPoint `json:"path"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Transporter string            `json:"transporter,omitempty"`
}

// Duration is how long the trip takes.
func (r *Route) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Destination returns the last point of the route.
func (r *Route) Destination() world.Position {
	if len(r.Path) == 0 {
		return world.Position{}
	}
	return r.Path[len(r.Path)-1].Position()
}

// Finder computes routes. Implementations must honour ctx deadlines.
type Finder interface {
	FindPath(ctx context.Context, start, end world.Position, when time.Time) (*Route, error)
}
