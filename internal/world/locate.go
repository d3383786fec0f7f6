// Fallback placement for citizens that have no recorded position.
package world

import (
	"time"

	"github.com/cespare/xxhash/v2"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Locator picks a valid land position for a citizen. The choice is a pure
// function of (seed, username, hour), so two scheduler runs over the same
// snapshot place the citizen identically.
type Locator struct {
	noise  opensimplex.Noise
	points []Position
}

// NewLocator creates a locator over the given candidate land points.
func NewLocator(seed int64, points []Position) *Locator {
	return &Locator{
		noise:  opensimplex.NewNormalized(seed),
		points: points,
	}
}

// Locate returns a land point for the citizen, or false when no candidate
// points are configured.
func (l *Locator) Locate(username string, now time.Time) (Position, bool) {
	if l == nil || len(l.points) == 0 {
		return Position{}, false
	}

	x := float64(xxhash.Sum64String(username)%100000) / 97.0
	y := float64(now.Unix()/3600) / 31.0

	v := l.noise.Eval2(x, y) // [0, 1)
	idx := int(v * float64(len(l.points)))
	if idx >= len(l.points) {
		idx = len(l.points) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return l.points[idx], true
}
