package pathfind

import (
	"math"

	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/world"
)

// FeePolicy prices gondola travel: Base plus PerKm per kilometre, charged per
// contiguous gondola segment.
type FeePolicy struct {
	Base  economy.Ducats
	PerKm economy.Ducats
	// DockRadiusMeters is how close a public dock must be to a segment for
	// its operator to collect the fee.
	DockRadiusMeters float64
}

// DefaultFeePolicy is 10 ducats plus 5 per km, docks within 150 m.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{Base: 10 * economy.Ducat, PerKm: 5 * economy.Ducat, DockRadiusMeters: 150}
}

// Charge is the fee for one gondola segment.
type Charge struct {
	Amount  economy.Ducats
	Meters  float64
	Segment world.Segment
}

// Charges prices every gondola segment of the path.
func (p FeePolicy) Charges(path []world.PathPoint) []Charge {
	var out []Charge
	for _, seg := range world.Segments(path) {
		if seg.Mode != world.TransportGondola {
			continue
		}
		m := seg.LengthMeters()
		out = append(out, Charge{
			Amount:  p.Base + p.PerKm.Times(m/1000),
			Meters:  m,
			Segment: seg,
		})
	}
	return out
}

// Total is the sum of all segment charges.
func (p FeePolicy) Total(path []world.PathPoint) economy.Ducats {
	var total economy.Ducats
	for _, c := range p.Charges(path) {
		total += c.Amount
	}
	return total
}

// NearestDock returns the dock closest to any point of the segment, provided
// it lies within the policy radius.
func (p FeePolicy) NearestDock(docks []*world.Building, seg world.Segment) *world.Building {
	var best *world.Building
	bestDist := math.Inf(1)
	for _, d := range docks {
		for _, pt := range seg.Points {
			dist := world.DistanceMeters(d.Position, pt.Position())
			if dist < bestDist {
				best, bestDist = d, dist
			}
		}
	}
	if best == nil || bestDist > p.DockRadiusMeters {
		return nil
	}
	return best
}
