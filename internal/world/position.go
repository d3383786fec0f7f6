// Package world provides positions, path geometry, and location helpers for
// the lagoon. Positions are WGS84 latitude/longitude pairs.
package world

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000.0

// Position is a point on the map.
type Position struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// String renders the position the way the store keys building points.
func (p Position) String() string {
	return fmt.Sprintf("%.6f_%.6f", p.Lat, p.Lng)
}

// Same reports whether two positions denote the same place. Coordinates that
// round-trip through JSON can drift in the last digits, so a small tolerance
// (about 1 meter) is used.
func (p Position) Same(o Position) bool {
	return DistanceMeters(p, o) < 1.0
}

// PathPoint is one vertex of a travel path.
type PathPoint struct {
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	TransportMode string  `json:"transportMode,omitempty"` // "walk" (default) or "gondola"
}

// Position returns the vertex as a plain position.
func (pp PathPoint) Position() Position {
	return Position{Lat: pp.Lat, Lng: pp.Lng}
}

// TransportGondola marks path points travelled by boat.
const TransportGondola = "gondola"

// DistanceMeters returns the great-circle distance between two positions.
func DistanceMeters(a, b Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// PathLengthMeters sums the leg lengths of a path.
func PathLengthMeters(path []PathPoint) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += DistanceMeters(path[i-1].Position(), path[i].Position())
	}
	return total
}

// Segment is a maximal run of consecutive path points sharing a transport mode.
type Segment struct {
	Mode   string
	Points []PathPoint
}

// LengthMeters returns the length of the segment.
func (s Segment) LengthMeters() float64 {
	return PathLengthMeters(s.Points)
}

// Segments splits a path into runs by transport mode. A point belongs to the
// segment of the leg that ends at it, so a run of gondola points includes the
// boarding point that precedes it.
func Segments(path []PathPoint) []Segment {
	var segs []Segment
	for i := 1; i < len(path); i++ {
		mode := path[i].TransportMode
		if mode == "" {
			mode = "walk"
		}
		if len(segs) > 0 && segs[len(segs)-1].Mode == mode {
			segs[len(segs)-1].Points = append(segs[len(segs)-1].Points, path[i])
			continue
		}
		segs = append(segs, Segment{Mode: mode, Points: []PathPoint{path[i-1], path[i]}})
	}
	return segs
}
