package world

import "time"

// Building is a structure on the map: a home, a workshop, a warehouse, a dock,
// a galley moored at the quay, or a site still under construction.
type Building struct {
	BuildingID  string   `json:"building_id" db:"building_id"`
	Type        string   `json:"type" db:"type"`
	Name        string   `json:"name" db:"name"`
	Category    string   `json:"category" db:"category"`
	SubCategory string   `json:"sub_category" db:"sub_category"`
	Owner       string   `json:"owner" db:"owner"`
	RunBy       string   `json:"run_by" db:"run_by"`
	Occupant    string   `json:"occupant" db:"occupant"`
	Position    Position `json:"position" db:"-"`

	IsConstructed                bool    `json:"is_constructed" db:"is_constructed"`
	ConstructionMinutesRemaining float64 `json:"construction_minutes_remaining" db:"construction_minutes_remaining"`

	// CheckedAt is the last time the operator audited the business.
	CheckedAt *time.Time `json:"checked_at,omitempty" db:"checked_at"`
}

// Operator returns who runs the building day to day, falling back to the
// owner.
func (b *Building) Operator() string {
	if b.RunBy != "" {
		return b.RunBy
	}
	return b.Owner
}
