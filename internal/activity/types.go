package activity

import (
	"database/sql/driver"
	"fmt"
)

// Type is the closed set of things a citizen can be doing.
type Type uint8

const (
	GotoHome Type = iota
	GotoWork
	TravelToInn
	GotoConstructionSite
	GotoLocation
	Rest
	Idle
	EatFromInventory
	EatAtHome
	EatAtTavern
	Production
	FetchResource
	FetchFromStorage
	FetchFromGalley
	DeliverResourceBatch
	DeliverToStorage
	ConstructBuilding
	LeaveVenice
	Fishing
	EmergencyFishing
	CheckBusinessStatus

	numTypes
)

var typeNames = [numTypes]string{
	GotoHome:             "goto_home",
	GotoWork:             "goto_work",
	TravelToInn:          "travel_to_inn",
	GotoConstructionSite: "goto_construction_site",
	GotoLocation:         "goto_location",
	Rest:                 "rest",
	Idle:                 "idle",
	EatFromInventory:     "eat_from_inventory",
	EatAtHome:            "eat_at_home",
	EatAtTavern:          "eat_at_tavern",
	Production:           "production",
	FetchResource:        "fetch_resource",
	FetchFromStorage:     "fetch_from_storage",
	FetchFromGalley:      "fetch_from_galley",
	DeliverResourceBatch: "deliver_resource_batch",
	DeliverToStorage:     "deliver_to_storage",
	ConstructBuilding:    "construct_building",
	LeaveVenice:          "leave_venice",
	Fishing:              "fishing",
	EmergencyFishing:     "emergency_fishing",
	CheckBusinessStatus:  "check_business_status",
}

// AllTypes lists every activity type in declaration order.
var AllTypes = func() []Type {
	all := make([]Type, numTypes)
	for i := range all {
		all[i] = Type(i)
	}
	return all
}()

func (t Type) String() string {
	if t < numTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// Valid reports whether t is a declared type.
func (t Type) Valid() bool { return t < numTypes }

// ParseType maps a stored type name to the enum.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown activity type %q", s)
}

// IsTravel reports whether the activity only moves the citizen.
func (t Type) IsTravel() bool {
	switch t {
	case GotoHome, GotoWork, TravelToInn, GotoConstructionSite, GotoLocation:
		return true
	}
	return false
}

// IsEating reports whether the activity consumes a meal.
func (t Type) IsEating() bool {
	switch t {
	case EatFromInventory, EatAtHome, EatAtTavern:
		return true
	}
	return false
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid activity type %d", t)
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t Type) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid activity type %d", t)
	}
	return t.String(), nil
}

func (t *Type) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	}
	return fmt.Errorf("scan activity type: unsupported type %T", src)
}

// Status is the lifecycle state. An activity is created once and moves to
// processed or failed exactly once.
type Status string

const (
	StatusCreated   Status = "created"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}
