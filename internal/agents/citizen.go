// Package agents provides the citizen data model, needs evaluation, and the
// class schedule calendar.
package agents

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/world"
)

// SocialClass is a citizen's estate. It governs the daily schedule, the
// economic tier, and which behaviours are open to the citizen.
type SocialClass uint8

const (
	ClassFacchini   SocialClass = iota // Porters and day labourers
	ClassPopolani                      // Artisans and shopkeepers
	ClassCittadini                     // Merchants and professionals
	ClassNobili                        // Patricians, never scheduled to work
	ClassForestieri                    // Visiting foreigners
)

// AllClasses lists every social class.
var AllClasses = []SocialClass{ClassFacchini, ClassPopolani, ClassCittadini, ClassNobili, ClassForestieri}

var classNames = [...]string{
	ClassFacchini:   "Facchini",
	ClassPopolani:   "Popolani",
	ClassCittadini:  "Cittadini",
	ClassNobili:     "Nobili",
	ClassForestieri: "Forestieri",
}

func (c SocialClass) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("SocialClass(%d)", c)
}

// ParseSocialClass maps a stored class name back to the enum.
func ParseSocialClass(s string) (SocialClass, error) {
	for i, name := range classNames {
		if name == s {
			return SocialClass(i), nil
		}
	}
	return 0, fmt.Errorf("unknown social class %q", s)
}

// Tier is the economic tier of the class, used to match goods to buyers.
func (c SocialClass) Tier() int {
	switch c {
	case ClassFacchini:
		return 1
	case ClassPopolani:
		return 2
	case ClassCittadini, ClassForestieri:
		return 3
	case ClassNobili:
		return 4
	}
	return 1
}

func (c SocialClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *SocialClass) UnmarshalText(b []byte) error {
	v, err := ParseSocialClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Value stores the class by name.
func (c SocialClass) Value() (driver.Value, error) {
	return c.String(), nil
}

// Scan reads a class name from the store.
func (c *SocialClass) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return c.UnmarshalText([]byte(v))
	case []byte:
		return c.UnmarshalText(v)
	}
	return fmt.Errorf("scan social class: unsupported type %T", src)
}

// Citizen is a person living in (or visiting) the city.
type Citizen struct {
	Username    string          `json:"username" db:"username"`
	FirstName   string          `json:"first_name" db:"first_name"`
	LastName    string          `json:"last_name" db:"last_name"`
	SocialClass SocialClass     `json:"social_class" db:"social_class"`
	Position    *world.Position `json:"position,omitempty" db:"-"`
	Ducats      economy.Ducats  `json:"ducats" db:"ducats"`
	AteAt       *time.Time      `json:"ate_at,omitempty" db:"ate_at"`
	InVenice    bool            `json:"in_venice" db:"in_venice"`
	IsAI        bool            `json:"is_ai" db:"is_ai"`

	// DepartAt is the planned departure of a Forestieri visitor.
	DepartAt *time.Time `json:"depart_at,omitempty" db:"depart_at"`
}

// Name returns the display name of the citizen.
func (c *Citizen) Name() string {
	if c.FirstName == "" && c.LastName == "" {
		return c.Username
	}
	return c.FirstName + " " + c.LastName
}

// At reports whether the citizen stands at the given position.
func (c *Citizen) At(p world.Position) bool {
	return c.Position != nil && c.Position.Same(p)
}
