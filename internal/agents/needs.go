// Needs: hunger, starvation, and how much a citizen can still carry.
package agents

import (
	"time"

	"github.com/talgya/serenissima/internal/economy"
)

// Needs evaluates bodily needs against configured thresholds.
type Needs struct {
	HungerAfter     time.Duration // No meal for this long: hungry
	StarvationAfter time.Duration // No meal for this long: starving, emergency behaviour only
	CarryCapacity   float64       // Units a citizen can carry
}

// DefaultNeeds returns the thresholds used when no tuning file overrides them.
func DefaultNeeds() Needs {
	return Needs{
		HungerAfter:     12 * time.Hour,
		StarvationAfter: 24 * time.Hour,
		CarryCapacity:   20,
	}
}

// IsHungry reports whether the citizen has never eaten or last ate more than
// HungerAfter ago.
func (n Needs) IsHungry(c *Citizen, now time.Time) bool {
	if c.AteAt == nil {
		return true
	}
	return now.Sub(*c.AteAt) > n.HungerAfter
}

// IsStarving is the stricter test that gates emergency eating and fishing.
// A citizen with no recorded meal counts as starving.
func (n Needs) IsStarving(c *Citizen, now time.Time) bool {
	if c.AteAt == nil {
		return true
	}
	return now.Sub(*c.AteAt) > n.StarvationAfter
}

// CarriedLoad sums the citizen-held rows of the given inventory.
func CarriedLoad(username string, inventory []economy.Resource) float64 {
	total := 0.0
	for _, r := range inventory {
		if r.AssetType == economy.AssetCitizen && r.Asset == username {
			total += r.Count
		}
	}
	return total
}

// RemainingCapacity is how many more units the citizen can pick up. Never
// negative.
func (n Needs) RemainingCapacity(username string, inventory []economy.Resource) float64 {
	left := n.CarryCapacity - CarriedLoad(username, inventory)
	if left < 0 {
		return 0
	}
	return left
}

// IsFull reports whether the citizen cannot carry anything more.
func (n Needs) IsFull(username string, inventory []economy.Resource) bool {
	return n.RemainingCapacity(username, inventory) <= economy.CountEpsilon
}
