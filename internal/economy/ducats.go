// Package economy provides money, inventory records, contracts, and ledger
// entries shared by the scheduler and the resolver.
package economy

import (
	"fmt"
	"math"
)

// Ducats is an amount of money in hundredths of a ducat. Fixed point keeps
// every debit equal to its credit and lets multi-leg splits sum exactly.
type Ducats int64

// Ducat is one whole ducat.
const Ducat Ducats = 100

// FromFloat converts a float ducat amount, rounding to the nearest hundredth.
func FromFloat(v float64) Ducats {
	return Ducats(math.Round(v * float64(Ducat)))
}

// Float returns the amount in ducats.
func (d Ducats) Float() float64 {
	return float64(d) / float64(Ducat)
}

// String formats the amount with two decimals.
func (d Ducats) String() string {
	sign := ""
	v := int64(d)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/int64(Ducat), v%int64(Ducat))
}

// Times returns the price of count units at unit price d, rounded to the
// nearest hundredth. Counts may be fractional.
func (d Ducats) Times(count float64) Ducats {
	return Ducats(math.Round(float64(d) * count))
}

// Split divides total into a share of pct percent and the remainder.
// share + rest == total always holds.
func Split(total Ducats, pct int64) (share, rest Ducats) {
	share = total * Ducats(pct) / 100
	return share, total - share
}

// Affordable returns how many units of price fit into funds. Zero or negative
// prices mean the amount is unbounded by money.
func Affordable(funds, price Ducats) float64 {
	if price <= 0 {
		return math.Inf(1)
	}
	if funds <= 0 {
		return 0
	}
	return float64(funds) / float64(price)
}
