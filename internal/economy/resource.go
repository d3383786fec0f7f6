package economy

import (
	"fmt"
	"math"
)

// CountEpsilon is the threshold under which a resource row counts as empty
// and is deleted.
const CountEpsilon = 1e-6

// AssetType says whether a resource row sits in a citizen's hands or in a
// building's storage.
type AssetType string

const (
	AssetCitizen  AssetType = "citizen"
	AssetBuilding AssetType = "building"
)

// ResourceKey is the identity of an inventory line.
type ResourceKey struct {
	Type      string    `json:"type" db:"type"`
	AssetType AssetType `json:"asset_type" db:"asset_type"`
	Asset     string    `json:"asset" db:"asset"`
	Owner     string    `json:"owner" db:"owner"`
}

// String renders the key for logs and lock hashing.
func (k ResourceKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Type, k.AssetType, k.Asset, k.Owner)
}

// Resource is one inventory line: Count units of Type held at Asset and owned
// by Owner.
type Resource struct {
	ResourceKey
	Count float64 `json:"count" db:"count"`

	// DeliverTo marks goods carried on behalf of someone else. A porter
	// holding a merchant's cargo carries rows whose Owner is the buyer and
	// whose DeliverTo names the destination building. Empty for goods the
	// holder simply owns or is taking home.
	DeliverTo string `json:"deliver_to,omitempty" db:"deliver_to"`
}

// IsEmpty reports whether the row should be deleted.
func (r Resource) IsEmpty() bool {
	return r.Count <= CountEpsilon
}

// CarriedBy builds the key of a row carried by a citizen.
func CarriedBy(citizen, resourceType, owner string) ResourceKey {
	return ResourceKey{Type: resourceType, AssetType: AssetCitizen, Asset: citizen, Owner: owner}
}

// StoredIn builds the key of a row stored in a building.
func StoredIn(buildingID, resourceType, owner string) ResourceKey {
	return ResourceKey{Type: resourceType, AssetType: AssetBuilding, Asset: buildingID, Owner: owner}
}

// TotalCount sums the counts of the given rows.
func TotalCount(rows []Resource) float64 {
	total := 0.0
	for _, r := range rows {
		total += r.Count
	}
	return total
}

// CountOf sums the rows of one resource type, optionally restricted to an
// owner (empty owner matches everyone).
func CountOf(rows []Resource, resourceType, owner string) float64 {
	total := 0.0
	for _, r := range rows {
		if r.Type != resourceType {
			continue
		}
		if owner != "" && r.Owner != owner {
			continue
		}
		total += r.Count
	}
	return total
}

// Floor rounds an amount down to the precision the engine moves goods in.
// Amounts derived from money (funds / price) would otherwise carry
// floating-point tails.
func Floor(v float64) float64 {
	return math.Floor(v*1000+CountEpsilon) / 1000
}
