package economy

import "time"

// ContractType enumerates the agreements the engine consumes.
type ContractType string

const (
	ContractPublicSell   ContractType = "public_sell"
	ContractRecurrent    ContractType = "recurrent"
	ContractImport       ContractType = "import"
	ContractStorageQuery ContractType = "storage_query"
	ContractConstruction ContractType = "construction_project"
)

// ContractStatus tracks fulfillment.
type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractFailed    ContractStatus = "failed"
)

// Contract is an economic agreement between a buyer and a seller.
//
// For public_sell offers Buyer is empty until a purchase names one. For
// storage_query contracts the buyer rents TargetAmount units of space in
// SellerBuilding. For construction_project contracts BuyerBuilding is the site
// and SellerBuilding the workshop doing the work.
type Contract struct {
	ContractID       string         `json:"contract_id" db:"contract_id"`
	Type             ContractType   `json:"type" db:"type"`
	Buyer            string         `json:"buyer" db:"buyer"`
	Seller           string         `json:"seller" db:"seller"`
	ResourceType     string         `json:"resource_type" db:"resource_type"`
	PricePerResource Ducats         `json:"price_per_resource" db:"price_per_resource"`
	TargetAmount     float64        `json:"target_amount" db:"target_amount"`
	BuyerBuilding    string         `json:"buyer_building" db:"buyer_building"`
	SellerBuilding   string         `json:"seller_building" db:"seller_building"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	EndAt            *time.Time     `json:"end_at,omitempty" db:"end_at"`
	Status           ContractStatus `json:"status" db:"status"`
}

// ActiveAt reports whether the contract is open at the given instant.
func (c *Contract) ActiveAt(now time.Time) bool {
	if c.Status != ContractActive {
		return false
	}
	if now.Before(c.CreatedAt) {
		return false
	}
	return c.EndAt == nil || now.Before(*c.EndAt)
}
