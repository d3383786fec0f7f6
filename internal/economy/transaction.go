package economy

import "time"

// Transaction is a ledger entry for one movement of ducats.
type Transaction struct {
	ID         int64     `json:"id" db:"id"`
	Type       string    `json:"type" db:"type"` // e.g. "resource_purchase", "gondola_fee"
	Asset      string    `json:"asset" db:"asset"`
	Seller     string    `json:"seller" db:"seller"` // payee
	Buyer      string    `json:"buyer" db:"buyer"`   // payer
	Price      Ducats    `json:"price" db:"price"`
	Notes      string    `json:"notes" db:"notes"`
	ExecutedAt time.Time `json:"executed_at" db:"executed_at"`
}
