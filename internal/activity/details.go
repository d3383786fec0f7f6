package activity

import (
	"encoding/json"
	"fmt"

	"github.com/talgya/serenissima/internal/economy"
)

// Details is the structured payload an activity carries for its resolver.
// The set of payloads is closed; each is stored as {"kind": ..., "data": ...}.
type Details interface {
	detailsKind() string
}

// TradeDetails prices a fetch. Buyer pays Seller PricePerResource per unit
// actually picked up; a zero price moves goods without payment.
type TradeDetails struct {
	Buyer            string         `json:"buyer"`
	Seller           string         `json:"seller"`
	PricePerResource economy.Ducats `json:"price_per_resource"`
	DeliverTo        string         `json:"deliver_to,omitempty"`
	Purpose          string         `json:"purpose,omitempty"` // "provisioning", "shopping", ...
}

// GalleyDetails settles an import pickup in two legs: the buyer pays the
// merchant, then the merchant remits TreasuryPercent to the treasury.
type GalleyDetails struct {
	Buyer            string         `json:"buyer"`
	Merchant         string         `json:"merchant"`
	PricePerResource economy.Ducats `json:"price_per_resource"`
	TreasuryPercent  int64          `json:"treasury_percent"`
	DeliverTo        string         `json:"deliver_to"`
}

// DeliveryDetails names whose goods a courier drops off.
type DeliveryDetails struct {
	Owner string `json:"owner"`
}

// ProductionDetails is the recipe being worked.
type ProductionDetails struct {
	Operator string             `json:"operator"`
	Inputs   map[string]float64 `json:"inputs"`
	Outputs  map[string]float64 `json:"outputs"`
}

// MealDetails is the food to consume and, at a tavern, its price.
type MealDetails struct {
	ResourceType string         `json:"resource_type"`
	Owner        string         `json:"owner,omitempty"`
	Price        economy.Ducats `json:"price,omitempty"`
	Operator     string         `json:"operator,omitempty"`
}

// ConstructionDetails is one shift on a construction site.
type ConstructionDetails struct {
	WorkMinutes int    `json:"work_minutes"`
	Workshop    string `json:"workshop"`
}

// FishingDetails is the water point worked and the catch.
type FishingDetails struct {
	WaterPoint string  `json:"water_point"`
	Yield      float64 `json:"yield"`
}

// IdleDetails records why nothing else was chosen.
type IdleDetails struct {
	Reason string `json:"reason"`
}

// LocationDetails explains an open-ended trip, e.g. one an AI persona asked for.
type LocationDetails struct {
	Purpose string `json:"purpose"`
}

func (TradeDetails) detailsKind() string        { return "trade" }
func (GalleyDetails) detailsKind() string       { return "galley" }
func (DeliveryDetails) detailsKind() string     { return "delivery" }
func (ProductionDetails) detailsKind() string   { return "production" }
func (MealDetails) detailsKind() string         { return "meal" }
func (ConstructionDetails) detailsKind() string { return "construction" }
func (FishingDetails) detailsKind() string      { return "fishing" }
func (IdleDetails) detailsKind() string         { return "idle" }
func (LocationDetails) detailsKind() string     { return "location" }

var detailsFactory = map[string]func() Details{
	"trade":        func() Details { return &TradeDetails{} },
	"galley":       func() Details { return &GalleyDetails{} },
	"delivery":     func() Details { return &DeliveryDetails{} },
	"production":   func() Details { return &ProductionDetails{} },
	"meal":         func() Details { return &MealDetails{} },
	"construction": func() Details { return &ConstructionDetails{} },
	"fishing":      func() Details { return &FishingDetails{} },
	"idle":         func() Details { return &IdleDetails{} },
	"location":     func() Details { return &LocationDetails{} },
}

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeDetails serializes a payload with its kind tag. A nil payload encodes
// as nil.
func EncodeDetails(d Details) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal %s details: %w", d.detailsKind(), err)
	}
	return json.Marshal(envelope{Kind: d.detailsKind(), Data: data})
}

// DecodeDetails reverses EncodeDetails. Empty input yields nil.
func DecodeDetails(raw []byte) (Details, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("details envelope: %w", err)
	}
	mk, ok := detailsFactory[env.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown details kind %q", env.Kind)
	}
	ptr := mk()
	if err := json.Unmarshal(env.Data, ptr); err != nil {
		return nil, fmt.Errorf("%s details: %w", env.Kind, err)
	}
	return deref(ptr), nil
}

// deref returns the value form so callers can type-switch on plain structs.
func deref(d Details) Details {
	switch v := d.(type) {
	case *TradeDetails:
		return *v
	case *GalleyDetails:
		return *v
	case *DeliveryDetails:
		return *v
	case *ProductionDetails:
		return *v
	case *MealDetails:
		return *v
	case *ConstructionDetails:
		return *v
	case *FishingDetails:
		return *v
	case *IdleDetails:
		return *v
	case *LocationDetails:
		return *v
	}
	return d
}
