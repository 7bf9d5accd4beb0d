package domain

import "github.com/shopspring/decimal"

// PriceLevel is an aggregated quantity resting at one price.
// A zero quantity in an update means "remove this price".
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// NewPriceLevel creates a PriceLevel from decimal values.
func NewPriceLevel(price, quantity decimal.Decimal) PriceLevel {
	return PriceLevel{Price: price, Quantity: quantity}
}

// IsEmpty reports whether the level carries no quantity.
func (l PriceLevel) IsEmpty() bool {
	return l.Quantity.IsZero()
}

// Delta is an incremental add/modify/remove of one price level,
// stamped with the venue-issued sequence number.
type Delta struct {
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Sequence uint64          `json:"seq"`
}

// IsDelete reports whether the delta removes its price level.
func (d Delta) IsDelete() bool {
	return d.Quantity.IsZero()
}
