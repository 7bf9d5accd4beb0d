package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Health holds the independent anomaly flags of a single book.
// Flags are observations, not errors: consumers decide the policy.
type Health struct {
	Crossed    bool `json:"crossed"`
	Incomplete bool `json:"incomplete"`
	Stale      bool `json:"stale"`
}

// Healthy reports whether no flag is set.
func (h Health) Healthy() bool {
	return !h.Crossed && !h.Incomplete && !h.Stale
}

// Newly returns the flags set in h that were not set in prev.
func (h Health) Newly(prev Health) Health {
	return Health{
		Crossed:    h.Crossed && !prev.Crossed,
		Incomplete: h.Incomplete && !prev.Incomplete,
		Stale:      h.Stale && !prev.Stale,
	}
}

func (h Health) String() string {
	if h.Healthy() {
		return "healthy"
	}
	var flags []string
	if h.Crossed {
		flags = append(flags, "crossed")
	}
	if h.Incomplete {
		flags = append(flags, "incomplete")
	}
	if h.Stale {
		flags = append(flags, "stale")
	}
	return strings.Join(flags, "|")
}

// CrossingSeverity grades how far a crossed book overlaps.
type CrossingSeverity int

const (
	CrossingNone CrossingSeverity = iota
	CrossingMinor
	CrossingModerate
	CrossingSevere
)

var (
	moderateCross = decimal.NewFromInt(10)
	severeCross   = decimal.NewFromInt(100)
)

// ClassifyCrossing grades the overlap bestBid - bestAsk in price units.
func ClassifyCrossing(bestBid, bestAsk decimal.Decimal) CrossingSeverity {
	overlap := bestBid.Sub(bestAsk)
	switch {
	case overlap.IsNegative():
		return CrossingNone
	case overlap.GreaterThan(severeCross):
		return CrossingSevere
	case overlap.GreaterThan(moderateCross):
		return CrossingModerate
	default:
		return CrossingMinor
	}
}

func (c CrossingSeverity) String() string {
	switch c {
	case CrossingMinor:
		return "MINOR"
	case CrossingModerate:
		return "MODERATE"
	case CrossingSevere:
		return "SEVERE"
	default:
		return "NONE"
	}
}
