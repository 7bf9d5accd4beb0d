package domain

import (
	"strings"
)

// Symbol is a base/quote asset pair. It is a comparable value and can be used as a map key.
type Symbol struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// NewSymbol creates a Symbol with upper-cased assets.
func NewSymbol(base, quote string) Symbol {
	return Symbol{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

// ParseSymbol parses "BTC/USDT" or "BTC-USDT" into a Symbol.
func ParseSymbol(pair string) (Symbol, error) {
	idx := strings.IndexAny(pair, "/-")
	if idx <= 0 || idx == len(pair)-1 {
		return Symbol{}, ErrInvalidSymbol
	}
	s := NewSymbol(pair[:idx], pair[idx+1:])
	if s.IsZero() {
		return Symbol{}, ErrInvalidSymbol
	}
	return s, nil
}

// IsZero reports whether either asset is missing.
func (s Symbol) IsZero() bool {
	return s.Base == "" || s.Quote == ""
}

func (s Symbol) String() string {
	return s.Base + "/" + s.Quote
}

// VenueID identifies an exchange. Known venues are declared below; any other
// non-empty identifier is accepted as a custom venue.
type VenueID string

const (
	VenueBinance  VenueID = "binance"
	VenueCoinbase VenueID = "coinbase"
	VenueKraken   VenueID = "kraken"
	VenueBitfinex VenueID = "bitfinex"
	VenueHuobi    VenueID = "huobi"
	VenueOKX      VenueID = "okx"
	VenueUpbit    VenueID = "upbit"
	VenueBitget   VenueID = "bitget"
)

// knownVenues fixes the deterministic venue ordering used for tie-breaks.
var knownVenues = []VenueID{
	VenueBinance,
	VenueCoinbase,
	VenueKraken,
	VenueBitfinex,
	VenueHuobi,
	VenueOKX,
	VenueUpbit,
	VenueBitget,
}

func (v VenueID) String() string { return string(v) }

// IsKnown reports whether the venue is one of the declared venues.
func (v VenueID) IsKnown() bool {
	for _, k := range knownVenues {
		if k == v {
			return true
		}
	}
	return false
}

// VenueLess orders venues: declared venues first in declaration order,
// custom venues after them in lexicographic order.
func VenueLess(a, b VenueID) bool {
	ra, rb := venueRank(a), venueRank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

func venueRank(v VenueID) int {
	for i, k := range knownVenues {
		if k == v {
			return i
		}
	}
	return len(knownVenues)
}

// Side is the side of the book a level belongs to.
type Side uint8

const (
	Bid Side = iota + 1
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "BID"
	case Ask:
		return "ASK"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is Bid or Ask.
func (s Side) Valid() bool {
	return s == Bid || s == Ask
}
