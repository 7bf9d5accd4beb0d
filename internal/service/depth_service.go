package service

import (
	"sync"

	"arb_go/internal/aggregator"
	"arb_go/internal/domain"
	"arb_go/internal/engine"
	"arb_go/internal/orderbook"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ConsolidatedView is the cross-venue read model of one symbol.
type ConsolidatedView struct {
	Symbol  domain.Symbol                `json:"symbol"`
	Venues  []domain.VenueID             `json:"venues"`
	BestBid *aggregator.VenueQuote       `json:"best_bid,omitempty"`
	BestAsk *aggregator.VenueQuote       `json:"best_ask,omitempty"`
	Spread  *decimal.Decimal             `json:"spread,omitempty"` // negative = cross-venue arbitrage
	Bids    []aggregator.AggregatedLevel `json:"bids"`
	Asks    []aggregator.AggregatedLevel `json:"asks"`
	Crossed []domain.VenueID             `json:"crossed,omitempty"`
}

// PremiumLeg addresses the book used on one side of a premium calculation.
type PremiumLeg struct {
	Venue domain.VenueID
	Quote string
}

// PremiumView compares one asset across two quote currencies.
type PremiumView struct {
	Base       string          `json:"base"`
	LocalMid   decimal.Decimal `json:"local_mid"`
	GlobalMid  decimal.Decimal `json:"global_mid"`
	Rate       decimal.Decimal `json:"rate"`
	PremiumPct decimal.Decimal `json:"premium_pct"`
}

// DepthService is the consumer facade over the manager.
type DepthService struct {
	manager *engine.Manager

	mu           sync.RWMutex
	exchangeRate decimal.Decimal
	local        PremiumLeg
	global       PremiumLeg
}

// NewDepthService creates a service over m. The premium legs default to
// Upbit KRW against Bitget USDT.
func NewDepthService(m *engine.Manager) *DepthService {
	return &DepthService{
		manager:      m,
		exchangeRate: decimal.Zero,
		local:        PremiumLeg{Venue: domain.VenueUpbit, Quote: "KRW"},
		global:       PremiumLeg{Venue: domain.VenueBitget, Quote: "USDT"},
	}
}

// SetPremiumLegs overrides the books compared by Premium.
func (s *DepthService) SetPremiumLegs(local, global PremiumLeg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = local
	s.global = global
}

// Book returns the snapshot of one venue book, cache first. The result is a
// private copy the caller may modify.
func (s *DepthService) Book(venue domain.VenueID, symbol domain.Symbol) (orderbook.Snapshot, bool) {
	snap, ok := s.manager.CachedSnapshot(venue, symbol)
	if !ok {
		return orderbook.Snapshot{}, false
	}
	return snap.Clone(), true
}

// Consolidated merges every venue (or the given ones) for symbol.
func (s *DepthService) Consolidated(symbol domain.Symbol, depth int, venues ...domain.VenueID) ConsolidatedView {
	agg := s.manager.Aggregator(symbol, venues...)

	view := ConsolidatedView{Symbol: symbol}
	if len(venues) > 0 {
		view.Venues = append(view.Venues, venues...)
	} else {
		view.Venues = s.manager.VenuesFor(symbol)
	}

	if bid, ok := agg.BestBid(); ok {
		view.BestBid = &bid
	}
	if ask, ok := agg.BestAsk(); ok {
		view.BestAsk = &ask
	}
	if view.BestBid != nil && view.BestAsk != nil {
		spread := view.BestAsk.Level.Price.Sub(view.BestBid.Level.Price)
		view.Spread = &spread
	}

	depthView := agg.AggregateDepth(depth)
	view.Bids = depthView.Bids
	view.Asks = depthView.Asks
	view.Crossed = agg.CrossedVenues()
	return view
}

// Symbols returns every tracked symbol, sorted.
func (s *DepthService) Symbols() []domain.Symbol {
	return s.manager.Symbols("")
}

// Health runs a health pass over every book.
func (s *DepthService) Health() engine.HealthReport {
	return s.manager.HealthCheck()
}

// UpdateExchangeRate sets the local/global quote conversion rate (e.g. USD/KRW).
func (s *DepthService) UpdateExchangeRate(rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exchangeRate = rate
}

// GetExchangeRate returns the current exchange rate
func (s *DepthService) GetExchangeRate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.exchangeRate
}

// Premium compares base's mid price on the local leg against the global leg
// converted at the exchange rate: 100 * (local - global*rate) / (global*rate).
func (s *DepthService) Premium(base string) (PremiumView, bool) {
	s.mu.RLock()
	rate, local, global := s.exchangeRate, s.local, s.global
	s.mu.RUnlock()

	if rate.IsZero() {
		return PremiumView{}, false
	}

	localMid, ok := s.mid(local.Venue, domain.NewSymbol(base, local.Quote))
	if !ok {
		return PremiumView{}, false
	}
	globalMid, ok := s.mid(global.Venue, domain.NewSymbol(base, global.Quote))
	if !ok {
		return PremiumView{}, false
	}

	converted := globalMid.Mul(rate)
	if converted.IsZero() {
		return PremiumView{}, false
	}
	return PremiumView{
		Base:       domain.NewSymbol(base, local.Quote).Base,
		LocalMid:   localMid,
		GlobalMid:  globalMid,
		Rate:       rate,
		PremiumPct: localMid.Sub(converted).Div(converted).Mul(hundred),
	}, true
}

func (s *DepthService) mid(venue domain.VenueID, symbol domain.Symbol) (decimal.Decimal, bool) {
	b, ok := s.manager.GetBook(venue, symbol)
	if !ok {
		return decimal.Zero, false
	}
	return b.MidPrice()
}
