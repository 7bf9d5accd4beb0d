package engine

import (
	"log/slog"
	"sync"
	"time"

	"arb_go/internal/domain"
	"arb_go/internal/orderbook"

	"github.com/shopspring/decimal"
)

const (
	// volumeDepth is the number of levels per side summed for volume events.
	volumeDepth = 10
	// gapDepth is the number of levels per side scanned for liquidity gaps.
	gapDepth = 20
)

var (
	volumeChangeThreshold = decimal.RequireFromString("0.1")  // 10%
	gapThreshold          = decimal.RequireFromString("0.01") // 1%
	bpsFactor             = decimal.NewFromInt(10000)
)

// BookEventKind names a derived market event.
type BookEventKind string

const (
	KindBestBidAsk    BookEventKind = "best_bid_ask"
	KindSpread        BookEventKind = "spread"
	KindVolume        BookEventKind = "volume"
	KindCrossing      BookEventKind = "crossing"
	KindLiquidityGap  BookEventKind = "liquidity_gap"
	KindPriceMovement BookEventKind = "price_movement"
)

// BookEvent is a change derived by comparing a book against its previous state.
type BookEvent interface {
	Kind() BookEventKind
	Book() BookKey
}

// EventHeader is shared by every BookEvent.
type EventHeader struct {
	Key       BookKey   `json:"key"`
	Timestamp time.Time `json:"ts"`
}

func (h EventHeader) Book() BookKey { return h.Key }

// BestBidAskEvent fires when either top level changes in price or quantity.
type BestBidAskEvent struct {
	EventHeader
	BestBid     *domain.PriceLevel `json:"best_bid,omitempty"`
	BestAsk     *domain.PriceLevel `json:"best_ask,omitempty"`
	PrevBestBid *domain.PriceLevel `json:"prev_best_bid,omitempty"`
	PrevBestAsk *domain.PriceLevel `json:"prev_best_ask,omitempty"`
}

func (BestBidAskEvent) Kind() BookEventKind { return KindBestBidAsk }

// SpreadEvent fires when the spread changes, including appearing or vanishing.
type SpreadEvent struct {
	EventHeader
	Spread     *decimal.Decimal `json:"spread,omitempty"`
	SpreadBps  *int64           `json:"spread_bps,omitempty"`
	PrevSpread *decimal.Decimal `json:"prev_spread,omitempty"`
	Mid        *decimal.Decimal `json:"mid,omitempty"`
}

func (SpreadEvent) Kind() BookEventKind { return KindSpread }

// VolumeEvent fires when the top-of-book volume moves by more than 10%.
type VolumeEvent struct {
	EventHeader
	BidVolume decimal.Decimal  `json:"bid_volume"`
	AskVolume decimal.Decimal  `json:"ask_volume"`
	Imbalance *decimal.Decimal `json:"imbalance,omitempty"` // bid share of the total
	Depth     int              `json:"depth"`
}

func (VolumeEvent) Kind() BookEventKind { return KindVolume }

// CrossingEvent fires on every pass that sees the book crossed.
type CrossingEvent struct {
	EventHeader
	BestBid     domain.PriceLevel       `json:"best_bid"`
	BestAsk     domain.PriceLevel       `json:"best_ask"`
	CrossAmount decimal.Decimal         `json:"cross_amount"`
	Severity    domain.CrossingSeverity `json:"severity"`
}

func (CrossingEvent) Kind() BookEventKind { return KindCrossing }

// LiquidityGapEvent reports adjacent levels more than 1% apart.
// Level is the 1-based position of the pair within the side.
type LiquidityGapEvent struct {
	EventHeader
	Side     domain.Side     `json:"side"`
	GapStart decimal.Decimal `json:"gap_start"`
	GapEnd   decimal.Decimal `json:"gap_end"`
	GapSize  decimal.Decimal `json:"gap_size"`
	Level    int             `json:"level"`
}

func (LiquidityGapEvent) Kind() BookEventKind { return KindLiquidityGap }

// Movement classifies a best-price change from the side's point of view.
type Movement string

const (
	MovementImprovement Movement = "improvement" // higher bid, lower ask
	MovementDegradation Movement = "degradation"
)

// PriceMovementEvent fires when a best price moves. ChangeBps is truncated
// toward zero.
type PriceMovementEvent struct {
	EventHeader
	Side      domain.Side     `json:"side"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangeBps int64           `json:"change_bps"`
	Movement  Movement        `json:"movement"`
}

func (PriceMovementEvent) Kind() BookEventKind { return KindPriceMovement }

// BookEventHandler consumes derived events. Implementations must be safe for
// concurrent use and must not block.
type BookEventHandler interface {
	HandleBookEvent(ev BookEvent)
}

// BookEventHandlerFunc adapts a function to BookEventHandler.
type BookEventHandlerFunc func(BookEvent)

func (f BookEventHandlerFunc) HandleBookEvent(ev BookEvent) { f(ev) }

// topState is what the processor remembers per book between passes.
type topState struct {
	bid, ask       domain.PriceLevel
	hasBid, hasAsk bool
	bidVol, askVol decimal.Decimal
}

func (s topState) spread() (decimal.Decimal, bool) {
	if !s.hasBid || !s.hasAsk {
		return decimal.Zero, false
	}
	return s.ask.Price.Sub(s.bid.Price), true
}

// EventProcessor derives market events from successive states of each book.
// It keeps the previous state per book; the first pass over a book only
// reports crossings and gaps.
type EventProcessor struct {
	handlers []BookEventHandler
	now      func() time.Time

	mu   sync.Mutex
	prev map[BookKey]topState
}

// NewEventProcessor creates a processor fanning out to handlers.
func NewEventProcessor(handlers ...BookEventHandler) *EventProcessor {
	return &EventProcessor{
		handlers: handlers,
		now:      time.Now,
		prev:     make(map[BookKey]topState),
	}
}

// Process compares b with its state at the previous pass and emits the
// resulting events. Calls for one book must come from one goroutine.
func (p *EventProcessor) Process(key BookKey, b *orderbook.OrderBook) []BookEvent {
	bids, asks := b.Depth(gapDepth)
	cur := topState{bidVol: sumQuantity(bids, volumeDepth), askVol: sumQuantity(asks, volumeDepth)}
	if len(bids) > 0 {
		cur.bid, cur.hasBid = bids[0], true
	}
	if len(asks) > 0 {
		cur.ask, cur.hasAsk = asks[0], true
	}

	p.mu.Lock()
	prev, seen := p.prev[key]
	p.prev[key] = cur
	p.mu.Unlock()

	hdr := EventHeader{Key: key, Timestamp: p.now()}
	var events []BookEvent
	if seen {
		events = appendChanges(events, hdr, prev, cur)
	}
	if cur.hasBid && cur.hasAsk && cur.bid.Price.GreaterThanOrEqual(cur.ask.Price) {
		events = append(events, CrossingEvent{
			EventHeader: hdr,
			BestBid:     cur.bid,
			BestAsk:     cur.ask,
			CrossAmount: cur.bid.Price.Sub(cur.ask.Price),
			Severity:    domain.ClassifyCrossing(cur.bid.Price, cur.ask.Price),
		})
	}
	events = appendGaps(events, hdr, domain.Bid, bids)
	events = appendGaps(events, hdr, domain.Ask, asks)

	for _, ev := range events {
		for _, h := range p.handlers {
			h.HandleBookEvent(ev)
		}
	}
	return events
}

func appendChanges(events []BookEvent, hdr EventHeader, prev, cur topState) []BookEvent {
	if !sameLevel(prev.bid, prev.hasBid, cur.bid, cur.hasBid) || !sameLevel(prev.ask, prev.hasAsk, cur.ask, cur.hasAsk) {
		events = append(events, BestBidAskEvent{
			EventHeader: hdr,
			BestBid:     levelPtr(cur.bid, cur.hasBid),
			BestAsk:     levelPtr(cur.ask, cur.hasAsk),
			PrevBestBid: levelPtr(prev.bid, prev.hasBid),
			PrevBestAsk: levelPtr(prev.ask, prev.hasAsk),
		})
	}

	prevSpread, hadSpread := prev.spread()
	curSpread, hasSpread := cur.spread()
	if hadSpread != hasSpread || (hasSpread && !prevSpread.Equal(curSpread)) {
		ev := SpreadEvent{EventHeader: hdr}
		if hadSpread {
			ev.PrevSpread = &prevSpread
		}
		if hasSpread {
			ev.Spread = &curSpread
			mid := cur.bid.Price.Add(cur.ask.Price).Div(decimal.NewFromInt(2))
			ev.Mid = &mid
			if cur.bid.Price.IsPositive() {
				bps := curSpread.Div(cur.bid.Price).Mul(bpsFactor).IntPart()
				ev.SpreadBps = &bps
			}
		}
		events = append(events, ev)
	}

	prevTotal := prev.bidVol.Add(prev.askVol)
	curTotal := cur.bidVol.Add(cur.askVol)
	if prevTotal.IsPositive() && curTotal.Sub(prevTotal).Div(prevTotal).Abs().GreaterThan(volumeChangeThreshold) {
		ev := VolumeEvent{EventHeader: hdr, BidVolume: cur.bidVol, AskVolume: cur.askVol, Depth: volumeDepth}
		if curTotal.IsPositive() {
			ratio := cur.bidVol.Div(curTotal)
			ev.Imbalance = &ratio
		}
		events = append(events, ev)
	}

	if prev.hasBid && cur.hasBid && !prev.bid.Price.Equal(cur.bid.Price) {
		mv := MovementDegradation
		if cur.bid.Price.GreaterThan(prev.bid.Price) {
			mv = MovementImprovement
		}
		events = append(events, movement(hdr, domain.Bid, prev.bid.Price, cur.bid.Price, mv))
	}
	if prev.hasAsk && cur.hasAsk && !prev.ask.Price.Equal(cur.ask.Price) {
		mv := MovementDegradation
		if cur.ask.Price.LessThan(prev.ask.Price) {
			mv = MovementImprovement
		}
		events = append(events, movement(hdr, domain.Ask, prev.ask.Price, cur.ask.Price, mv))
	}
	return events
}

func movement(hdr EventHeader, side domain.Side, from, to decimal.Decimal, mv Movement) PriceMovementEvent {
	var bps int64
	if !from.IsZero() {
		bps = to.Sub(from).Div(from).Mul(bpsFactor).IntPart()
	}
	return PriceMovementEvent{EventHeader: hdr, Side: side, OldPrice: from, NewPrice: to, ChangeBps: bps, Movement: mv}
}

// appendGaps scans adjacent levels best-first. The gap is measured against the
// lower price of the pair.
func appendGaps(events []BookEvent, hdr EventHeader, side domain.Side, levels []domain.PriceLevel) []BookEvent {
	for i := 1; i < len(levels); i++ {
		lo, hi := levels[i].Price, levels[i-1].Price
		if side == domain.Ask {
			lo, hi = hi, lo
		}
		if !lo.IsPositive() {
			continue
		}
		size := hi.Sub(lo)
		if size.Div(lo).GreaterThan(gapThreshold) {
			events = append(events, LiquidityGapEvent{
				EventHeader: hdr,
				Side:        side,
				GapStart:    lo,
				GapEnd:      hi,
				GapSize:     size,
				Level:       i,
			})
		}
	}
	return events
}

func sumQuantity(levels []domain.PriceLevel, n int) decimal.Decimal {
	if len(levels) > n {
		levels = levels[:n]
	}
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Quantity)
	}
	return total
}

func sameLevel(a domain.PriceLevel, hasA bool, b domain.PriceLevel, hasB bool) bool {
	if hasA != hasB {
		return false
	}
	return !hasA || (a.Price.Equal(b.Price) && a.Quantity.Equal(b.Quantity))
}

func levelPtr(l domain.PriceLevel, ok bool) *domain.PriceLevel {
	if !ok {
		return nil
	}
	return &l
}

// LogBookEvents writes derived events to l: crossings at warn, gaps at info,
// everything else at debug.
func LogBookEvents(l *slog.Logger) BookEventHandler {
	if l == nil {
		l = slog.Default()
	}
	return BookEventHandlerFunc(func(ev BookEvent) {
		book := slog.String("book", ev.Book().String())
		switch e := ev.(type) {
		case CrossingEvent:
			l.Warn("⚠️ Book crossed", book,
				slog.String("severity", e.Severity.String()),
				slog.String("amount", e.CrossAmount.String()))
		case LiquidityGapEvent:
			l.Info("Liquidity gap", book,
				slog.String("side", e.Side.String()),
				slog.String("from", e.GapStart.String()),
				slog.String("to", e.GapEnd.String()),
				slog.Int("level", e.Level))
		case PriceMovementEvent:
			l.Debug("Price movement", book,
				slog.String("side", e.Side.String()),
				slog.String("old", e.OldPrice.String()),
				slog.String("new", e.NewPrice.String()),
				slog.Int64("bps", e.ChangeBps),
				slog.String("movement", string(e.Movement)))
		default:
			l.Debug("Book event", book, slog.String("kind", string(ev.Kind())))
		}
	})
}
