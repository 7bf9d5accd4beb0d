package upbit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"arb_go/internal/domain"
	"arb_go/internal/event"
	"arb_go/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	// Upbit accepts at most this many codes per subscription.
	maxCodes = 50
)

// orderbookResponse represents an Upbit WebSocket orderbook message.
// Every message carries the full top of book, so it is applied as a snapshot.
type orderbookResponse struct {
	Type      string `json:"type"` // orderbook
	Code      string `json:"code"` // KRW-BTC
	Timestamp int64  `json:"timestamp"`
	Units     []unit `json:"orderbook_units"`
}

type unit struct {
	AskPrice decimal.Decimal `json:"ask_price"`
	BidPrice decimal.Decimal `json:"bid_price"`
	AskSize  decimal.Decimal `json:"ask_size"`
	BidSize  decimal.Decimal `json:"bid_size"`
}

// Worker streams Upbit orderbooks into an ingestor inbox.
type Worker struct {
	*infra.BaseWSWorker

	url     string
	codes   []string
	inbox   chan<- event.Event
	metrics *infra.Metrics
	now     func() time.Time
}

// NewWorker creates an Upbit orderbook worker for market codes like "KRW-BTC".
// metrics may be nil.
func NewWorker(url string, codes []string, inbox chan<- event.Event, metrics *infra.Metrics) *Worker {
	if len(codes) > maxCodes {
		slog.Warn("Upbit codes truncated", slog.Int("requested", len(codes)), slog.Int("max", maxCodes))
		codes = codes[:maxCodes]
	}
	w := &Worker{
		url:     url,
		codes:   codes,
		inbox:   inbox,
		metrics: metrics,
		now:     time.Now,
	}
	w.BaseWSWorker = infra.NewBaseWSWorker(w, metrics)
	return w
}

func (w *Worker) GetURL() string { return w.url }
func (w *Worker) ID() string     { return "UPBIT" }

// OnConnect sends the orderbook subscription.
func (w *Worker) OnConnect(ctx context.Context, ws *infra.BaseWSWorker) error {
	msg := []map[string]any{
		{"ticket": uuid.NewString()},
		{"type": "orderbook", "codes": w.codes},
		{"format": "DEFAULT"},
	}
	if err := ws.WriteJSON(msg); err != nil {
		return err
	}
	slog.Info("Upbit subscribed", slog.Int("subs", len(w.codes)))
	return nil
}

// OnPing keeps the session alive; Upbit answers {"status":"UP"}.
func (w *Worker) OnPing(ctx context.Context, ws *infra.BaseWSWorker) error {
	return ws.Write(websocket.TextMessage, []byte("PING"))
}

// OnMessage converts one orderbook message and forwards it. Dropped when the inbox is full.
func (w *Worker) OnMessage(ctx context.Context, msg []byte) {
	ev, ok := w.decode(msg)
	if !ok {
		return
	}
	if w.metrics != nil {
		w.metrics.RecordLatency(w.now().Sub(time.UnixMilli(ev.Ts)).Nanoseconds())
	}

	select {
	case w.inbox <- ev:
	default: // DROP
		event.ReleaseSnapshotEvent(ev)
		if w.metrics != nil {
			w.metrics.RecordDropped()
		}
	}
}

func (w *Worker) decode(msg []byte) (*event.SnapshotEvent, bool) {
	var resp orderbookResponse
	if json.Unmarshal(msg, &resp) != nil || resp.Type != "orderbook" {
		return nil, false
	}
	symbol, err := ParseCode(resp.Code)
	if err != nil {
		slog.Warn("Upbit unknown code", slog.String("code", resp.Code))
		return nil, false
	}

	ev := event.AcquireSnapshotEvent()
	// Upbit has no book sequence; the server timestamp is monotonic per code.
	ev.Seq = uint64(resp.Timestamp)
	ev.Ts = resp.Timestamp
	ev.Venue = domain.VenueUpbit
	ev.Symbol = symbol
	for _, u := range resp.Units {
		if u.BidSize.IsPositive() {
			ev.Bids = append(ev.Bids, domain.PriceLevel{Price: u.BidPrice, Quantity: u.BidSize})
		}
		if u.AskSize.IsPositive() {
			ev.Asks = append(ev.Asks, domain.PriceLevel{Price: u.AskPrice, Quantity: u.AskSize})
		}
	}
	return ev, true
}

// ParseCode maps an Upbit market code ("KRW-BTC", quote first) to a Symbol.
func ParseCode(code string) (domain.Symbol, error) {
	quote, base, ok := strings.Cut(code, "-")
	if !ok || quote == "" || base == "" {
		return domain.Symbol{}, domain.ErrInvalidSymbol
	}
	return domain.NewSymbol(base, quote), nil
}

// Code is the inverse of ParseCode.
func Code(s domain.Symbol) string {
	return s.Quote + "-" + s.Base
}
