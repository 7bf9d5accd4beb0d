package bitget

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"arb_go/internal/domain"
	"arb_go/internal/event"
	"arb_go/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// seqShift leaves room for the per-message delta index below the venue sequence.
const seqShift = 16

// quoteAssets are tried in order when splitting an instId.
var quoteAssets = []string{"USDT", "USDC", "USDE", "BTC", "ETH", "EUR", "BRL"}

// Worker streams Bitget v2 order books into an ingestor inbox.
type Worker struct {
	*infra.BaseWSWorker

	url      string
	instType string
	channel  string
	instIds  []string
	symbols  map[string]domain.Symbol // instId -> symbol
	inbox    chan<- event.Event
	metrics  *infra.Metrics
	now      func() time.Time
}

// NewWorker creates a Bitget books worker for instIds like "BTCUSDT".
// instIds that cannot be split into base and quote are skipped with a warning.
// metrics may be nil.
func NewWorker(url, instType, channel string, instIds []string, inbox chan<- event.Event, metrics *infra.Metrics) *Worker {
	ids := make([]string, 0, len(instIds))
	symbols := make(map[string]domain.Symbol, len(instIds))
	for _, id := range instIds {
		s, err := ParseInstID(id)
		if err != nil {
			slog.Warn("Bitget instId skipped", slog.String("instId", id), slog.Any("error", err))
			continue
		}
		id = strings.ToUpper(strings.TrimSpace(id))
		if _, dup := symbols[id]; dup {
			continue
		}
		ids = append(ids, id)
		symbols[id] = s
	}

	w := &Worker{
		url:      url,
		instType: instType,
		channel:  channel,
		instIds:  ids,
		symbols:  symbols,
		inbox:    inbox,
		metrics:  metrics,
		now:      time.Now,
	}
	w.BaseWSWorker = infra.NewBaseWSWorker(w, metrics)
	return w
}

func (w *Worker) GetURL() string { return w.url }
func (w *Worker) ID() string     { return "BITGET_" + w.instType }

// OnConnect subscribes every instId on the configured channel.
func (w *Worker) OnConnect(ctx context.Context, ws *infra.BaseWSWorker) error {
	args := make([]subscribeArg, 0, len(w.instIds))
	for _, id := range w.instIds {
		args = append(args, subscribeArg{InstType: w.instType, Channel: w.channel, InstId: id})
	}
	if err := ws.WriteJSON(subscribeRequest{Op: "subscribe", Args: args}); err != nil {
		return err
	}
	slog.Info("Bitget subscribed", slog.String("channel", w.channel), slog.Int("subs", len(args)))
	return nil
}

// OnPing sends the text ping Bitget expects every 30s.
func (w *Worker) OnPing(ctx context.Context, ws *infra.BaseWSWorker) error {
	return ws.Write(websocket.TextMessage, []byte("ping"))
}

// OnMessage converts one books push into snapshot or delta events.
func (w *Worker) OnMessage(ctx context.Context, msg []byte) {
	if string(msg) == "pong" {
		return
	}

	var resp booksResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return
	}
	if resp.Event == "error" {
		slog.Error("Bitget subscription error", slog.String("code", string(resp.Code)), slog.String("msg", resp.Msg))
		return
	}
	if resp.Event != "" || len(resp.Data) == 0 {
		return
	}
	symbol, ok := w.symbols[resp.Arg.InstId]
	if !ok {
		return
	}

	for i := range resp.Data {
		ev := w.convert(resp.Action, symbol, &resp.Data[i], resp.Ts)
		if ev == nil {
			continue
		}
		w.forward(ev)
	}
}

func (w *Worker) convert(action string, symbol domain.Symbol, data *booksData, fallbackTs int64) event.Event {
	ts := fallbackTs
	if parsed, err := strconv.ParseInt(data.Ts, 10, 64); err == nil {
		ts = parsed
	}
	if w.metrics != nil && ts > 0 {
		w.metrics.RecordLatency(w.now().Sub(time.UnixMilli(ts)).Nanoseconds())
	}
	base := data.Seq << seqShift

	switch action {
	case actionSnapshot, "":
		ev := event.AcquireSnapshotEvent()
		ev.Seq = base
		ev.Ts = ts
		ev.Venue = domain.VenueBitget
		ev.Symbol = symbol
		for _, l := range data.Bids {
			ev.Bids = append(ev.Bids, domain.PriceLevel{Price: l[0], Quantity: l[1]})
		}
		for _, l := range data.Asks {
			ev.Asks = append(ev.Asks, domain.PriceLevel{Price: l[0], Quantity: l[1]})
		}
		return ev

	case actionUpdate:
		if len(data.Bids)+len(data.Asks) >= 1<<seqShift {
			slog.Warn("Bitget update too large", slog.String("symbol", symbol.String()), slog.Uint64("seq", data.Seq))
			return nil
		}
		ev := event.AcquireDeltaEvent()
		ev.Ts = ts
		ev.Venue = domain.VenueBitget
		ev.Symbol = symbol

		// deltas of one push share the venue sequence; the low bits keep them increasing
		n := uint64(0)
		add := func(side domain.Side, l [2]decimal.Decimal) {
			n++
			ev.Deltas = append(ev.Deltas, domain.Delta{Side: side, Price: l[0], Quantity: l[1], Sequence: base | n})
		}
		for _, l := range data.Bids {
			add(domain.Bid, l)
		}
		for _, l := range data.Asks {
			add(domain.Ask, l)
		}
		ev.Seq = base | n
		return ev

	default:
		return nil
	}
}

func (w *Worker) forward(ev event.Event) {
	select {
	case w.inbox <- ev:
	default: // DROP
		event.Release(ev)
		if w.metrics != nil {
			w.metrics.RecordDropped()
		}
	}
}

// ParseInstID splits a Bitget instId ("BTCUSDT") into a Symbol.
func ParseInstID(instID string) (domain.Symbol, error) {
	id := strings.ToUpper(strings.TrimSpace(instID))
	for _, q := range quoteAssets {
		if base, ok := strings.CutSuffix(id, q); ok && base != "" {
			return domain.NewSymbol(base, q), nil
		}
	}
	return domain.Symbol{}, domain.ErrInvalidSymbol
}

// InstID is the inverse of ParseInstID.
func InstID(s domain.Symbol) string {
	return s.Base + s.Quote
}
