package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"arb_go/internal/event"
)

// IngestorStats are the running totals of one ingestor.
type IngestorStats struct {
	Events    uint64 `json:"events"`
	Snapshots uint64 `json:"snapshots"`
	Applied   uint64 `json:"applied"`
	Skipped   uint64 `json:"skipped"`
	Rejected  uint64 `json:"rejected"`
}

// Ingestor drains one inbox into the manager. Per-book ordering is the order
// of the inbox, so each venue feed should own its ingestor. Several ingestors
// may run in parallel over one manager.
type Ingestor struct {
	name      string
	inbox     chan event.Event
	manager   *Manager
	observer  Observer
	processor *EventProcessor
	dumpPath  string

	events    atomic.Uint64
	snapshots atomic.Uint64
	applied   atomic.Uint64
	skipped   atomic.Uint64
	rejected  atomic.Uint64
}

// NewIngestor creates an ingestor with a buffered inbox. observer may be nil.
func NewIngestor(name string, inboxSize int, m *Manager, observer Observer) *Ingestor {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Ingestor{
		name:     name,
		inbox:    make(chan event.Event, inboxSize),
		manager:  m,
		observer: observer,
		dumpPath: fmt.Sprintf("panic_dump_%s.json", name),
	}
}

// Name returns the ingestor name (usually the venue).
func (in *Ingestor) Name() string { return in.name }

// Inbox returns the event channel. Feed workers send events here.
func (in *Ingestor) Inbox() chan<- event.Event {
	return in.inbox
}

// SetEventProcessor derives market events after every accepted mutation.
func (in *Ingestor) SetEventProcessor(p *EventProcessor) { in.processor = p }

// SetDumpPath overrides where DumpState writes on a panic.
func (in *Ingestor) SetDumpPath(path string) { in.dumpPath = path }

// Run processes events until ctx is done. A defect panic (e.g. a broken depth
// invariant) dumps the registry state and halts.
func (in *Ingestor) Run(ctx context.Context) {
	slog.Info("📥 Ingestor started", slog.String("name", in.name))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.String("ingestor", in.name), slog.Any("panic", r))
			in.DumpState(in.dumpPath)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Ingestor stopping...", slog.String("name", in.name))
			return
		case ev := <-in.inbox:
			in.Process(ev)
		}
	}
}

// Process applies one event synchronously and returns pooled events to their pool.
// Replay tools call it directly.
func (in *Ingestor) Process(ev event.Event) {
	in.events.Add(1)
	defer event.Release(ev)

	switch e := ev.(type) {
	case *event.SnapshotEvent:
		in.handleSnapshot(e)
	case *event.DeltaEvent:
		in.handleDelta(e)
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
}

func (in *Ingestor) handleSnapshot(e *event.SnapshotEvent) {
	key := BookKey{Venue: e.Venue, Symbol: e.Symbol}
	if err := in.manager.ApplySnapshot(e.Venue, e.Symbol, e.Bids, e.Asks, e.Seq); err != nil {
		in.reject(key, err)
		return
	}
	in.snapshots.Add(1)
	in.observer.ObserveSnapshot(key)
	in.deriveEvents(key)
}

func (in *Ingestor) handleDelta(e *event.DeltaEvent) {
	key := BookKey{Venue: e.Venue, Symbol: e.Symbol}
	res, err := in.manager.ApplyUpdates(e.Venue, e.Symbol, e.Deltas)
	if err != nil {
		in.reject(key, err)
		return
	}
	in.applied.Add(uint64(res.Applied))
	in.skipped.Add(uint64(res.Skipped))
	in.observer.ObserveUpdates(key, res)

	if !res.Anomalies.Healthy() {
		slog.Warn("⚠️ Book anomaly",
			slog.String("book", key.String()),
			slog.String("flags", res.Anomalies.String()),
			slog.Uint64("seq", e.Seq))
	}
	if res.Applied > 0 {
		in.deriveEvents(key)
	}
}

func (in *Ingestor) deriveEvents(key BookKey) {
	if in.processor == nil {
		return
	}
	if b, ok := in.manager.GetBook(key.Venue, key.Symbol); ok {
		in.processor.Process(key, b)
	}
}

func (in *Ingestor) reject(key BookKey, err error) {
	in.rejected.Add(1)
	in.observer.ObserveRejected(key, err)
	slog.Warn("Event rejected", slog.String("book", key.String()), slog.Any("error", err))
}

// Stats returns the running totals.
func (in *Ingestor) Stats() IngestorStats {
	return IngestorStats{
		Events:    in.events.Load(),
		Snapshots: in.snapshots.Load(),
		Applied:   in.applied.Load(),
		Skipped:   in.skipped.Load(),
		Rejected:  in.rejected.Load(),
	}
}

// DumpState writes the ingestor totals and the registry health to a file (for post-mortem).
func (in *Ingestor) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	report := in.manager.HealthCheck()
	data := struct {
		Ingestor string        `json:"ingestor"`
		Stats    IngestorStats `json:"stats"`
		Books    []BookHealth  `json:"books"`
	}{
		Ingestor: in.name,
		Stats:    in.Stats(),
		Books:    make([]BookHealth, 0, len(report.Books)),
	}
	for _, bh := range report.Books {
		data.Books = append(data.Books, bh)
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
