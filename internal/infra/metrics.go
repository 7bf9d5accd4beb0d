package infra

import (
	"sync/atomic"
	"time"

	"arb_go/internal/engine"
	"arb_go/internal/orderbook"
)

// Metrics provides lightweight in-process counters.
// Uses atomic operations for thread-safety. It implements engine.Observer
// so the ingestors and the monitor feed it directly.
type Metrics struct {
	// Counters
	snapshots     atomic.Uint64
	deltasApplied atomic.Uint64
	deltasSkipped atomic.Uint64
	rejected      atomic.Uint64
	anomalies     atomic.Uint64
	droppedEvents atomic.Uint64
	reconnects    atomic.Uint64

	// Feed latency (exchange timestamp to receive)
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	crossedBooks      atomic.Int32
	incompleteBooks   atomic.Int32
	staleBooks        atomic.Int32

	// Derived book events by kind; the map is fixed after construction.
	bookEvents map[engine.BookEventKind]*atomic.Uint64
}

var (
	_ engine.Observer         = (*Metrics)(nil)
	_ engine.BookEventHandler = (*Metrics)(nil)
)

// BookEventKinds lists every derived event kind counted by Metrics.
var BookEventKinds = []engine.BookEventKind{
	engine.KindBestBidAsk,
	engine.KindSpread,
	engine.KindVolume,
	engine.KindCrossing,
	engine.KindLiquidityGap,
	engine.KindPriceMovement,
}

// NewMetrics returns zeroed metrics.
func NewMetrics() *Metrics {
	m := &Metrics{bookEvents: make(map[engine.BookEventKind]*atomic.Uint64, len(BookEventKinds))}
	for _, k := range BookEventKinds {
		m.bookEvents[k] = new(atomic.Uint64)
	}
	return m
}

func (m *Metrics) ObserveSnapshot(engine.BookKey) {
	m.snapshots.Add(1)
}

func (m *Metrics) ObserveUpdates(_ engine.BookKey, res orderbook.UpdateResult) {
	m.deltasApplied.Add(uint64(res.Applied))
	m.deltasSkipped.Add(uint64(res.Skipped))
	if !res.Anomalies.Healthy() {
		m.anomalies.Add(1)
	}
}

func (m *Metrics) ObserveRejected(engine.BookKey, error) {
	m.rejected.Add(1)
}

func (m *Metrics) ObserveHealth(report engine.HealthReport) {
	crossed, incomplete, stale := report.Counts()
	m.crossedBooks.Store(int32(crossed))
	m.incompleteBooks.Store(int32(incomplete))
	m.staleBooks.Store(int32(stale))
}

// HandleBookEvent counts a derived book event by kind.
func (m *Metrics) HandleBookEvent(ev engine.BookEvent) {
	if c, ok := m.bookEvents[ev.Kind()]; ok {
		c.Add(1)
	}
}

// RecordLatency records the delay between an exchange timestamp and receipt.
func (m *Metrics) RecordLatency(latencyNs int64) {
	if latencyNs < 0 {
		return
	}
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordDropped counts an event dropped because an inbox was full.
func (m *Metrics) RecordDropped() {
	m.droppedEvents.Add(1)
}

// RecordReconnect counts a feed reconnect attempt.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Snapshots         uint64
	DeltasApplied     uint64
	DeltasSkipped     uint64
	Rejected          uint64
	Anomalies         uint64
	DroppedEvents     uint64
	Reconnects        uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	CrossedBooks      int32
	IncompleteBooks   int32
	StaleBooks        int32
	BookEvents        map[engine.BookEventKind]uint64
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	if count := m.latencyCount.Load(); count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	events := make(map[engine.BookEventKind]uint64, len(m.bookEvents))
	for k, c := range m.bookEvents {
		events[k] = c.Load()
	}

	return MetricsSnapshot{
		Snapshots:         m.snapshots.Load(),
		DeltasApplied:     m.deltasApplied.Load(),
		DeltasSkipped:     m.deltasSkipped.Load(),
		Rejected:          m.rejected.Load(),
		Anomalies:         m.anomalies.Load(),
		DroppedEvents:     m.droppedEvents.Load(),
		Reconnects:        m.reconnects.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		CrossedBooks:      m.crossedBooks.Load(),
		IncompleteBooks:   m.incompleteBooks.Load(),
		StaleBooks:        m.staleBooks.Load(),
		BookEvents:        events,
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.snapshots.Store(0)
	m.deltasApplied.Store(0)
	m.deltasSkipped.Store(0)
	m.rejected.Store(0)
	m.anomalies.Store(0)
	m.droppedEvents.Store(0)
	m.reconnects.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.crossedBooks.Store(0)
	m.incompleteBooks.Store(0)
	m.staleBooks.Store(0)
	for _, c := range m.bookEvents {
		c.Store(0)
	}
}
