package infra

import (
	"arb_go/internal/cache"
	"arb_go/internal/engine"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "arb"

// Collector exports book, cache, ingestor and feed metrics at scrape time.
// Values are read from their sources on every Collect, so nothing is pushed
// from the hot path.
type Collector struct {
	manager   *engine.Manager
	metrics   *Metrics
	ingestors []*engine.Ingestor

	books         *prometheus.Desc
	booksCreated  *prometheus.Desc
	bookHealth    *prometheus.Desc
	cacheSize     *prometheus.Desc
	cacheLookups  *prometheus.Desc
	cacheRemovals *prometheus.Desc
	ingestEvents  *prometheus.Desc
	deltas        *prometheus.Desc
	rejected      *prometheus.Desc
	anomalies     *prometheus.Desc
	dropped       *prometheus.Desc
	reconnects    *prometheus.Desc
	connections   *prometheus.Desc
	latency       *prometheus.Desc
	bookEvents    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector. metrics may be nil.
func NewCollector(m *engine.Manager, metrics *Metrics, ingestors ...*engine.Ingestor) *Collector {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Collector{
		manager:   m,
		metrics:   metrics,
		ingestors: ingestors,

		books: prometheus.NewDesc(namespace+"_books",
			"Order books currently registered.", nil, nil),
		booksCreated: prometheus.NewDesc(namespace+"_books_created_total",
			"Order books created since start.", nil, nil),
		bookHealth: prometheus.NewDesc(namespace+"_books_unhealthy",
			"Books carrying a health flag at the last health pass.", []string{"flag"}, nil),
		cacheSize: prometheus.NewDesc(namespace+"_cache_entries",
			"Snapshots held by the cache.", nil, nil),
		cacheLookups: prometheus.NewDesc(namespace+"_cache_lookups_total",
			"Cache lookups by result.", []string{"result"}, nil),
		cacheRemovals: prometheus.NewDesc(namespace+"_cache_removals_total",
			"Cache entries removed by reason.", []string{"reason"}, nil),
		ingestEvents: prometheus.NewDesc(namespace+"_ingest_events_total",
			"Events drained per ingestor.", []string{"ingestor"}, nil),
		deltas: prometheus.NewDesc(namespace+"_deltas_total",
			"Deltas by outcome.", []string{"outcome"}, nil),
		rejected: prometheus.NewDesc(namespace+"_events_rejected_total",
			"Events rejected before reaching a book.", nil, nil),
		anomalies: prometheus.NewDesc(namespace+"_update_anomalies_total",
			"Update batches that newly set a health flag.", nil, nil),
		dropped: prometheus.NewDesc(namespace+"_feed_dropped_total",
			"Feed events dropped on a full inbox.", nil, nil),
		reconnects: prometheus.NewDesc(namespace+"_feed_reconnects_total",
			"Feed reconnect attempts.", nil, nil),
		connections: prometheus.NewDesc(namespace+"_feed_connections",
			"Open feed connections.", nil, nil),
		latency: prometheus.NewDesc(namespace+"_feed_latency_avg_seconds",
			"Average exchange-to-receive latency.", nil, nil),
		bookEvents: prometheus.NewDesc(namespace+"_book_events_total",
			"Derived book events by kind.", []string{"kind"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.books
	ch <- c.booksCreated
	ch <- c.bookHealth
	ch <- c.cacheSize
	ch <- c.cacheLookups
	ch <- c.cacheRemovals
	ch <- c.ingestEvents
	ch <- c.deltas
	ch <- c.rejected
	ch <- c.anomalies
	ch <- c.dropped
	ch <- c.reconnects
	ch <- c.connections
	ch <- c.latency
	ch <- c.bookEvents
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.books, prometheus.GaugeValue, float64(c.manager.BookCount()))
	ch <- prometheus.MustNewConstMetric(c.booksCreated, prometheus.CounterValue, float64(c.manager.BooksCreated()))

	snap := c.metrics.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.bookHealth, prometheus.GaugeValue, float64(snap.CrossedBooks), "crossed")
	ch <- prometheus.MustNewConstMetric(c.bookHealth, prometheus.GaugeValue, float64(snap.IncompleteBooks), "incomplete")
	ch <- prometheus.MustNewConstMetric(c.bookHealth, prometheus.GaugeValue, float64(snap.StaleBooks), "stale")

	if oc := c.manager.Cache(); oc != nil {
		c.collectCache(ch, oc.Stats())
	}

	for _, in := range c.ingestors {
		st := in.Stats()
		ch <- prometheus.MustNewConstMetric(c.ingestEvents, prometheus.CounterValue, float64(st.Events), in.Name())
	}

	ch <- prometheus.MustNewConstMetric(c.deltas, prometheus.CounterValue, float64(snap.DeltasApplied), "applied")
	ch <- prometheus.MustNewConstMetric(c.deltas, prometheus.CounterValue, float64(snap.DeltasSkipped), "skipped")
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(snap.Rejected))
	ch <- prometheus.MustNewConstMetric(c.anomalies, prometheus.CounterValue, float64(snap.Anomalies))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(snap.DroppedEvents))
	ch <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(snap.Reconnects))
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(snap.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, float64(snap.AvgLatencyNs)/1e9)

	for _, kind := range BookEventKinds {
		ch <- prometheus.MustNewConstMetric(c.bookEvents, prometheus.CounterValue, float64(snap.BookEvents[kind]), string(kind))
	}
}

func (c *Collector) collectCache(ch chan<- prometheus.Metric, st cache.Stats) {
	ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(st.Size))
	ch <- prometheus.MustNewConstMetric(c.cacheLookups, prometheus.CounterValue, float64(st.Hits), "hit")
	ch <- prometheus.MustNewConstMetric(c.cacheLookups, prometheus.CounterValue, float64(st.Misses), "miss")
	ch <- prometheus.MustNewConstMetric(c.cacheRemovals, prometheus.CounterValue, float64(st.Evictions), "evicted")
	ch <- prometheus.MustNewConstMetric(c.cacheRemovals, prometheus.CounterValue, float64(st.Expirations), "expired")
}

// NewRegistry returns a registry holding c plus the Go and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}
