package engine

import (
	"context"
	"log/slog"
	"time"

	"arb_go/internal/domain"

	"github.com/google/uuid"
)

// Monitor runs the periodic health pass over the registry. It journals only
// transitions: a flag is recorded when it becomes set on a book.
type Monitor struct {
	manager  *Manager
	interval time.Duration
	journal  domain.AnomalyJournal
	observer Observer

	prev map[BookKey]domain.Health // owned by the Run goroutine
}

// NewMonitor creates a monitor. journal and observer may be nil.
func NewMonitor(m *Manager, interval time.Duration, journal domain.AnomalyJournal, observer Observer) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Monitor{
		manager:  m,
		interval: interval,
		journal:  journal,
		observer: observer,
		prev:     make(map[BookKey]domain.Health),
	}
}

// Run checks on every tick until ctx is done.
func (mon *Monitor) Run(ctx context.Context) error {
	slog.Info("🩺 Health monitor started", slog.Duration("interval", mon.interval))

	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Health monitor stopping...")
			return nil
		case <-ticker.C:
			mon.Check(ctx)
		}
	}
}

// Check runs one pass and returns the report. Not safe for concurrent use.
func (mon *Monitor) Check(ctx context.Context) HealthReport {
	report := mon.manager.HealthCheck()
	records := mon.transitions(report)

	if len(records) > 0 {
		for _, r := range records {
			slog.Warn("⚠️ Book health degraded",
				slog.String("venue", r.Venue),
				slog.String("symbol", r.Symbol),
				slog.String("flags", r.Flags),
				slog.String("severity", r.Severity))
		}
		if mon.journal != nil {
			if err := mon.journal.RecordAnomalies(ctx, records); err != nil {
				slog.Error("Failed to journal anomalies", slog.Any("error", err))
			}
		}
	}

	if c := mon.manager.Cache(); c != nil {
		if n := c.PurgeExpired(); n > 0 {
			slog.Debug("Cache entries expired", slog.Int("count", n))
		}
	}

	mon.observer.ObserveHealth(report)
	return report
}

func (mon *Monitor) transitions(report HealthReport) []domain.AnomalyRecord {
	var out []domain.AnomalyRecord
	for key, bh := range report.Books {
		newly := bh.Health.Newly(mon.prev[key])
		mon.prev[key] = bh.Health
		if newly.Healthy() {
			continue
		}
		out = append(out, domain.AnomalyRecord{
			ID:         uuid.NewString(),
			Venue:      string(key.Venue),
			Symbol:     key.Symbol.String(),
			Flags:      bh.Health.String(),
			Crossed:    bh.Health.Crossed,
			Incomplete: bh.Health.Incomplete,
			Stale:      bh.Health.Stale,
			Severity:   bh.Severity.String(),
			Sequence:   bh.Sequence,
			DetectedAt: report.CheckedAt,
		})
	}
	// removed books
	for key := range mon.prev {
		if _, ok := report.Books[key]; !ok {
			delete(mon.prev, key)
		}
	}
	return out
}
