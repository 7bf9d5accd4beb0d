package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"arb_go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJournal struct {
	mu      sync.Mutex
	records []domain.AnomalyRecord
	err     error
}

func (j *memJournal) RecordAnomalies(_ context.Context, records []domain.AnomalyRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, records...)
	return j.err
}

func TestMonitor_JournalsTransitionsOnly(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	journal := &memJournal{}
	obs := &recordingObserver{}
	mon := NewMonitor(m, time.Second, journal, obs)

	require.NoError(t, m.ApplySnapshot(domain.VenueBinance, btcUSDT,
		[]domain.PriceLevel{lvl("100", "1")}, []domain.PriceLevel{lvl("101", "1")}, 1))

	mon.Check(context.Background())
	assert.Empty(t, journal.records)

	_, err := m.ApplyUpdates(domain.VenueBinance, btcUSDT, []domain.Delta{delta(domain.Bid, "102", "1", 2)})
	require.NoError(t, err)

	mon.Check(context.Background())
	require.Len(t, journal.records, 1)
	rec := journal.records[0]
	assert.Equal(t, "binance", rec.Venue)
	assert.Equal(t, "BTC/USDT", rec.Symbol)
	assert.True(t, rec.Crossed)
	assert.Equal(t, "crossed", rec.Flags)
	assert.Equal(t, "MINOR", rec.Severity)
	assert.NotEmpty(t, rec.ID)

	// still crossed: nothing new
	mon.Check(context.Background())
	assert.Len(t, journal.records, 1)

	// staleness is a new flag on the same book
	clock.Advance(11 * time.Second)
	mon.Check(context.Background())
	require.Len(t, journal.records, 2)
	assert.Equal(t, "crossed|stale", journal.records[1].Flags)

	assert.Len(t, obs.reports, 4)
}

func TestMonitor_PurgesCacheAndSurvivesJournalErrors(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	journal := &memJournal{err: errors.New("disk full")}
	mon := NewMonitor(m, time.Second, journal, nil)

	_, err := m.GetOrCreateBook(domain.VenueKraken, btcUSDT)
	require.NoError(t, err)
	require.NoError(t, m.ApplySnapshot(domain.VenueBinance, btcUSDT,
		[]domain.PriceLevel{lvl("100", "1")}, []domain.PriceLevel{lvl("101", "1")}, 1))
	require.Equal(t, 1, m.Cache().Len())

	clock.Advance(2 * time.Minute)
	report := mon.Check(context.Background())

	assert.Len(t, report.Books, 2)
	assert.Equal(t, 0, m.Cache().Len())
	assert.Len(t, journal.records, 2)
}

func TestMonitor_Run(t *testing.T) {
	m := newTestManager(nil)
	obs := &recordingObserver{}
	mon := NewMonitor(m, 10*time.Millisecond, nil, obs)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- mon.Run(ctx) }()

	assert.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return len(obs.reports) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-errCh)
}
