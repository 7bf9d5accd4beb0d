package event

import (
	"testing"

	"arb_go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeltaEventPool(t *testing.T) {
	ev := AcquireDeltaEvent()
	ev.Seq = 7
	ev.Venue = domain.VenueBitget
	ev.Symbol = domain.NewSymbol("BTC", "USDT")
	ev.Deltas = append(ev.Deltas, domain.Delta{Side: domain.Bid, Price: decimal.NewFromInt(1), Sequence: 7})

	assert.Equal(t, EvBookDelta, ev.GetType())
	assert.Equal(t, uint64(7), ev.GetSeq())

	ReleaseDeltaEvent(ev)

	ev2 := AcquireDeltaEvent()
	assert.Zero(t, ev2.Seq)
	assert.Empty(t, ev2.Venue)
	assert.True(t, ev2.Symbol.IsZero())
	assert.Empty(t, ev2.Deltas)
	ReleaseDeltaEvent(ev2)
}

func TestSnapshotEventPool(t *testing.T) {
	ev := AcquireSnapshotEvent()
	ev.Ts = 1700000000000
	ev.Bids = append(ev.Bids, domain.PriceLevel{Price: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1)})
	assert.Equal(t, "BOOK_SNAPSHOT", ev.GetType().String())

	Release(ev)

	ev2 := AcquireSnapshotEvent()
	assert.Zero(t, ev2.Ts)
	assert.Empty(t, ev2.Bids)
	assert.Empty(t, ev2.Asks)
	ReleaseSnapshotEvent(ev2)
}

func TestRelease_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		ReleaseDeltaEvent(nil)
		ReleaseSnapshotEvent(nil)
		Release(nil)
	})
}

func BenchmarkWithoutPool(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ev := &DeltaEvent{Deltas: make([]domain.Delta, 0, 64)}
		ev.Deltas = append(ev.Deltas, domain.Delta{Sequence: uint64(i)})
		_ = ev
	}
}

func BenchmarkWithPool(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ev := AcquireDeltaEvent()
		ev.Deltas = append(ev.Deltas, domain.Delta{Sequence: uint64(i)})
		ReleaseDeltaEvent(ev)
	}
}
