package engine

import (
	"context"
	"testing"

	"arb_go/internal/domain"
	"arb_go/internal/event"

	"github.com/shopspring/decimal"
)

// BenchmarkIngestor_ProcessDelta measures hot-path delta application.
func BenchmarkIngestor_ProcessDelta(b *testing.B) {
	m := NewManager(ManagerConfig{MaxDepth: 200}, nil)
	in := NewIngestor("bench", 1, m, nil)

	prices := make([]decimal.Decimal, 64)
	for i := range prices {
		prices[i] = decimal.NewFromInt(int64(50000 + i))
	}
	qty := decimal.NewFromInt(1)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ev := event.AcquireDeltaEvent()
		ev.Venue = domain.VenueBitget
		ev.Symbol = btcUSDT
		ev.Deltas = append(ev.Deltas, domain.Delta{
			Side:     domain.Bid,
			Price:    prices[i%len(prices)],
			Quantity: qty,
			Sequence: uint64(i + 1),
		})
		in.Process(ev)
	}
}

// BenchmarkIngestor_FullPipeline includes channel overhead.
func BenchmarkIngestor_FullPipeline(b *testing.B) {
	m := NewManager(ManagerConfig{MaxDepth: 200}, nil)
	in := NewIngestor("bench", b.N+100, m, nil)
	inbox := in.Inbox()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	qty := decimal.NewFromInt(1)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ev := event.AcquireDeltaEvent()
		ev.Venue = domain.VenueBitget
		ev.Symbol = btcUSDT
		ev.Deltas = append(ev.Deltas, domain.Delta{
			Side:     domain.Ask,
			Price:    decimal.NewFromInt(int64(60000 + i%64)),
			Quantity: qty,
			Sequence: uint64(i + 1),
		})
		inbox <- ev
	}
}
