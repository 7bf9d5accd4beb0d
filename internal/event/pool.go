package event

import (
	"sync"

	"arb_go/internal/domain"
)

// Delta and snapshot events are allocated per venue message. The pools keep
// the level slices' capacity between uses.
//
// Usage:
//
//	ev := AcquireDeltaEvent()
//	ev.Venue = domain.VenueBitget
//	ev.Deltas = append(ev.Deltas, d)
//	inbox <- ev // the consumer calls ReleaseDeltaEvent after processing
var deltaPool = sync.Pool{
	New: func() interface{} {
		return &DeltaEvent{Deltas: make([]domain.Delta, 0, 64)}
	},
}

// AcquireDeltaEvent gets a DeltaEvent from the pool.
// The returned event has zero values and an empty Deltas slice.
func AcquireDeltaEvent() *DeltaEvent {
	return deltaPool.Get().(*DeltaEvent)
}

// ReleaseDeltaEvent resets ev and returns it to the pool.
func ReleaseDeltaEvent(ev *DeltaEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = 0
	ev.Venue = ""
	ev.Symbol = domain.Symbol{}
	clear(ev.Deltas)
	ev.Deltas = ev.Deltas[:0]

	deltaPool.Put(ev)
}

var snapshotPool = sync.Pool{
	New: func() interface{} {
		return &SnapshotEvent{
			Bids: make([]domain.PriceLevel, 0, 64),
			Asks: make([]domain.PriceLevel, 0, 64),
		}
	},
}

// AcquireSnapshotEvent gets a SnapshotEvent from the pool.
func AcquireSnapshotEvent() *SnapshotEvent {
	return snapshotPool.Get().(*SnapshotEvent)
}

// ReleaseSnapshotEvent resets ev and returns it to the pool.
func ReleaseSnapshotEvent(ev *SnapshotEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = 0
	ev.Venue = ""
	ev.Symbol = domain.Symbol{}
	clear(ev.Bids)
	clear(ev.Asks)
	ev.Bids = ev.Bids[:0]
	ev.Asks = ev.Asks[:0]

	snapshotPool.Put(ev)
}

// Release returns a pooled event of either kind. Other events are ignored.
func Release(ev Event) {
	switch e := ev.(type) {
	case *DeltaEvent:
		ReleaseDeltaEvent(e)
	case *SnapshotEvent:
		ReleaseSnapshotEvent(e)
	}
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 256

	deltas := make([]*DeltaEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		deltas = append(deltas, AcquireDeltaEvent())
	}
	for _, ev := range deltas {
		ReleaseDeltaEvent(ev)
	}

	snaps := make([]*SnapshotEvent, 0, batchSize/4)
	for i := 0; i < batchSize/4; i++ {
		snaps = append(snaps, AcquireSnapshotEvent())
	}
	for _, ev := range snaps {
		ReleaseSnapshotEvent(ev)
	}
}
