package event

import (
	"arb_go/internal/domain"
)

// Type defines the type of event.
type Type uint16

const (
	EvBookSnapshot Type = iota + 1
	EvBookDelta
)

func (t Type) String() string {
	switch t {
	case EvBookSnapshot:
		return "BOOK_SNAPSHOT"
	case EvBookDelta:
		return "BOOK_DELTA"
	default:
		return "UNKNOWN"
	}
}

// Event is the interface for all ingestion events.
type Event interface {
	GetSeq() uint64
	GetTs() int64
	GetType() Type
}

// BaseEvent contains common fields for all events.
// Seq is the venue-issued sequence, Ts the venue timestamp in unix milliseconds.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64 { return e.Seq }
func (e BaseEvent) GetTs() int64   { return e.Ts }

// SnapshotEvent carries the full state of one venue book.
type SnapshotEvent struct {
	BaseEvent
	Venue  domain.VenueID      `json:"venue"`
	Symbol domain.Symbol       `json:"symbol"`
	Bids   []domain.PriceLevel `json:"bids"`
	Asks   []domain.PriceLevel `json:"asks"`
}

func (e SnapshotEvent) GetType() Type { return EvBookSnapshot }

// DeltaEvent carries a batch of incremental updates for one venue book.
// Each delta keeps its own sequence; Seq is the last one in the batch.
type DeltaEvent struct {
	BaseEvent
	Venue  domain.VenueID `json:"venue"`
	Symbol domain.Symbol  `json:"symbol"`
	Deltas []domain.Delta `json:"deltas"`
}

func (e DeltaEvent) GetType() Type { return EvBookDelta }
