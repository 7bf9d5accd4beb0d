package engine

import (
	"arb_go/internal/orderbook"
)

// Observer receives ingestion outcomes. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	ObserveSnapshot(key BookKey)
	ObserveUpdates(key BookKey, res orderbook.UpdateResult)
	ObserveRejected(key BookKey, err error)
	ObserveHealth(report HealthReport)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) ObserveSnapshot(BookKey) {}
func (NopObserver) ObserveUpdates(BookKey, orderbook.UpdateResult) {}
func (NopObserver) ObserveRejected(BookKey, error) {}
func (NopObserver) ObserveHealth(HealthReport) {}

// Observers fans out to several observers.
type Observers []Observer

func (o Observers) ObserveSnapshot(key BookKey) {
	for _, ob := range o {
		ob.ObserveSnapshot(key)
	}
}

func (o Observers) ObserveUpdates(key BookKey, res orderbook.UpdateResult) {
	for _, ob := range o {
		ob.ObserveUpdates(key, res)
	}
}

func (o Observers) ObserveRejected(key BookKey, err error) {
	for _, ob := range o {
		ob.ObserveRejected(key, err)
	}
}

func (o Observers) ObserveHealth(report HealthReport) {
	for _, ob := range o {
		ob.ObserveHealth(report)
	}
}
