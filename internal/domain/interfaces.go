package domain

import (
	"context"
)

// FeedWorker defines the interface for venue WebSocket connectors
type FeedWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// AnomalyJournal records health transitions outside the process (for post-mortem)
type AnomalyJournal interface {
	RecordAnomalies(ctx context.Context, records []AnomalyRecord) error
}
