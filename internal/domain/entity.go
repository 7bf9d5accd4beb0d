package domain

import (
	"time"
)

// AnomalyRecord is one journaled health transition of a book.
type AnomalyRecord struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Venue      string    `gorm:"index:idx_anomaly_book" json:"venue"`
	Symbol     string    `gorm:"index:idx_anomaly_book" json:"symbol"`
	Flags      string    `json:"flags"` // Health.String(), e.g. "crossed|stale"
	Crossed    bool      `json:"crossed"`
	Incomplete bool      `json:"incomplete"`
	Stale      bool      `json:"stale"`
	Severity   string    `json:"severity"`
	Sequence   uint64    `json:"seq"`
	DetectedAt time.Time `gorm:"index" json:"detected_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// JournalMeta is a key-value row for journal bookkeeping (last start, last check).
type JournalMeta struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
