package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"arb_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal meta keys
const (
	MetaLastStart = "last_start"
	MetaVersion   = "version"
)

// Storage is the SQLite anomaly journal. It implements domain.AnomalyJournal.
type Storage struct {
	db *gorm.DB
}

var _ domain.AnomalyJournal = (*Storage)(nil)

// NewStorage opens (or creates) the journal at dbPath. ":memory:" opens a
// private in-memory database.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.AnomalyRecord{}, &domain.JournalMeta{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Anomaly Operations
// ======================================================================================

// RecordAnomalies inserts records in one transaction.
func (s *Storage) RecordAnomalies(ctx context.Context, records []domain.AnomalyRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
}

// AnomalyFilter narrows ListAnomalies. Zero fields match everything.
type AnomalyFilter struct {
	Venue  string
	Symbol string
	Since  time.Time
	Limit  int
}

// ListAnomalies returns matching records, newest first.
func (s *Storage) ListAnomalies(ctx context.Context, f AnomalyFilter) ([]domain.AnomalyRecord, error) {
	q := s.db.WithContext(ctx).Model(&domain.AnomalyRecord{})
	if f.Venue != "" {
		q = q.Where("venue = ?", f.Venue)
	}
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if !f.Since.IsZero() {
		q = q.Where("detected_at >= ?", f.Since)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var records []domain.AnomalyRecord
	err := q.Order("detected_at DESC").Order("id").Find(&records).Error
	return records, err
}

// CountAnomalies returns the number of journaled records.
func (s *Storage) CountAnomalies(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.AnomalyRecord{}).Count(&n).Error
	return n, err
}

// PruneBefore deletes records detected before t and returns how many were removed.
func (s *Storage) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("detected_at < ?", t).Delete(&domain.AnomalyRecord{})
	return res.RowsAffected, res.Error
}

// ======================================================================================
// Meta Operations
// ======================================================================================

// SetMeta saves a journal bookkeeping value.
func (s *Storage) SetMeta(ctx context.Context, key, value string) error {
	meta := domain.JournalMeta{
		Key:   key,
		Value: value,
	}
	return s.db.WithContext(ctx).Save(&meta).Error
}

// GetMeta loads a bookkeeping value. Missing keys return "", false.
func (s *Storage) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var meta domain.JournalMeta
	err := s.db.WithContext(ctx).First(&meta, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil // Not found is not an error
	}
	if err != nil {
		return "", false, err
	}
	return meta.Value, true, nil
}
