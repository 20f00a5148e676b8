// Package store persists lap records in Postgres through gorm.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lapboard/models"
	"lapboard/pkg/laptime"
)

// ErrPersist wraps every database failure surfaced by the store.
var ErrPersist = errors.New("persistence failure")

// Store is a gorm-backed lap record repository.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres using dsn. Pass logger.Silent to keep gorm quiet.
func Open(dsn string, level logger.LogLevel) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty DSN", ErrPersist)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %v", ErrPersist, err)
	}
	return New(db), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the laptimes schema.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&models.LapRecord{}); err != nil {
		return fmt.Errorf("%w: migrate lap_records: %v", ErrPersist, err)
	}
	return nil
}

// Insert stores rec and sets its ID.
func (s *Store) Insert(ctx context.Context, rec *models.LapRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("%w: insert lap record: %v", ErrPersist, err)
	}
	return nil
}

// Find returns the records for mapFilter, or all records when the filter is
// empty or laptime.AllMaps. Rows come back ordered by lap_time, but callers
// rank them again; the database collation is not part of the contract.
func (s *Store) Find(ctx context.Context, mapFilter string) ([]models.LapRecord, error) {
	var out []models.LapRecord
	q := s.db.WithContext(ctx).Model(&models.LapRecord{})
	if mapFilter != "" && mapFilter != laptime.AllMaps {
		q = q.Where("map_name = ?", mapFilter)
	}
	if err := q.Order("lap_time asc").Order("id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: query lap records: %v", ErrPersist, err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
