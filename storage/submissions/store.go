package submissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store wraps a *gorm.DB bound to the LiquidationSubmissions table.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres at dsn and migrates the submissions schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("submissions: open postgres: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("submissions: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open, already-migrated *gorm.DB. Tests use this with
// an in-memory sqlite connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Record inserts a new submission outcome row, assigning it a fresh UUID.
func (s *Store) Record(ctx context.Context, row LiquidationSubmission) (LiquidationSubmission, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return LiquidationSubmission{}, fmt.Errorf("submissions: record: %w", err)
	}
	return row, nil
}

// ListByUser returns every submission recorded for user, most recent first.
func (s *Store) ListByUser(ctx context.Context, user string) ([]LiquidationSubmission, error) {
	var rows []LiquidationSubmission
	err := s.db.WithContext(ctx).Where(`"user" = ?`, user).Order("created_at DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("submissions: list by user: %w", err)
	}
	return rows, nil
}

// ListFailed returns every submission marked unsuccessful, most recent
// first, for operator triage.
func (s *Store) ListFailed(ctx context.Context) ([]LiquidationSubmission, error) {
	var rows []LiquidationSubmission
	err := s.db.WithContext(ctx).Where("success = ?", false).Order("created_at DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("submissions: list failed: %w", err)
	}
	return rows, nil
}

// ListByBuilder returns every submission attributed to builder, most
// recent first.
func (s *Store) ListByBuilder(ctx context.Context, builder string) ([]LiquidationSubmission, error) {
	var rows []LiquidationSubmission
	err := s.db.WithContext(ctx).Where("builder = ?", builder).Order("created_at DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("submissions: list by builder: %w", err)
	}
	return rows, nil
}
