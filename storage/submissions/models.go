// Package submissions implements the LiquidationSubmissions audit table
// (spec §6): an external submitter posts bundles built from Liquidation
// Candidate Engine rows, and records the outcome here per builder.
package submissions

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LiquidationSubmission records one builder's outcome for one submitted
// liquidation bundle.
type LiquidationSubmission struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Builder         string    `gorm:"size:64;index"`
	User            string    `gorm:"size:42;index"`
	CollateralAsset string    `gorm:"size:42"`
	DebtAsset       string    `gorm:"size:42"`
	ExpectedProfit  float64   `gorm:"not null"`
	Nonce           uint64    `gorm:"index"`
	TargetBlock     uint64    `gorm:"index"`
	BundleHash      string    `gorm:"size:66"`
	TxHash          string    `gorm:"size:66"`
	Success         bool      `gorm:"index"`
	ErrorMessage    string    `gorm:"type:text"`
	CreatedAt       time.Time
}

// AutoMigrate performs schema migration for the submission audit log.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&LiquidationSubmission{})
}
