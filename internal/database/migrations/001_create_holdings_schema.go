package migrations

import (
	"github.com/ksred/holdings-ingest/internal/filings"
	"gorm.io/gorm"
)

// CreateHoldingsSchema creates the manager, filing, lookup and holding tables.
// Order matters: referenced tables first so foreign keys can be created.
func CreateHoldingsSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&filings.Manager{},
		&filings.Filing{},
		&filings.Issuer{},
		&filings.SecurityClass{},
		&filings.HoldingType{},
		&filings.OptionType{},
		&filings.DiscretionType{},
		&filings.Holding{},
	)
}
