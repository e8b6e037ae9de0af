package migrations

import (
	"gorm.io/gorm"
)

// AddHoldingsIndexes creates the read-path indexes for holdings and filings
func AddHoldingsIndexes(db *gorm.DB) error {
	indexes := []string{
		// Holdings by owning filing (read-back, cascade deletes)
		`CREATE INDEX IF NOT EXISTS idx_holdings_filing_id
		 ON holdings(filing_id)`,

		// Holdings by issuer
		`CREATE INDEX IF NOT EXISTS idx_holdings_issuer_id
		 ON holdings(issuer_id)`,

		// Filings per manager over time
		`CREATE INDEX IF NOT EXISTS idx_filings_manager_date
		 ON filings(manager_id, filing_date)`,

		`CREATE INDEX IF NOT EXISTS idx_filings_reporting_period
		 ON filings(reporting_period)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
