package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type foreignKey struct {
	Table    string `gorm:"column:table"`
	From     string `gorm:"column:from"`
	To       string `gorm:"column:to"`
	OnDelete string `gorm:"column:on_delete"`
}

func setupDatabaseTest(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func foreignKeys(t *testing.T, db *gorm.DB, table string) []foreignKey {
	t.Helper()
	var fks []foreignKey
	require.NoError(t, db.Raw("SELECT * FROM pragma_foreign_key_list(?)", table).Scan(&fks).Error)
	return fks
}

func TestMigrate_ForeignKeyDirection(t *testing.T) {
	db := setupDatabaseTest(t)

	for _, table := range []string{"managers", "issuers", "security_classes", "holding_types", "option_types", "discretion_types"} {
		assert.Empty(t, foreignKeys(t, db, table), "%s references nothing", table)
	}

	assert.ElementsMatch(t, []foreignKey{
		{Table: "managers", From: "manager_id", To: "manager_id", OnDelete: "NO ACTION"},
	}, foreignKeys(t, db, "filings"))

	assert.ElementsMatch(t, []foreignKey{
		{Table: "filings", From: "filing_id", To: "filing_id", OnDelete: "CASCADE"},
		{Table: "issuers", From: "issuer_id", To: "issuer_id", OnDelete: "NO ACTION"},
		{Table: "security_classes", From: "title_of_class", To: "id", OnDelete: "NO ACTION"},
		{Table: "holding_types", From: "shares_or_principal_type", To: "id", OnDelete: "NO ACTION"},
		{Table: "option_types", From: "put_or_call", To: "id", OnDelete: "NO ACTION"},
		{Table: "discretion_types", From: "investment_discretion", To: "id", OnDelete: "NO ACTION"},
	}, foreignKeys(t, db, "holdings"))
}

func TestMigrate_HoldingBelongsToFiling(t *testing.T) {
	db := setupDatabaseTest(t)

	exec := func(sql string, args ...any) {
		t.Helper()
		require.NoError(t, db.Exec(sql, args...).Error)
	}
	exec(`INSERT INTO managers (manager_id, cik_number, manager_name) VALUES (1, '0000001234', 'Test Capital LLC')`)
	exec(`INSERT INTO filings (filing_id, manager_id, form_type, sec_accession_number, filing_date)
		VALUES (1, 1, '13F-HR', '0001234567-24-000001', '2024-11-14')`)
	exec(`INSERT INTO issuers (issuer_id, cusip, issuer_name) VALUES (1, '000000000', 'Acme Corp')`)
	exec(`INSERT INTO security_classes (id, name) VALUES (1, 'COM')`)
	exec(`INSERT INTO holding_types (id, code) VALUES (1, 'SH')`)
	exec(`INSERT INTO option_types (id, name) VALUES (1, 'NONE')`)
	exec(`INSERT INTO discretion_types (id, code) VALUES (1, 'SOLE')`)
	insertHolding := `INSERT INTO holdings (filing_id, issuer_id, title_of_class, shares_or_principal_amount,
		shares_or_principal_type, value, put_or_call, investment_discretion)
		VALUES (1, 1, 1, 500, 1, 1000, 1, 1)`
	exec(insertHolding)

	count := func(table string) int64 {
		t.Helper()
		var n int64
		require.NoError(t, db.Table(table).Count(&n).Error)
		return n
	}

	// Removing a holding leaves its filing and issuer in place.
	exec(`DELETE FROM holdings`)
	assert.Equal(t, int64(1), count("filings"))
	assert.Equal(t, int64(1), count("issuers"))

	// Removing the filing takes its holdings with it.
	exec(insertHolding)
	exec(`DELETE FROM filings WHERE filing_id = 1`)
	assert.Zero(t, count("holdings"))
	assert.Equal(t, int64(1), count("managers"))

	assert.Error(t, db.Exec(`INSERT INTO filings (manager_id, form_type, sec_accession_number, filing_date)
		VALUES (99, '13F-HR', '0001234567-24-000002', '2024-11-14')`).Error, "unknown manager")
}
