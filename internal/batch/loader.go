package batch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ksred/holdings-ingest/internal/filings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPageSize is the number of rows per INSERT statement.
const DefaultPageSize = 5000

// Loader persists one chunk of holdings in a single transaction: either
// every row is committed or none is.
type Loader interface {
	Load(ctx context.Context, rows []filings.Holding) error
}

// GormLoader inserts holdings with multi-row INSERT statements.
type GormLoader struct {
	db       *gorm.DB
	pageSize int
}

// NewGormLoader creates a loader that inserts through gorm in pages of
// pageSize rows.
func NewGormLoader(db *gorm.DB, pageSize int) *GormLoader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &GormLoader{db: db, pageSize: pageSize}
}

// Load inserts rows in a single transaction.
func (l *GormLoader) Load(ctx context.Context, rows []filings.Holding) (err error) {
	tx := l.db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			err = fmt.Errorf("holdings insert panicked: %v", r)
		}
	}()

	if err := tx.Omit(clause.Associations).CreateInBatches(rows, l.pageSize).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert holdings: %w", err)
	}

	return tx.Commit().Error
}

// CopyLoader streams holdings through the postgres COPY protocol.
type CopyLoader struct {
	pool *pgxpool.Pool
}

// NewCopyLoader creates a loader that streams rows with the postgres COPY
// protocol.
func NewCopyLoader(pool *pgxpool.Pool) *CopyLoader {
	return &CopyLoader{pool: pool}
}

// Load copies rows into holdings in a single transaction.
func (l *CopyLoader) Load(ctx context.Context, rows []filings.Holding) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx)

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"holdings"},
		filings.HoldingColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return rows[i].CopyRow(), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy holdings: %w", err)
	}
	if copied != int64(len(rows)) {
		return fmt.Errorf("copied %d of %d holdings", copied, len(rows))
	}

	return tx.Commit(ctx)
}
