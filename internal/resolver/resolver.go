package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ksred/holdings-ingest/internal/types"
	"gorm.io/gorm"
)

// Kind names a lookup table keyed by its text value.
type Kind string

const (
	SecurityClass  Kind = "security_class"
	HoldingType    Kind = "holding_type"
	OptionType     Kind = "option_type"
	DiscretionType Kind = "discretion_type"
)

type lookupTable struct {
	table  string
	column string
}

var lookupTables = map[Kind]lookupTable{
	SecurityClass:  {table: "security_classes", column: "name"},
	HoldingType:    {table: "holding_types", column: "code"},
	OptionType:     {table: "option_types", column: "name"},
	DiscretionType: {table: "discretion_types", column: "code"},
}

// DefaultCacheSize bounds the number of cached lookup ids.
const DefaultCacheSize = 4096

// Resolver maps classification text and issuers to surrogate ids, creating
// rows on first sight. Every write is a single insert-on-conflict statement
// so concurrent callers racing on the same key converge on one row.
type Resolver struct {
	db    *gorm.DB
	cache *lru.Cache
}

// New creates a Resolver with an id cache of cacheSize entries, or
// DefaultCacheSize when cacheSize is not positive.
func New(db *gorm.DB, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{db: db, cache: cache}, nil
}

// Resolve returns the id for value in the lookup table named by kind.
// Lookup rows are never deleted, so ids are cached after the first hit.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, value string) (uint, error) {
	lt, ok := lookupTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown lookup kind %q", kind)
	}
	if value == "" {
		return 0, fmt.Errorf("%w: empty %s", types.ErrMalformedDocument, kind)
	}

	key := string(kind) + "\x00" + value
	if id, ok := r.cache.Get(key); ok {
		return id.(uint), nil
	}

	var id uint
	err := r.db.WithContext(ctx).Raw(fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s) VALUES (?)
		ON CONFLICT (%[2]s) DO UPDATE SET %[2]s = EXCLUDED.%[2]s
		RETURNING id`, lt.table, lt.column), value).Scan(&id).Error
	if err != nil {
		return 0, types.NewStoreError("resolve "+string(kind), err)
	}
	if id == 0 {
		return 0, types.NewStoreError("resolve "+string(kind), errors.New("no id returned"))
	}

	r.cache.Add(key, id)
	return id, nil
}

// ResolveIssuer upserts an issuer by CUSIP and refreshes its name. Issuers
// are not cached because every sighting must refresh the stored name.
func (r *Resolver) ResolveIssuer(ctx context.Context, cusip, name string) (uint, error) {
	cusip = strings.TrimSpace(cusip)
	name = strings.TrimSpace(name)
	if cusip == "" || name == "" {
		return 0, fmt.Errorf("%w: issuer requires cusip and name", types.ErrMalformedDocument)
	}

	var id uint
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO issuers (cusip, issuer_name, created_at, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (cusip) DO UPDATE
		SET issuer_name = EXCLUDED.issuer_name,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING issuer_id`, cusip, name).Scan(&id).Error
	if err != nil {
		return 0, types.NewStoreError("resolve issuer", err)
	}
	if id == 0 {
		return 0, types.NewStoreError("resolve issuer", errors.New("no id returned"))
	}
	return id, nil
}

// Purge drops every cached id.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

// CacheLen reports the number of cached lookup ids.
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}
