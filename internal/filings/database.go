package filings

import (
	"context"
	"errors"
	"fmt"

	"github.com/ksred/holdings-ingest/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

// NewDatabase creates a filings store backed by db.
func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// DB exposes the underlying handle for components sharing the connection.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Ping verifies the store is reachable.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return types.NewStoreError("ping", err)
	}
	return types.NewStoreError("ping", sqlDB.PingContext(ctx))
}

// FilingExists is the durable dedup check behind the in-process seen set.
func (d *Database) FilingExists(ctx context.Context, accessionNumber string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&Filing{}).
		Where("sec_accession_number = ?", accessionNumber).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, types.NewStoreError("filing exists", err)
	}
	return count > 0, nil
}

// GetManagerByCIK looks up a manager by zero-padded CIK. A missing row is
// reported as types.ErrUnknownEntity.
func (d *Database) GetManagerByCIK(ctx context.Context, cik string) (*Manager, error) {
	var manager Manager
	err := d.db.WithContext(ctx).Where("cik_number = ?", types.PadCIK(cik)).First(&manager).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: cik %s", types.ErrUnknownEntity, cik)
	}
	if err != nil {
		return nil, types.NewStoreError("get manager", err)
	}
	return &manager, nil
}

// CreateManager inserts a manager, zero-padding its CIK.
func (d *Database) CreateManager(ctx context.Context, manager *Manager) error {
	manager.CIKNumber = types.PadCIK(manager.CIKNumber)
	return types.NewStoreError("create manager", d.db.WithContext(ctx).Create(manager).Error)
}

// CreateFiling inserts the filing row and fills in its surrogate id.
func (d *Database) CreateFiling(ctx context.Context, filing *Filing) error {
	err := d.db.WithContext(ctx).Omit(clause.Associations).Create(filing).Error
	return types.NewStoreError("create filing", err)
}

// NewFiling maps a feed descriptor onto a filing row for the given manager.
func NewFiling(managerID uint, desc *types.FilingDescriptor) *Filing {
	return &Filing{
		ManagerID:          managerID,
		FormType:           desc.FormType,
		SECAccessionNumber: desc.AccessionNumber,
		FilingDate:         desc.FilingDate,
		FileNumber:         desc.FileNumber,
		FilingDirectory:    desc.FilingDirectory,
		ReportingPeriod:    desc.PeriodOfReport,
	}
}

// GetFilingByAccession loads a filing and its manager by accession number.
func (d *Database) GetFilingByAccession(ctx context.Context, accessionNumber string) (*Filing, error) {
	var filing Filing
	err := d.db.WithContext(ctx).
		Preload("Manager").
		Where("sec_accession_number = ?", accessionNumber).
		First(&filing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch filing: %w", err)
	}
	return &filing, nil
}

// DeleteFiling removes a filing; its holdings cascade.
func (d *Database) DeleteFiling(ctx context.Context, filingID uint) error {
	err := d.db.WithContext(ctx).Delete(&Filing{}, filingID).Error
	return types.NewStoreError("delete filing", err)
}

// CountHoldings returns how many holdings a filing has.
func (d *Database) CountHoldings(ctx context.Context, filingID uint) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&Holding{}).Where("filing_id = ?", filingID).Count(&count).Error
	if err != nil {
		return 0, types.NewStoreError("count holdings", err)
	}
	return count, nil
}

type holdingView struct {
	HoldingID             uint   `gorm:"column:holding_id"`
	IssuerCUSIP           string `gorm:"column:issuer_cusip"`
	IssuerName            string `gorm:"column:issuer_name"`
	TitleOfClass          string `gorm:"column:title_of_class"`
	SharesOrPrincipal     int64  `gorm:"column:shares_or_principal_amount"`
	SharesOrPrincipalType string `gorm:"column:shares_or_principal_type"`
	Value                 int64  `gorm:"column:value"`
	PutOrCall             string `gorm:"column:put_or_call"`
	InvestmentDiscretion  string `gorm:"column:investment_discretion"`
	VotingSole            int64  `gorm:"column:voting_authority_sole"`
	VotingShared          int64  `gorm:"column:voting_authority_shared"`
	VotingNone            int64  `gorm:"column:voting_authority_none"`
}

// GetHoldingsByFiling reads a filing's holdings back with every reference
// resolved to its text value.
func (d *Database) GetHoldingsByFiling(ctx context.Context, filingID uint) ([]types.HoldingResponse, error) {
	var rows []holdingView
	err := d.db.WithContext(ctx).Raw(`
		SELECT h.holding_id,
		       i.cusip AS issuer_cusip,
		       i.issuer_name,
		       sc.name AS title_of_class,
		       h.shares_or_principal_amount,
		       ht.code AS shares_or_principal_type,
		       h.value,
		       ot.name AS put_or_call,
		       dt.code AS investment_discretion,
		       h.voting_authority_sole,
		       h.voting_authority_shared,
		       h.voting_authority_none
		FROM holdings h
		JOIN issuers i ON i.issuer_id = h.issuer_id
		JOIN security_classes sc ON sc.id = h.title_of_class
		JOIN holding_types ht ON ht.id = h.shares_or_principal_type
		JOIN option_types ot ON ot.id = h.put_or_call
		JOIN discretion_types dt ON dt.id = h.investment_discretion
		WHERE h.filing_id = ?
		ORDER BY h.holding_id`, filingID).Scan(&rows).Error
	if err != nil {
		return nil, types.NewStoreError("get holdings", err)
	}

	holdings := make([]types.HoldingResponse, 0, len(rows))
	for _, r := range rows {
		holdings = append(holdings, types.HoldingResponse{
			HoldingID:             r.HoldingID,
			IssuerCUSIP:           r.IssuerCUSIP,
			IssuerName:            r.IssuerName,
			TitleOfClass:          r.TitleOfClass,
			SharesOrPrincipal:     r.SharesOrPrincipal,
			SharesOrPrincipalType: r.SharesOrPrincipalType,
			Value:                 r.Value,
			PutOrCall:             r.PutOrCall,
			InvestmentDiscretion:  r.InvestmentDiscretion,
			VotingSole:            r.VotingSole,
			VotingShared:          r.VotingShared,
			VotingNone:            r.VotingNone,
		})
	}
	return holdings, nil
}

// GetFilingResponse assembles the admin read-back view of a filing.
func (d *Database) GetFilingResponse(ctx context.Context, accessionNumber string) (*types.FilingResponse, error) {
	filing, err := d.GetFilingByAccession(ctx, accessionNumber)
	if err != nil {
		return nil, err
	}
	holdings, err := d.GetHoldingsByFiling(ctx, filing.ID)
	if err != nil {
		return nil, err
	}
	return &types.FilingResponse{
		FilingID:        filing.ID,
		AccessionNumber: filing.SECAccessionNumber,
		CIK:             filing.Manager.CIKNumber,
		FormType:        filing.FormType,
		FilingDate:      filing.FilingDate,
		FileNumber:      filing.FileNumber,
		FilingDirectory: filing.FilingDirectory,
		ReportingPeriod: filing.ReportingPeriod,
		Holdings:        holdings,
		CreatedAt:       filing.CreatedAt,
		UpdatedAt:       filing.UpdatedAt,
	}, nil
}
