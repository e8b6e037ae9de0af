package filings

import (
	"time"
)

// Manager is a tracked 13F filer. Managers are provisioned outside the
// ingestion loop; a watched CIK without a row here is an unknown entity.
type Manager struct {
	ID              uint      `gorm:"column:manager_id;primaryKey" json:"manager_id"`
	CIKNumber       string    `gorm:"column:cik_number;size:10;uniqueIndex;not null" json:"cik_number"`
	ManagerName     string    `gorm:"column:manager_name;size:255;not null" json:"manager_name"`
	BusinessAddress *string   `gorm:"column:business_address" json:"business_address"`
	MailingAddress  *string   `gorm:"column:mailing_address" json:"mailing_address"`
	Phone           *string   `gorm:"column:phone;size:50" json:"phone"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Filing exists if and only if the filing has been accepted for ingestion.
type Filing struct {
	ID                 uint       `gorm:"column:filing_id;primaryKey" json:"filing_id"`
	ManagerID          uint       `gorm:"column:manager_id;not null;index" json:"manager_id"`
	Manager            Manager    `gorm:"foreignKey:ManagerID;references:ID" json:"-"`
	FormType           string     `gorm:"column:form_type;size:20;not null" json:"form_type"`
	SECAccessionNumber string     `gorm:"column:sec_accession_number;size:20;uniqueIndex;not null" json:"sec_accession_number"`
	FilingDate         time.Time  `gorm:"column:filing_date;not null" json:"filing_date"`
	FileNumber         *string    `gorm:"column:file_number;size:50" json:"file_number"`
	FilingDirectory    *string    `gorm:"column:filing_directory" json:"filing_directory"`
	ReportingPeriod    *time.Time `gorm:"column:reporting_period" json:"reporting_period"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Issuer is keyed by CUSIP; the name is refreshed whenever it is seen again.
type Issuer struct {
	ID         uint      `gorm:"column:issuer_id;primaryKey" json:"issuer_id"`
	CUSIP      string    `gorm:"column:cusip;size:9;uniqueIndex;not null" json:"cusip"`
	IssuerName string    `gorm:"column:issuer_name;size:255;not null" json:"issuer_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SecurityClass is a title of class such as COM or CL A.
type SecurityClass struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:150;uniqueIndex;not null" json:"name"`
}

// HoldingType is SH or PRN.
type HoldingType struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"size:10;uniqueIndex;not null" json:"code"`
}

// OptionType is NONE, PUT or CALL.
type OptionType struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:10;uniqueIndex;not null" json:"name"`
}

// DiscretionType is SOLE, DFND or OTR.
type DiscretionType struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"size:10;uniqueIndex;not null" json:"code"`
}

// Holding is one resolved position. Every reference points at an existing
// row and the holding is deleted with its filing.
type Holding struct {
	HoldingID               uint           `gorm:"column:holding_id;primaryKey" json:"holding_id"`
	FilingID                uint           `gorm:"column:filing_id;not null" json:"filing_id"`
	Filing                  Filing         `gorm:"foreignKey:FilingID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	IssuerID                uint           `gorm:"column:issuer_id;not null" json:"issuer_id"`
	Issuer                  Issuer         `gorm:"foreignKey:IssuerID;references:ID" json:"-"`
	TitleOfClassID          uint           `gorm:"column:title_of_class;not null" json:"title_of_class"`
	TitleOfClass            SecurityClass  `gorm:"foreignKey:TitleOfClassID;references:ID" json:"-"`
	SharesOrPrincipal       int64          `gorm:"column:shares_or_principal_amount;not null" json:"shares_or_principal_amount"`
	SharesOrPrincipalTypeID uint           `gorm:"column:shares_or_principal_type;not null" json:"shares_or_principal_type"`
	SharesOrPrincipalType   HoldingType    `gorm:"foreignKey:SharesOrPrincipalTypeID;references:ID" json:"-"`
	Value                   int64          `gorm:"column:value;not null" json:"value"`
	PutOrCallID             uint           `gorm:"column:put_or_call;not null" json:"put_or_call"`
	PutOrCall               OptionType     `gorm:"foreignKey:PutOrCallID;references:ID" json:"-"`
	InvestmentDiscretionID  uint           `gorm:"column:investment_discretion;not null" json:"investment_discretion"`
	InvestmentDiscretion    DiscretionType `gorm:"foreignKey:InvestmentDiscretionID;references:ID" json:"-"`
	VotingAuthoritySole     int64          `gorm:"column:voting_authority_sole;not null;default:0" json:"voting_authority_sole"`
	VotingAuthorityShared   int64          `gorm:"column:voting_authority_shared;not null;default:0" json:"voting_authority_shared"`
	VotingAuthorityNone     int64          `gorm:"column:voting_authority_none;not null;default:0" json:"voting_authority_none"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// HoldingColumns is the column order used by bulk loaders.
var HoldingColumns = []string{
	"filing_id",
	"issuer_id",
	"title_of_class",
	"shares_or_principal_amount",
	"shares_or_principal_type",
	"value",
	"put_or_call",
	"investment_discretion",
	"voting_authority_sole",
	"voting_authority_shared",
	"voting_authority_none",
	"created_at",
	"updated_at",
}

// CopyRow returns the holding's values in HoldingColumns order.
func (h *Holding) CopyRow() []any {
	return []any{
		int64(h.FilingID),
		int64(h.IssuerID),
		int64(h.TitleOfClassID),
		h.SharesOrPrincipal,
		int64(h.SharesOrPrincipalTypeID),
		h.Value,
		int64(h.PutOrCallID),
		int64(h.InvestmentDiscretionID),
		h.VotingAuthoritySole,
		h.VotingAuthorityShared,
		h.VotingAuthorityNone,
		h.CreatedAt,
		h.UpdatedAt,
	}
}
