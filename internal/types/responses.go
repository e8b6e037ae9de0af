package types

import "time"

// FilingResponse is the admin API view of an ingested filing
type FilingResponse struct {
	FilingID        uint              `json:"filing_id"`
	AccessionNumber string            `json:"accession_number"`
	CIK             string            `json:"cik"`
	FormType        string            `json:"form_type"`
	FilingDate      time.Time         `json:"filing_date"`
	FileNumber      *string           `json:"file_number"`
	FilingDirectory *string           `json:"filing_directory"`
	ReportingPeriod *time.Time        `json:"reporting_period"`
	Holdings        []HoldingResponse `json:"holdings"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// HoldingResponse is one holding with every reference resolved back to text
type HoldingResponse struct {
	HoldingID             uint   `json:"holding_id"`
	IssuerCUSIP           string `json:"issuer_cusip"`
	IssuerName            string `json:"issuer_name"`
	TitleOfClass          string `json:"title_of_class"`
	SharesOrPrincipal     int64  `json:"shares_or_principal_amount"`
	SharesOrPrincipalType string `json:"shares_or_principal_type"`
	Value                 int64  `json:"value"`
	PutOrCall             string `json:"put_or_call"`
	InvestmentDiscretion  string `json:"investment_discretion"`
	VotingSole            int64  `json:"voting_authority_sole"`
	VotingShared          int64  `json:"voting_authority_shared"`
	VotingNone            int64  `json:"voting_authority_none"`
}

// StatusResponse summarizes ingestion progress for operators
type StatusResponse struct {
	SeenFilings     int        `json:"seen_filings"`
	WatchListSize   int        `json:"watch_list_size"`
	Cycles          int64      `json:"cycles"`
	FailedCycles    int64      `json:"failed_cycles"`
	FilingsIngested int64      `json:"filings_ingested"`
	LastCycleAt     *time.Time `json:"last_cycle_at"`
	Timestamp       time.Time  `json:"timestamp"`
}
