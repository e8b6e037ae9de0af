package extract

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ksred/holdings-ingest/internal/types"
)

// Closed enum sets for the information table.
var (
	ShareTypes      = []string{"SH", "PRN"}
	DiscretionTypes = []string{"SOLE", "DFND", "OTR"}
	OptionTypes     = []string{"NONE", "PUT", "CALL"}
)

const (
	maxCUSIPLength      = 9
	maxIssuerNameLength = 255
)

// Holding is one validated information table entry. Enum fields are
// upper-cased and numeric fields are truncated to integers.
type Holding struct {
	IssuerName            string `json:"issuer_name"`
	CUSIP                 string `json:"cusip"`
	TitleOfClass          string `json:"title_of_class"`
	Value                 int64  `json:"value"`
	SharesOrPrincipal     int64  `json:"shares_or_principal_amount"`
	SharesOrPrincipalType string `json:"shares_or_principal_type"`
	InvestmentDiscretion  string `json:"investment_discretion"`
	PutOrCall             string `json:"put_or_call"`
	VotingSole            int64  `json:"voting_authority_sole"`
	VotingShared          int64  `json:"voting_authority_shared"`
	VotingNone            int64  `json:"voting_authority_none"`
}

// Attempt records the outcome of one strategy against a document.
type Attempt struct {
	Strategy string
	Err      error
}

// Result is the output of a successful extraction.
type Result struct {
	Holdings []Holding
	Strategy string    // strategy that produced Holdings
	Attempts []Attempt // every strategy tried, in order
}

// Strategy turns document bytes into raw info table rows.
type Strategy interface {
	Name() string
	Parse(doc []byte) ([]RawRow, error)
}

// RawRow carries the untyped text of one info table element. A nil field
// means the element was absent from the document.
type RawRow struct {
	NameOfIssuer         *string    `xml:"nameOfIssuer"`
	CUSIP                *string    `xml:"cusip"`
	TitleOfClass         *string    `xml:"titleOfClass"`
	Value                *string    `xml:"value"`
	SharesOrPrincipal    *string    `xml:"shrsOrPrnAmt>sshPrnamt"`
	ShareType            *string    `xml:"shrsOrPrnAmt>sshPrnamtType"`
	InvestmentDiscretion *string    `xml:"investmentDiscretion"`
	PutCall              *string    `xml:"putCall"`
	Voting               *RawVoting `xml:"votingAuthority"`
}

// RawVoting holds the three voting authority children as text.
type RawVoting struct {
	Sole   string `xml:"Sole"`
	Shared string `xml:"Shared"`
	None   string `xml:"None"`
}

// Extractor runs an ordered list of strategies until one succeeds.
type Extractor struct {
	strategies []Strategy
}

// New returns an Extractor with the structural strategy first and the
// permissive strategy as fallback.
func New() *Extractor {
	return NewWithStrategies(Structural{}, Permissive{})
}

// NewWithStrategies returns an Extractor trying strategies in the given order.
func NewWithStrategies(strategies ...Strategy) *Extractor {
	return &Extractor{strategies: strategies}
}

// Extract parses one information table document. Either every row is
// returned or the call fails with an error wrapping types.ErrMalformedDocument.
func (e *Extractor) Extract(doc []byte) (*Result, error) {
	result := &Result{}
	var lastErr error
	for _, s := range e.strategies {
		rows, err := s.Parse(doc)
		if err == nil {
			var holdings []Holding
			holdings, err = normalize(rows)
			if err == nil {
				result.Attempts = append(result.Attempts, Attempt{Strategy: s.Name()})
				result.Holdings = holdings
				result.Strategy = s.Name()
				return result, nil
			}
		}
		result.Attempts = append(result.Attempts, Attempt{Strategy: s.Name(), Err: err})
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no extraction strategies configured")
	}
	if errors.Is(lastErr, types.ErrMalformedDocument) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %v", types.ErrMalformedDocument, lastErr)
}

func normalize(rows []RawRow) ([]Holding, error) {
	holdings := make([]Holding, 0, len(rows))
	for i, row := range rows {
		h, err := normalizeRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: infoTable %d: %v", types.ErrMalformedDocument, i+1, err)
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

func normalizeRow(row RawRow) (Holding, error) {
	var h Holding

	if row.NameOfIssuer == nil || row.CUSIP == nil || row.TitleOfClass == nil {
		return h, errors.New("missing nameOfIssuer, cusip or titleOfClass")
	}
	h.IssuerName = strings.TrimSpace(*row.NameOfIssuer)
	h.CUSIP = strings.TrimSpace(*row.CUSIP)
	h.TitleOfClass = strings.TrimSpace(*row.TitleOfClass)

	if n := len(h.CUSIP); n == 0 || n > maxCUSIPLength {
		return h, fmt.Errorf("cusip %q must be 1-%d characters", h.CUSIP, maxCUSIPLength)
	}
	if n := utf8.RuneCountInString(h.IssuerName); n == 0 || n > maxIssuerNameLength {
		return h, fmt.Errorf("issuer name must be 1-%d characters, got %d", maxIssuerNameLength, n)
	}
	if h.TitleOfClass == "" {
		return h, errors.New("empty titleOfClass")
	}

	var err error
	if h.Value, err = parseAmount(deref(row.Value)); err != nil {
		return h, fmt.Errorf("value: %w", err)
	}
	if h.SharesOrPrincipal, err = parseAmount(deref(row.SharesOrPrincipal)); err != nil {
		return h, fmt.Errorf("sshPrnamt: %w", err)
	}

	h.SharesOrPrincipalType = upper(row.ShareType)
	if !oneOf(h.SharesOrPrincipalType, ShareTypes) {
		return h, fmt.Errorf("invalid share type %q", h.SharesOrPrincipalType)
	}
	h.InvestmentDiscretion = upper(row.InvestmentDiscretion)
	if !oneOf(h.InvestmentDiscretion, DiscretionTypes) {
		return h, fmt.Errorf("invalid investment discretion %q", h.InvestmentDiscretion)
	}
	h.PutOrCall = upper(row.PutCall)
	if h.PutOrCall == "" {
		h.PutOrCall = "NONE"
	}
	if !oneOf(h.PutOrCall, OptionTypes) {
		return h, fmt.Errorf("invalid put/call %q", h.PutOrCall)
	}

	if row.Voting != nil {
		h.VotingSole = votingCount(row.Voting.Sole)
		h.VotingShared = votingCount(row.Voting.Shared)
		h.VotingNone = votingCount(row.Voting.None)
	}
	return h, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func upper(s *string) string {
	return strings.ToUpper(strings.TrimSpace(deref(s)))
}

// parseAmount parses a decimal string and truncates it toward zero.
// Negative and non-finite values are rejected.
func parseAmount(s string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite amount %q", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative amount %q", s)
	}
	if f >= math.MaxInt64 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return int64(math.Trunc(f)), nil
}

// votingCount never fails: a missing or unreadable child counts as zero.
func votingCount(s string) int64 {
	n, err := parseAmount(s)
	if err != nil {
		return 0
	}
	return n
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
