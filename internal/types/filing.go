package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CIKWidth is the fixed width entity identifiers are normalized to.
const CIKWidth = 10

var accessionPattern = regexp.MustCompile(`^\d{10}-\d{2}-\d{6}$`)

// FilingDescriptor is one filing as announced by the upstream feed.
// Optional fields are nil when the feed did not supply them.
type FilingDescriptor struct {
	AccessionNumber string
	CIK             string // zero-padded to CIKWidth
	CompanyName     string
	FormType        string
	FilingDate      time.Time
	FilingURL       string

	PeriodOfReport  *time.Time
	FileNumber      *string
	FilingDirectory *string

	Attachments []Attachment
}

// Attachment is a single document inside a filing.
type Attachment struct {
	Document  string // file name, e.g. "infotable.xml"
	Extension string // lower-case, without the dot
	Content   []byte
}

// IsInformationTable reports whether the attachment should be handed to the
// holdings extractor: XML documents other than the primary cover document.
func (a Attachment) IsInformationTable() bool {
	name := strings.ToLower(a.Document)
	return strings.HasSuffix(name, ".xml") && !strings.Contains(name, "primary_doc")
}

// InformationTables returns the attachments that carry holdings.
func (d *FilingDescriptor) InformationTables() []Attachment {
	var out []Attachment
	for _, a := range d.Attachments {
		if a.IsInformationTable() {
			out = append(out, a)
		}
	}
	return out
}

// Validate checks the fields the ingestion core depends on.
func (d *FilingDescriptor) Validate() error {
	if !accessionPattern.MatchString(d.AccessionNumber) {
		return fmt.Errorf("invalid accession number %q", d.AccessionNumber)
	}
	if len(d.CIK) != CIKWidth {
		return fmt.Errorf("cik %q is not normalized", d.CIK)
	}
	if d.FormType == "" {
		return fmt.Errorf("accession %s: empty form type", d.AccessionNumber)
	}
	if d.FilingDate.IsZero() {
		return fmt.Errorf("accession %s: missing filing date", d.AccessionNumber)
	}
	return nil
}

// PadCIK left-pads a CIK with zeros to CIKWidth digits.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	if len(cik) >= CIKWidth {
		return cik
	}
	return strings.Repeat("0", CIKWidth-len(cik)) + cik
}

// UnpadCIK strips leading zeros, keeping at least one digit.
func UnpadCIK(cik string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if trimmed == "" && cik != "" {
		return "0"
	}
	return trimmed
}

// StringPtr is a helper for optional string fields.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
