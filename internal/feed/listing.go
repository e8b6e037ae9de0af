package feed

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/ksred/holdings-ingest/internal/types"
)

var (
	// "13F-HR - BERKSHIRE HATHAWAY INC (0001067983) (Filer)"
	titlePattern     = regexp.MustCompile(`^(.+?) - (.+) \((\d{1,10})\) \(([^)]+)\)$`)
	accessionPattern = regexp.MustCompile(`\d{10}-\d{2}-\d{6}`)
	filedPattern     = regexp.MustCompile(`Filed:\D*(\d{4}-\d{2}-\d{2})`)
	accNoPattern     = regexp.MustCompile(`AccNo:\D*(\d{10}-\d{2}-\d{6})`)
)

// Fetch returns the current filings of formType from the listing, newest
// first, reading up to MaxPages pages. Entries whose form differs from
// formType (amendments, for example) are dropped.
func (c *Client) Fetch(ctx context.Context, formType string) ([]types.FilingDescriptor, error) {
	var (
		out  []types.FilingDescriptor
		seen = make(map[string]bool)
	)

	for page := 0; page < c.maxPages; page++ {
		pageURL := c.listingURL(formType, page*PageSize)

		body, ok := c.pages.Get(pageURL)
		if !ok {
			var err error
			body, err = c.get(ctx, "listing", pageURL)
			if err != nil {
				return out, fmt.Errorf("fetch %s listing page %d: %w", formType, page, err)
			}
			c.pages.Add(pageURL, body)
		}

		parsed, err := c.parser.Parse(bytes.NewReader(body))
		if err != nil {
			c.pages.Purge()
			return out, fmt.Errorf("parse %s listing page %d: %w", formType, page, err)
		}

		for _, item := range parsed.Items {
			desc, err := c.parseEntry(item)
			if err != nil {
				log.Debug().Err(err).Str("component", "feed").Str("title", item.Title).Msg("skipping listing entry")
				continue
			}
			if desc.FormType != formType || seen[desc.AccessionNumber] {
				continue
			}
			seen[desc.AccessionNumber] = true
			out = append(out, *desc)
		}

		if len(parsed.Items) < PageSize {
			break
		}
	}
	return out, nil
}

func (c *Client) listingURL(formType string, start int) string {
	q := url.Values{}
	q.Set("action", "getcurrent")
	q.Set("type", formType)
	q.Set("owner", "include")
	q.Set("count", fmt.Sprint(PageSize))
	q.Set("start", fmt.Sprint(start))
	q.Set("output", "atom")
	return c.baseURL + "/cgi-bin/browse-edgar?" + q.Encode()
}

// parseEntry turns one Atom entry into a descriptor.
func (c *Client) parseEntry(item *gofeed.Item) (*types.FilingDescriptor, error) {
	m := titlePattern.FindStringSubmatch(strings.TrimSpace(item.Title))
	if m == nil {
		return nil, fmt.Errorf("unrecognized title %q", item.Title)
	}
	formType, company, cik := m[1], strings.TrimSpace(m[2]), m[3]

	accession := accessionPattern.FindString(item.GUID)
	if accession == "" {
		if am := accNoPattern.FindStringSubmatch(item.Description); am != nil {
			accession = am[1]
		}
	}
	if accession == "" {
		return nil, fmt.Errorf("no accession number in entry %q", item.Title)
	}

	var filed time.Time
	if fm := filedPattern.FindStringSubmatch(item.Description); fm != nil {
		t, err := time.Parse("2006-01-02", fm[1])
		if err != nil {
			return nil, fmt.Errorf("filing date %q: %w", fm[1], err)
		}
		filed = t
	} else if item.UpdatedParsed != nil {
		u := item.UpdatedParsed
		filed = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	}

	desc := &types.FilingDescriptor{
		AccessionNumber: accession,
		CIK:             types.PadCIK(cik),
		CompanyName:     company,
		FormType:        formType,
		FilingDate:      filed,
		FilingURL:       c.FilingURL(cik, accession),
		FilingDirectory: types.StringPtr(FilingDirectory(cik, accession)),
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return desc, nil
}

// FilingDirectory is the archive path of a filing relative to the host.
func FilingDirectory(cik, accession string) string {
	return fmt.Sprintf("edgar/data/%s/%s", types.UnpadCIK(cik), strings.ReplaceAll(accession, "-", ""))
}

// FilingURL is the public index page of a filing.
func (c *Client) FilingURL(cik, accession string) string {
	return fmt.Sprintf("%s/Archives/%s/%s-index.htm", c.baseURL, FilingDirectory(cik, accession), accession)
}
