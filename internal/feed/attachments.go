package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/ksred/holdings-ingest/internal/types"
)

const primaryDocument = "primary_doc.xml"

type directoryListing struct {
	Directory struct {
		Name  string `json:"name"`
		Items []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"item"`
	} `json:"directory"`
}

// LoadAttachments downloads the XML documents of a filing into desc and
// fills PeriodOfReport and FileNumber from the primary cover document when
// present. It is called only for admitted filings.
func (c *Client) LoadAttachments(ctx context.Context, desc *types.FilingDescriptor) error {
	dir := FilingDirectory(desc.CIK, desc.AccessionNumber)
	if desc.FilingDirectory == nil {
		desc.FilingDirectory = types.StringPtr(dir)
	}

	body, err := c.get(ctx, "index", fmt.Sprintf("%s/Archives/%s/index.json", c.baseURL, dir))
	if err != nil {
		return fmt.Errorf("list attachments for %s: %w", desc.AccessionNumber, err)
	}

	var listing directoryListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return fmt.Errorf("decode attachment listing for %s: %w", desc.AccessionNumber, err)
	}

	attachments := make([]types.Attachment, 0, len(listing.Directory.Items))
	for _, item := range listing.Directory.Items {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(item.Name)), ".")
		if ext != "xml" {
			continue
		}

		content, err := c.get(ctx, "attachment", fmt.Sprintf("%s/Archives/%s/%s", c.baseURL, dir, item.Name))
		if err != nil {
			return fmt.Errorf("download %s for %s: %w", item.Name, desc.AccessionNumber, err)
		}
		attachments = append(attachments, types.Attachment{
			Document:  item.Name,
			Extension: ext,
			Content:   content,
		})

		if strings.EqualFold(item.Name, primaryDocument) {
			if err := applyCoverPage(desc, content); err != nil {
				log.Warn().Err(err).
					Str("component", "feed").
					Str("accession", desc.AccessionNumber).
					Msg("could not read cover page")
			}
		}
	}

	desc.Attachments = attachments
	return nil
}

// applyCoverPage copies periodOfReport and form13FFileNumber from the
// primary document onto desc.
func applyCoverPage(desc *types.FilingDescriptor, content []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return err
	}

	var period, fileNumber string
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		switch localTag(goquery.NodeName(s)) {
		case "periodofreport":
			if period == "" {
				period = strings.TrimSpace(s.Text())
			}
		case "form13ffilenumber":
			if fileNumber == "" {
				fileNumber = strings.TrimSpace(s.Text())
			}
		}
	})

	if fileNumber != "" {
		desc.FileNumber = &fileNumber
	}
	if period == "" {
		return nil
	}
	t, err := parseReportDate(period)
	if err != nil {
		return err
	}
	desc.PeriodOfReport = &t
	return nil
}

func parseReportDate(s string) (time.Time, error) {
	for _, layout := range []string{"01-02-2006", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized period of report " + s)
}

func localTag(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}
