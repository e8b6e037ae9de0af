// Package notify publishes a JSON document per newly ingested filing to the
// configured downstream endpoints.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ksred/holdings-ingest/internal/metrics"
	"github.com/ksred/holdings-ingest/internal/types"
)

// BackendSource tags every notification with its producer.
const BackendSource = "newsquawk-sec-filings"

// Notification is the document posted for each ingested filing.
type Notification struct {
	AccessionNumber string     `json:"accession_number"`
	CIK             string     `json:"cik"`
	CompanyName     string     `json:"company_name"`
	FormType        string     `json:"form_type"`
	FilingURL       string     `json:"filing_url"`
	FiledAt         *time.Time `json:"filed_at"`
	PeriodOfReport  *time.Time `json:"period_of_report"`
	FileNumber      *string    `json:"file_number"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	BackendSource   string     `json:"backend_source"`
}

// FromDescriptor builds the notification for desc stamped with now.
func FromDescriptor(desc *types.FilingDescriptor, now time.Time) Notification {
	n := Notification{
		AccessionNumber: desc.AccessionNumber,
		CIK:             types.UnpadCIK(desc.CIK),
		CompanyName:     desc.CompanyName,
		FormType:        desc.FormType,
		FilingURL:       desc.FilingURL,
		PeriodOfReport:  desc.PeriodOfReport,
		FileNumber:      desc.FileNumber,
		CreatedAt:       now,
		UpdatedAt:       now,
		BackendSource:   BackendSource,
	}
	if !desc.FilingDate.IsZero() {
		d := desc.FilingDate
		filed := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		n.FiledAt = &filed
	}
	return n
}

// Publisher posts notifications to every configured endpoint.
type Publisher struct {
	http      *resty.Client
	endpoints []string
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewPublisher returns a Publisher for endpoints. limiter may be nil.
func NewPublisher(endpoints []string, timeout time.Duration, limiter *rate.Limiter) *Publisher {
	return &Publisher{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		endpoints: endpoints,
		limiter:   limiter,
		logger:    log.With().Str("component", "notifier").Logger(),
	}
}

// Publish delivers n to every endpoint concurrently. A failing endpoint
// does not stop delivery to the others; the joined per-endpoint errors are
// returned after all deliveries finish.
func (p *Publisher) Publish(ctx context.Context, n Notification) error {
	if len(p.endpoints) == 0 {
		return nil
	}

	errs := make([]error, len(p.endpoints))
	var g errgroup.Group
	for i, endpoint := range p.endpoints {
		g.Go(func() error {
			if err := p.deliver(ctx, endpoint, n); err != nil {
				p.logger.Error().Err(err).
					Str("endpoint", endpoint).
					Str("accession", n.AccessionNumber).
					Msg("notification delivery failed")
				metrics.RecordNotify("error")
				errs[i] = err
				return nil
			}
			metrics.RecordNotify("ok")
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (p *Publisher) deliver(ctx context.Context, endpoint string, n Notification) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(n).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("%w: POST %s: %v", types.ErrTransientNetwork, endpoint, err)
	}
	if resp.IsError() {
		return fmt.Errorf("POST %s: status %d", endpoint, resp.StatusCode())
	}
	return nil
}
