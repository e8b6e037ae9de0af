package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/holdings-ingest/internal/extract"
	"github.com/ksred/holdings-ingest/internal/filings"
	"github.com/ksred/holdings-ingest/internal/metrics"
	"github.com/ksred/holdings-ingest/internal/types"
)

// ErrAlreadyIngested reports that another writer inserted the filing first.
var ErrAlreadyIngested = errors.New("filing already ingested")

// Store is the part of the filings store the pipeline writes through.
type Store interface {
	GetManagerByCIK(ctx context.Context, cik string) (*filings.Manager, error)
	CreateFiling(ctx context.Context, filing *filings.Filing) error
}

// AttachmentLoader fills in the documents of an admitted filing.
type AttachmentLoader interface {
	LoadAttachments(ctx context.Context, desc *types.FilingDescriptor) error
}

// HoldingsWriter persists extracted holdings for a filing row.
type HoldingsWriter interface {
	Write(ctx context.Context, filingID uint, rows []extract.Holding) (int, error)
}

// Pipeline ingests one admitted filing: filing row, then holdings for each
// information table attachment.
type Pipeline struct {
	store       Store
	attachments AttachmentLoader
	extractor   *extract.Extractor
	writer      HoldingsWriter
	logger      zerolog.Logger
}

// NewPipeline creates the per-filing ingestion pipeline.
func NewPipeline(store Store, attachments AttachmentLoader, extractor *extract.Extractor, writer HoldingsWriter) *Pipeline {
	return &Pipeline{
		store:       store,
		attachments: attachments,
		extractor:   extractor,
		writer:      writer,
		logger:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Process ingests desc and returns the number of holdings committed. The
// filing is complete only when the returned error is nil; the caller marks
// it seen after that.
//
// Attachments are handled independently. A malformed information table is
// logged and skipped so the remaining tables are still written, but the
// filing is then reported as failed with types.ErrMalformedDocument.
func (p *Pipeline) Process(ctx context.Context, desc *types.FilingDescriptor) (int, error) {
	logger := p.logger.With().
		Str("accession", desc.AccessionNumber).
		Str("cik", desc.CIK).
		Logger()

	manager, err := p.store.GetManagerByCIK(ctx, desc.CIK)
	if err != nil {
		return 0, err
	}

	if err := p.attachments.LoadAttachments(ctx, desc); err != nil {
		return 0, err
	}

	filing := filings.NewFiling(manager.ID, desc)
	if err := p.store.CreateFiling(ctx, filing); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, fmt.Errorf("%w: %s", ErrAlreadyIngested, desc.AccessionNumber)
		}
		return 0, err
	}
	logger = logger.With().Uint("filing_id", filing.ID).Logger()

	var (
		written   int
		malformed []error
	)
	for _, attachment := range desc.InformationTables() {
		result, err := p.extractor.Extract(attachment.Content)
		if err != nil {
			logger.Error().Err(err).Str("document", attachment.Document).Msg("abandoning attachment")
			malformed = append(malformed, fmt.Errorf("%s: %w", attachment.Document, err))
			continue
		}
		metrics.RecordStrategy(result.Strategy)

		n, err := p.writer.Write(ctx, filing.ID, result.Holdings)
		written += n
		metrics.RecordHoldings(n)
		if err != nil {
			return written, fmt.Errorf("write holdings from %s: %w", attachment.Document, err)
		}
		logger.Debug().
			Str("document", attachment.Document).
			Str("strategy", result.Strategy).
			Int("holdings", n).
			Msg("attachment ingested")
	}

	if len(malformed) > 0 {
		return written, errors.Join(malformed...)
	}

	logger.Info().Int("holdings", written).Msg("filing ingested")
	return written, nil
}
