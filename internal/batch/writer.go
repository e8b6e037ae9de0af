package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/ksred/holdings-ingest/internal/extract"
	"github.com/ksred/holdings-ingest/internal/filings"
	"github.com/ksred/holdings-ingest/internal/resolver"
	"github.com/ksred/holdings-ingest/internal/types"
	"github.com/rs/zerolog/log"
)

// DefaultChunkSize bounds rows resolved and committed per transaction.
const DefaultChunkSize = 20000

// IdentifierResolver maps holding text fields to surrogate ids.
type IdentifierResolver interface {
	Resolve(ctx context.Context, kind resolver.Kind, value string) (uint, error)
	ResolveIssuer(ctx context.Context, cusip, name string) (uint, error)
}

// Writer persists a filing's holdings chunk by chunk. Each chunk is fully
// resolved before its load starts, and chunks commit independently.
type Writer struct {
	resolver     IdentifierResolver
	loader       Loader
	chunkSize    int
	storeTimeout time.Duration
}

// NewWriter creates a BatchWriter. A non-positive chunkSize falls back to
// DefaultChunkSize.
func NewWriter(r IdentifierResolver, loader Loader, chunkSize int, storeTimeout time.Duration) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{
		resolver:     r,
		loader:       loader,
		chunkSize:    chunkSize,
		storeTimeout: storeTimeout,
	}
}

// Write stores rows for filingID and returns how many were committed. A
// failure stops at the failing chunk; when earlier chunks were already
// committed the error is a *types.PartialWriteError.
//
// Cancelling ctx stops the writer before the next chunk, but a chunk whose
// load has started is allowed to finish.
func (w *Writer) Write(ctx context.Context, filingID uint, rows []extract.Holding) (int, error) {
	logger := log.With().Str("component", "batch_writer").Uint("filing_id", filingID).Logger()

	written := 0
	for start := 0; start < len(rows); start += w.chunkSize {
		end := min(start+w.chunkSize, len(rows))

		if err := ctx.Err(); err != nil {
			return written, w.fail(written, fmt.Errorf("write interrupted: %w", err))
		}

		chunk, err := w.resolveChunk(ctx, filingID, rows[start:end])
		if err != nil {
			return written, w.fail(written, err)
		}

		if err := w.load(ctx, chunk); err != nil {
			logger.Error().Err(err).Int("chunk_start", start).Int("chunk_rows", len(chunk)).Msg("chunk rolled back")
			return written, w.fail(written, types.NewStoreError("load holdings", err))
		}

		written += len(chunk)
		logger.Debug().Int("chunk_rows", len(chunk)).Int("written", written).Msg("chunk committed")
	}
	return written, nil
}

func (w *Writer) load(ctx context.Context, chunk []filings.Holding) error {
	loadCtx := context.WithoutCancel(ctx)
	if w.storeTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(loadCtx, w.storeTimeout)
		defer cancel()
	}
	return w.loader.Load(loadCtx, chunk)
}

func (w *Writer) resolveChunk(ctx context.Context, filingID uint, rows []extract.Holding) ([]filings.Holding, error) {
	now := time.Now().UTC()
	chunk := make([]filings.Holding, 0, len(rows))
	for _, h := range rows {
		holding, err := w.resolveHolding(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", h.CUSIP, err)
		}
		holding.FilingID = filingID
		holding.CreatedAt = now
		holding.UpdatedAt = now
		chunk = append(chunk, holding)
	}
	return chunk, nil
}

func (w *Writer) resolveHolding(ctx context.Context, h extract.Holding) (filings.Holding, error) {
	var (
		out filings.Holding
		err error
	)
	if out.IssuerID, err = w.resolver.ResolveIssuer(ctx, h.CUSIP, h.IssuerName); err != nil {
		return out, err
	}
	if out.TitleOfClassID, err = w.resolver.Resolve(ctx, resolver.SecurityClass, h.TitleOfClass); err != nil {
		return out, err
	}
	if out.SharesOrPrincipalTypeID, err = w.resolver.Resolve(ctx, resolver.HoldingType, h.SharesOrPrincipalType); err != nil {
		return out, err
	}
	if out.PutOrCallID, err = w.resolver.Resolve(ctx, resolver.OptionType, h.PutOrCall); err != nil {
		return out, err
	}
	if out.InvestmentDiscretionID, err = w.resolver.Resolve(ctx, resolver.DiscretionType, h.InvestmentDiscretion); err != nil {
		return out, err
	}

	out.SharesOrPrincipal = h.SharesOrPrincipal
	out.Value = h.Value
	out.VotingAuthoritySole = h.VotingSole
	out.VotingAuthorityShared = h.VotingShared
	out.VotingAuthorityNone = h.VotingNone
	return out, nil
}

func (w *Writer) fail(written int, err error) error {
	if written > 0 {
		return &types.PartialWriteError{Written: written, Err: err}
	}
	return err
}
