package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ksred/holdings-ingest/internal/gate"
	"github.com/ksred/holdings-ingest/internal/metrics"
	"github.com/ksred/holdings-ingest/internal/notify"
	"github.com/ksred/holdings-ingest/internal/retry"
	"github.com/ksred/holdings-ingest/internal/types"
	"github.com/ksred/holdings-ingest/internal/watchlist"
)

// Lister reads the current filings announced upstream.
type Lister interface {
	Fetch(ctx context.Context, formType string) ([]types.FilingDescriptor, error)
	Invalidate()
}

// WatchSource supplies the tracked CIK set.
type WatchSource interface {
	Refresh() (bool, error)
	Snapshot() *watchlist.Snapshot
}

// Notifier publishes a document per ingested filing.
type Notifier interface {
	Publish(ctx context.Context, n notify.Notification) error
}

// Options tune the loop.
type Options struct {
	FormTypes    []string
	PollInterval time.Duration
	Policy       retry.Policy
	// Limiter bounds admitted filings per second across the loop. Nil
	// leaves processing unthrottled.
	Limiter *rate.Limiter
}

// Processor is the ingestion loop: poll, gate, ingest, notify, sleep.
type Processor struct {
	lister   Lister
	watch    WatchSource
	session  *gate.Session
	pipeline *Pipeline
	notifier Notifier
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time

	mu              sync.Mutex
	cycles          int64
	failedCycles    int64
	filingsIngested int64
	lastCycleAt     *time.Time
}

// NewProcessor creates the ingestion loop. A zero PollInterval defaults to
// one second and empty FormTypes to 13F-HR and 13F-HR/A.
func NewProcessor(lister Lister, watch WatchSource, session *gate.Session, pipeline *Pipeline, notifier Notifier, opts Options) *Processor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if len(opts.FormTypes) == 0 {
		opts.FormTypes = []string{"13F-HR", "13F-HR/A"}
	}
	return &Processor{
		lister:   lister,
		watch:    watch,
		session:  session,
		pipeline: pipeline,
		notifier: notifier,
		opts:     opts,
		logger:   log.With().Str("component", "ingest_processor").Logger(),
		now:      time.Now,
	}
}

// Start runs cycles until ctx is cancelled or a fatal store error occurs,
// which is returned. Transient failures abandon the cycle and wait out the
// retry policy's cooldown before polling again.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info().Strs("form_types", p.opts.FormTypes).Msg("starting ingestion processor")

	failures := 0
	for {
		started := p.now()
		err := p.RunCycle(ctx)
		p.recordCycle(started, err)

		if ctx.Err() != nil {
			p.logger.Info().Msg("shutting down ingestion processor")
			return nil
		}

		wait := p.opts.PollInterval
		switch p.opts.Policy.Classify(err) {
		case retry.Stop:
			p.logger.Error().Err(err).Msg("unrecoverable store failure, stopping ingestion processor")
			return err
		case retry.Cooldown:
			failures++
			if p.opts.Policy.Exhausted(failures) {
				return fmt.Errorf("giving up after %d failed cycles: %w", failures, err)
			}
			wait = p.opts.Policy.Delay(failures)
			p.logger.Warn().Err(err).Int("failures", failures).Dur("cooldown", wait).Msg("cycle abandoned")
		default:
			failures = 0
		}

		if !sleep(ctx, wait) {
			p.logger.Info().Msg("shutting down ingestion processor")
			return nil
		}
	}
}

// RunCycle performs one poll over every configured form type. Errors that
// only affect a single filing are logged and skipped; transient network
// and fatal store errors end the cycle and are returned.
func (p *Processor) RunCycle(ctx context.Context) error {
	logger := p.logger.With().Str("cycle_id", uuid.New().String()).Logger()

	p.refreshWatchList(logger)
	p.lister.Invalidate()

	for _, formType := range p.opts.FormTypes {
		if err := ctx.Err(); err != nil {
			return err
		}

		descs, err := p.lister.Fetch(ctx, formType)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", formType, err)
		}
		logger.Debug().Str("form_type", formType).Int("filings", len(descs)).Msg("fetched current filings")

		for i := range descs {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := p.handle(ctx, logger, &descs[i])
			if err == nil {
				continue
			}
			switch p.opts.Policy.Classify(err) {
			case retry.Stop, retry.Cooldown:
				return err
			default:
				logger.Error().Err(err).
					Str("accession", descs[i].AccessionNumber).
					Str("cik", descs[i].CIK).
					Msg("failed to process filing")
			}
		}
	}
	return nil
}

func (p *Processor) handle(ctx context.Context, logger zerolog.Logger, desc *types.FilingDescriptor) error {
	decision, err := p.session.Evaluate(ctx, desc)
	metrics.RecordDecision(desc.FormType, decision.String())
	if err != nil {
		return err
	}
	if decision != gate.Admitted {
		return nil
	}

	if p.opts.Limiter != nil {
		if err := p.opts.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	logger.Info().
		Str("accession", desc.AccessionNumber).
		Str("cik", desc.CIK).
		Str("form_type", desc.FormType).
		Msg("processing filing")

	if _, err := p.pipeline.Process(ctx, desc); err != nil {
		if errors.Is(err, ErrAlreadyIngested) {
			p.session.MarkSeen(desc.AccessionNumber)
			metrics.RecordFiling("duplicate")
			return nil
		}
		metrics.RecordFiling("failed")
		return err
	}

	p.session.MarkSeen(desc.AccessionNumber)
	metrics.RecordFiling("ingested")
	p.mu.Lock()
	p.filingsIngested++
	p.mu.Unlock()

	if p.notifier != nil {
		n := notify.FromDescriptor(desc, p.now().UTC())
		if err := p.notifier.Publish(ctx, n); err != nil {
			logger.Warn().Err(err).Str("accession", desc.AccessionNumber).Msg("notification not delivered")
		}
	}
	return nil
}

// ReloadWatchList refreshes the watch list out of band and pins the result
// for subsequent gate decisions.
func (p *Processor) ReloadWatchList() (bool, error) {
	changed, err := p.watch.Refresh()
	snapshot := p.watch.Snapshot()
	p.session.SetWatchList(snapshot)
	metrics.RecordWatchList(snapshot.Len())
	return changed, err
}

func (p *Processor) refreshWatchList(logger zerolog.Logger) {
	changed, err := p.ReloadWatchList()
	if err != nil {
		logger.Warn().Err(err).Msg("watch list refresh failed, keeping previous snapshot")
		return
	}
	if changed {
		logger.Info().Int("ciks", p.session.WatchList().Len()).Msg("watch list reloaded")
	}
}

func (p *Processor) recordCycle(started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordCycle(status, time.Since(started).Seconds())

	finished := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycles++
	if err != nil {
		p.failedCycles++
		return
	}
	p.lastCycleAt = &finished
}

// Status reports loop counters for the admin API.
func (p *Processor) Status() types.StatusResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.StatusResponse{
		SeenFilings:     p.session.SeenCount(),
		WatchListSize:   p.session.WatchList().Len(),
		Cycles:          p.cycles,
		FailedCycles:    p.failedCycles,
		FilingsIngested: p.filingsIngested,
		LastCycleAt:     p.lastCycleAt,
		Timestamp:       p.now(),
	}
}

// LastCycleAt returns when the last successful cycle finished.
func (p *Processor) LastCycleAt() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCycleAt
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
