// Package health pings an external liveness monitor on a fixed interval.
package health

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/holdings-ingest/internal/metrics"
)

// Pinger sends a best-effort GET to a monitor URL. It runs independently of
// ingestion and never reports failures beyond logging them.
type Pinger struct {
	url      string
	interval time.Duration
	http     *resty.Client
	logger   zerolog.Logger
}

// NewPinger creates a liveness pinger. An empty url disables it.
func NewPinger(url string, interval, timeout time.Duration) *Pinger {
	return &Pinger{
		url:      url,
		interval: interval,
		http:     resty.New().SetTimeout(timeout),
		logger:   log.With().Str("component", "health").Logger(),
	}
}

// Start pings immediately and then every interval until ctx is done.
func (p *Pinger) Start(ctx context.Context) {
	if p.url == "" {
		p.logger.Info().Msg("no healthcheck URL configured, liveness ping disabled")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Ping(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Ping(ctx)
		}
	}
}

// Ping sends one liveness request.
func (p *Pinger) Ping(ctx context.Context) bool {
	resp, err := p.http.R().SetContext(ctx).Get(p.url)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("healthcheck ping failed")
		}
		metrics.RecordPing("error")
		return false
	}
	if resp.IsError() {
		p.logger.Error().Int("status", resp.StatusCode()).Msg("healthcheck ping rejected")
		metrics.RecordPing("error")
		return false
	}
	metrics.RecordPing("ok")
	return true
}
