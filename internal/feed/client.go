package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ksred/holdings-ingest/internal/metrics"
	"github.com/ksred/holdings-ingest/internal/types"
	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the EDGAR host for listings and archives.
	DefaultBaseURL = "https://www.sec.gov"

	// PageSize is the number of entries EDGAR returns per listing page.
	PageSize = 100

	breakerRecovery  = 5 * time.Second
	breakerThreshold = 5
)

// ErrNotFound is returned for documents the archive does not have.
var ErrNotFound = errors.New("document not found")

// Config configures a Client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	MaxPages  int
	CacheTTL  time.Duration
	CacheSize int
	// Limiter is shared with every other outbound caller in the pipeline.
	Limiter *rate.Limiter
}

// Client reads EDGAR's current-filings listing and filing archives. Every
// request waits on the shared rate limiter and runs through a circuit
// breaker that opens after repeated transient failures.
type Client struct {
	http     *resty.Client
	baseURL  string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	pages    *pageCache
	parser   *gofeed.Parser
	maxPages int
}

// NewClient creates an EDGAR client. UserAgent is required; a nil Limiter
// defaults to 10 requests per second.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, errors.New("feed: user agent is required by EDGAR")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Limit(10), 1)
	}

	pages, err := newPageCache(cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "edgar",
		Timeout: breakerRecovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		// Only transport trouble counts against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, types.ErrTransientNetwork)
		},
	})

	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		limiter:  cfg.Limiter,
		breaker:  breaker,
		pages:    pages,
		parser:   gofeed.NewParser(),
		maxPages: cfg.MaxPages,
	}, nil
}

// Invalidate drops every cached listing page so the next Fetch reads fresh
// data from upstream.
func (c *Client) Invalidate() {
	c.pages.Purge()
}

// BreakerState reports the circuit breaker state for status endpoints.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// get performs a rate-limited GET through the circuit breaker.
func (c *Client) get(ctx context.Context, kind, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.R().SetContext(ctx).Get(url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: GET %s: %v", types.ErrTransientNetwork, url, err)
		}
		switch code := resp.StatusCode(); {
		case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
			return nil, fmt.Errorf("%w: GET %s: status %d", types.ErrTransientNetwork, url, code)
		case code == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		case resp.IsError():
			return nil, fmt.Errorf("GET %s: status %d", url, code)
		}
		return resp.Body(), nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", types.ErrTransientNetwork, err)
	}
	if err != nil {
		metrics.RecordFeedRequest(kind, "error")
		return nil, err
	}
	metrics.RecordFeedRequest(kind, "ok")
	return body.([]byte), nil
}
