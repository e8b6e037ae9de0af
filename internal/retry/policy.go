// Package retry decides how the ingestion loop reacts to a failed cycle.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/ksred/holdings-ingest/internal/types"
)

// Action is what the loop should do after an error.
type Action int

const (
	// Proceed logs the error and moves on to the next filing.
	Proceed Action = iota
	// Cooldown abandons the current cycle and sleeps before the next one.
	Cooldown
	// Stop terminates the loop.
	Stop
)

func (a Action) String() string {
	switch a {
	case Cooldown:
		return "cooldown"
	case Stop:
		return "stop"
	default:
		return "proceed"
	}
}

// BackoffType identifies the backoff strategy.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffLinear      BackoffType = "linear"
	BackoffExponential BackoffType = "exponential"
)

// Policy defines how failed cycles are retried.
type Policy struct {
	// MaxAttempts is the number of consecutive failed cycles tolerated
	// before stopping. Zero retries forever.
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffStrategy BackoffType
	JitterFactor    float64 // 0.0-1.0
}

// CycleCooldown retries forever with a fixed delay between cycles.
func CycleCooldown(delay time.Duration) Policy {
	return Policy{
		InitialDelay:    delay,
		MaxDelay:        delay,
		BackoffStrategy: BackoffFixed,
	}
}

// Classify maps an error from the pipeline to the loop's reaction.
func (p Policy) Classify(err error) Action {
	switch {
	case err == nil:
		return Proceed
	case types.IsFatal(err):
		return Stop
	case errors.Is(err, types.ErrTransientNetwork), errors.Is(err, context.DeadlineExceeded):
		return Cooldown
	default:
		return Proceed
	}
}

// Exhausted reports whether attempt consecutive failures exceed the policy.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Delay returns the wait before retrying after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	var delay time.Duration
	switch p.BackoffStrategy {
	case BackoffLinear:
		delay = p.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		delay = p.InitialDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	default:
		delay = p.InitialDelay
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.JitterFactor > 0 {
		jitter := float64(delay) * p.JitterFactor * (rand.Float64()*2 - 1)
		delay = time.Duration(float64(delay) + jitter)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// Wait sleeps for Delay(attempt) or until ctx is done.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	delay := p.Delay(attempt)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
