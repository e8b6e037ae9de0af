package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ksred/holdings-ingest/internal/retry"
	"github.com/ksred/holdings-ingest/internal/types"
)

func TestPolicy_Delay(t *testing.T) {
	tests := []struct {
		name     string
		policy   retry.Policy
		attempt  int
		expected time.Duration
	}{
		{"fixed", retry.CycleCooldown(30 * time.Second), 4, 30 * time.Second},
		{"zero attempt", retry.CycleCooldown(30 * time.Second), 0, 0},
		{"linear", retry.Policy{BackoffStrategy: retry.BackoffLinear, InitialDelay: time.Second, MaxDelay: time.Minute}, 3, 3 * time.Second},
		{"exponential", retry.Policy{BackoffStrategy: retry.BackoffExponential, InitialDelay: time.Second, MaxDelay: time.Minute}, 4, 8 * time.Second},
		{"capped", retry.Policy{BackoffStrategy: retry.BackoffExponential, InitialDelay: time.Second, MaxDelay: 5 * time.Second}, 10, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestPolicy_DelayJitterBounds(t *testing.T) {
	p := retry.Policy{BackoffStrategy: retry.BackoffFixed, InitialDelay: time.Second, JitterFactor: 0.25}
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestPolicy_Classify(t *testing.T) {
	p := retry.CycleCooldown(time.Second)

	assert.Equal(t, retry.Proceed, p.Classify(nil))
	assert.Equal(t, retry.Cooldown, p.Classify(fmt.Errorf("fetch: %w", types.ErrTransientNetwork)))
	assert.Equal(t, retry.Cooldown, p.Classify(context.DeadlineExceeded))
	assert.Equal(t, retry.Proceed, p.Classify(fmt.Errorf("x: %w", types.ErrMalformedDocument)))
	assert.Equal(t, retry.Proceed, p.Classify(types.ErrUnknownEntity))
	assert.Equal(t, retry.Proceed, p.Classify(&types.StoreError{Op: "insert", Err: errors.New("unique violation")}))
	assert.Equal(t, retry.Stop, p.Classify(&types.StoreError{Op: "insert", Err: errors.New("gone"), Fatal: true}))
}

func TestPolicy_Exhausted(t *testing.T) {
	assert.False(t, retry.CycleCooldown(time.Second).Exhausted(1000))

	p := retry.Policy{MaxAttempts: 3}
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
}

func TestPolicy_Wait(t *testing.T) {
	p := retry.CycleCooldown(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx, 1), context.Canceled)

	short := retry.CycleCooldown(time.Millisecond)
	assert.NoError(t, short.Wait(context.Background(), 1))
}
