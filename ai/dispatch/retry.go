package dispatch

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy is the exponential backoff applied to transient provider
// failures on a single provider.
type RetryPolicy struct {
	MaxAttempts int           // Calls per provider, including the first (default: 3)
	BaseDelay   time.Duration // Delay before the first retry (default: 500ms)
	Factor      float64       // Growth per retry (default: 2)
	MaxDelay    time.Duration // Cap before jitter (default: 5s)
	Jitter      float64       // Random extra delay as a fraction of the delay (default: 0.25)
}

// DefaultRetryPolicy returns the default policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Factor:      2,
		MaxDelay:    5 * time.Second,
		Jitter:      0.25,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Factor < 1 {
		p.Factor = d.Factor
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Backoff returns the delay before retry number retry (1-based):
// BaseDelay * Factor^(retry-1), capped at MaxDelay, plus up to Jitter of it.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 1; i < retry; i++ {
		delay *= p.Factor
		if delay >= float64(p.MaxDelay) {
			break
		}
	}
	delay = min(delay, float64(p.MaxDelay))
	if p.Jitter > 0 {
		delay += delay * p.Jitter * rand.Float64()
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
