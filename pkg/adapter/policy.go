package adapter

import (
	"math/rand"
	"time"
)

// RetryPolicy is shared by every client adapter; per-service tuning happens
// through configuration, not per-adapter constants.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	Jitter      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BaseBackoff: 500 * time.Millisecond,
		Jitter:      250 * time.Millisecond,
	}
}

// backoffFor returns the exponential backoff for a zero-based attempt number,
// with up to Jitter of random spread added.
func (p RetryPolicy) backoffFor(attempt int) time.Duration {
	d := p.BaseBackoff << uint(attempt)
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}
