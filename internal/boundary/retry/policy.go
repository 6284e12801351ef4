// Package retry decides whether and when a failed boundary resets itself.
package retry

import (
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/faultline/internal/core/domain"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
)

// Decision is the outcome of Policy.Decide.
type Decision struct {
	ShouldAutoRetry bool
	Delay           time.Duration
}

// Policy auto-retries transient categories with exponential backoff:
// BaseDelay * 2^retryCount. A positive MaxDelay caps the delay, so with
// MaxRetries above 5 and the default 30s cap later attempts wait 30s
// instead of 32s, 64s and so on. A zero MaxDelay leaves the formula uncapped.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns 3 retries starting at 1s: 1s, 2s, 4s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Retryable reports whether a category is retried automatically.
func Retryable(c domain.Category) bool {
	return c == domain.CategoryChunkLoad || c == domain.CategoryNetwork
}

// Decide is Policy{maxRetries, baseDelay, 0}.Decide, so the delay is
// exactly baseDelay * 2^retryCount.
func Decide(c domain.Classification, retryCount, maxRetries int, baseDelay time.Duration) Decision {
	return Policy{MaxRetries: maxRetries, BaseDelay: baseDelay}.Decide(c, retryCount)
}

// Decide offers an automatic retry only for retryable categories while
// retryCount is below MaxRetries.
func (p Policy) Decide(c domain.Classification, retryCount int) Decision {
	if !Retryable(c.Category) || !p.CanRetry(retryCount) {
		return Decision{}
	}
	return Decision{ShouldAutoRetry: true, Delay: p.GetDelay(retryCount)}
}

// CanRetry reports whether any retry, manual or automatic, is still allowed.
func (p Policy) CanRetry(retryCount int) bool {
	return retryCount < p.maxRetries()
}

// GetDelay returns the backoff for the given attempt (0-indexed).
func (p Policy) GetDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}

	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}

	var delay time.Duration
	for i := 0; i <= attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		delay = next
	}
	return delay
}

func (p Policy) maxRetries() int {
	if p.MaxRetries < 0 {
		return 0
	}
	return p.MaxRetries
}
