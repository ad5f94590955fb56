package fetcher

import (
	"math"
	"time"
)

// maxBackoff bounds an uncapped policy so doubling never overflows.
const maxBackoff = time.Duration(math.MaxInt64)

// RetryPolicy decides how many attempts a fetch gets, how long to wait
// between them, and which failures deserve another try.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration // zero disables the cap
	Classify    func(statusCode int, err error) bool
}

// NewRetryPolicy returns a policy using the default classifier.
func NewRetryPolicy(maxRetries int, base, max time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  maxRetries,
		BaseBackoff: base,
		MaxBackoff:  max,
		Classify:    IsRetryable,
	}
}

// Attempts is the total number of attempts one Fetch call may make.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Backoff returns the wait before the k-th retry (k >= 1): base * 2^(k-1).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry <= 0 || p.BaseBackoff <= 0 {
		return 0
	}

	delay := p.BaseBackoff
	for i := 1; i < retry; i++ {
		if delay > maxBackoff/2 {
			delay = maxBackoff
			break
		}
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Retryable reports whether a failed attempt should be tried again.
func (p RetryPolicy) Retryable(statusCode int, err error) bool {
	if p.Classify == nil {
		return IsRetryable(statusCode, err)
	}
	return p.Classify(statusCode, err)
}

// IsRetryable is the default classifier: 429, any 5xx, connection failures
// and timeouts are transient; everything else is final.
func IsRetryable(statusCode int, err error) bool {
	switch errorTypeLabel(classifyError(err, statusCode)) {
	case "rate_limited", "server", "timeout", "connection":
		return true
	default:
		return false
	}
}
