package retry

import "time"

// Policy is the immutable configuration of the RetryEngine (spec §3
// "RetryPolicy").
type Policy struct {
	MaxRetries          int
	RetryableCategories map[Category]bool
	RetryStatusCodes    map[int]bool
	Backoff             BackoffStrategy
	RespectRetryAfter   bool
	PerAttemptTimeout   time.Duration
	TotalDeadline       time.Duration
	MaxBackoff          time.Duration
}

// DefaultPolicy returns a conservative, commonly-useful policy: 3 retries,
// exponential backoff from 100ms capped at 5s, retrying transient,
// timeout, server, rate-limit and protocol categories, honoring
// Retry-After.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		RetryableCategories: map[Category]bool{
			CategoryTransient: true,
			CategoryTimeout:   true,
			CategoryServer:    true,
			CategoryRateLimit: true,
			CategoryProtocol:  true,
		},
		RetryStatusCodes: map[int]bool{
			502: true,
			503: true,
			504: true,
		},
		Backoff:           ExponentialBackoff{Base: 100 * time.Millisecond, Cap: 5 * time.Second},
		RespectRetryAfter: true,
		PerAttemptTimeout: 10 * time.Second,
		TotalDeadline:     30 * time.Second,
		MaxBackoff:        5 * time.Second,
	}
}

// IsRetryableStatus reports whether code should be routed through the
// retry engine at all (spec §4.E step "If the response status is in the
// retry set"). 429 always qualifies so Retry-After can be honored even if
// the caller never added it to RetryStatusCodes.
func (p Policy) IsRetryableStatus(code int) bool {
	if code == 429 {
		return true
	}
	return p.RetryStatusCodes[code]
}
