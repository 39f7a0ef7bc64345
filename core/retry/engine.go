package retry

import (
	"strconv"
	"time"

	"github.com/searchktools/fastclient/core/model"
)

// VerdictKind tags the Engine's decision.
type VerdictKind int

const (
	VerdictGiveup VerdictKind = iota
	VerdictRetryAfter
	VerdictRetryNow
)

// Verdict is the RetryEngine's answer for one failed Attempt.
type Verdict struct {
	Kind   VerdictKind
	Delay  time.Duration
	Reason string
}

// Engine classifies outcomes, computes backoff, and gates retries
// (spec §4.D).
type Engine struct {
	Policy Policy
}

// NewEngine builds an Engine bound to policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{Policy: policy}
}

// Classify maps an Outcome to a Category, per spec §4.D's table.
func (e *Engine) Classify(o model.Outcome) Category {
	switch o.Kind {
	case model.OutcomeNetwork:
		return CategoryTransient
	case model.OutcomeTimeout:
		return CategoryTimeout
	case model.OutcomeProtocolError:
		return CategoryProtocol
	case model.OutcomeHTTPStatus:
		return e.classifyStatus(o.StatusCode)
	default:
		return CategoryNone
	}
}

func (e *Engine) classifyStatus(code int) Category {
	if code == 429 {
		return CategoryRateLimit
	}
	// A code the caller explicitly configured into RetryStatusCodes is
	// SERVER regardless of its numeric range (spec §4.D:
	// HttpStatus(c), c ∈ retry-status-codes → SERVER), so a custom
	// retryable 4xx like 408 isn't shadowed by the CLIENT range check
	// below and doesn't hit Decide's "CLIENT is never retried" rule.
	if e.Policy.RetryStatusCodes[code] {
		return CategoryServer
	}
	if code >= 500 && code < 600 {
		return CategoryServer
	}
	if code >= 400 && code < 500 {
		return CategoryClient
	}
	return CategoryServer
}

// Decide evaluates the rules of spec §4.D in order and returns a Verdict.
// maxRetries overrides the policy's MaxRetries when non-negative (a
// request's MaxRetriesOverride).
func (e *Engine) Decide(attempt model.Attempt, idempotent bool, maxRetries int) Verdict {
	category := e.Classify(attempt.Outcome)
	if maxRetries < 0 {
		maxRetries = e.Policy.MaxRetries
	}

	// Rule 1: attempt budget exhausted.
	if attempt.Index >= maxRetries {
		return Verdict{Kind: VerdictGiveup, Reason: "max retries reached"}
	}

	// ProtocolError gets exactly one retry, and only if idempotent.
	if category == CategoryProtocol {
		if !idempotent || attempt.Index >= 1 {
			return Verdict{Kind: VerdictGiveup, Reason: "protocol error, no further retry"}
		}
		return e.retryAfter(attempt)
	}

	// CLIENT is never retried, regardless of configuration.
	if category == CategoryClient {
		return Verdict{Kind: VerdictGiveup, Reason: "client error, not retryable"}
	}

	// Rule 2: non-idempotent safety. A connect-phase failure never has
	// BodyWritten set, so it always falls through here.
	if !idempotent && attempt.BodyWritten {
		if category == CategoryTransient {
			return Verdict{Kind: VerdictGiveup, Reason: "non-idempotent request, body already sent"}
		}
		if category == CategoryTimeout && attempt.Outcome.TimeoutPhase != model.PhaseConnect {
			return Verdict{Kind: VerdictGiveup, Reason: "non-idempotent request, body already sent"}
		}
	}

	// Rule 3: category must be in the policy's retryable set.
	if !e.Policy.RetryableCategories[category] {
		return Verdict{Kind: VerdictGiveup, Reason: "category not retryable by policy"}
	}

	// Rule 4: Retry-After honored for rate limiting.
	if category == CategoryRateLimit && e.Policy.RespectRetryAfter && attempt.Outcome.Header != nil {
		if d, ok := parseRetryAfter(attempt.Outcome.Header.Get("Retry-After")); ok {
			return Verdict{Kind: VerdictRetryAfter, Delay: clamp(d, e.Policy.MaxBackoff)}
		}
	}

	return e.retryAfter(attempt)
}

func (e *Engine) retryAfter(attempt model.Attempt) Verdict {
	d := e.Policy.Backoff.Delay(attempt.Index)
	return Verdict{Kind: VerdictRetryAfter, Delay: clamp(d, e.Policy.MaxBackoff)}
}

func clamp(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > max {
		return max
	}
	return d
}

// parseRetryAfter parses the delta-seconds form of Retry-After. The
// HTTP-date form is not handled: every corpus example that honors
// Retry-After (denkhaus-open-notebook-cli's retry classifier, among
// others) only implements delta-seconds, and spec §8 property 11 only
// exercises that form.
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
