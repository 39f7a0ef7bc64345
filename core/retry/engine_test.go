package retry

import (
	"testing"
	"time"

	"github.com/searchktools/fastclient/core/model"
)

func networkOutcome() model.Outcome {
	return model.Outcome{Kind: model.OutcomeNetwork, NetworkKind: model.NetReset}
}

func serverOutcome(code int) model.Outcome {
	return model.Outcome{Kind: model.OutcomeHTTPStatus, StatusCode: code}
}

// TestDecideRespectsMaxRetries is spec §8 property: exactly MaxRetries
// attempts beyond the first are ever made before the engine gives up.
func TestDecideRespectsMaxRetries(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	for i := 0; i < engine.Policy.MaxRetries; i++ {
		v := engine.Decide(model.Attempt{Index: i, Outcome: networkOutcome()}, true, engine.Policy.MaxRetries)
		if v.Kind == VerdictGiveup {
			t.Fatalf("attempt %d: expected a retry verdict within budget, got giveup", i)
		}
	}

	v := engine.Decide(model.Attempt{Index: engine.Policy.MaxRetries, Outcome: networkOutcome()}, true, engine.Policy.MaxRetries)
	if v.Kind != VerdictGiveup {
		t.Fatalf("expected giveup once the attempt budget is exhausted, got %v", v.Kind)
	}
}

// TestDecideClientErrorNeverRetried covers the CLIENT category override:
// it is never retried regardless of policy or idempotency.
func TestDecideClientErrorNeverRetried(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	v := engine.Decide(model.Attempt{Index: 0, Outcome: serverOutcome(404)}, true, 5)
	if v.Kind != VerdictGiveup {
		t.Fatalf("expected a 404 to never be retried, got %v", v.Kind)
	}
}

// TestDecideProtocolErrorRetriedOnceWhenIdempotent covers the ProtocolError
// carve-out: exactly one retry, only for idempotent requests.
func TestDecideProtocolErrorRetriedOnceWhenIdempotent(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	outcome := model.Outcome{Kind: model.OutcomeProtocolError}

	first := engine.Decide(model.Attempt{Index: 0, Outcome: outcome}, true, 5)
	if first.Kind == VerdictGiveup {
		t.Fatal("expected the first protocol error to be retried for an idempotent request")
	}
	second := engine.Decide(model.Attempt{Index: 1, Outcome: outcome}, true, 5)
	if second.Kind != VerdictGiveup {
		t.Fatal("expected the second protocol error to give up, even within budget")
	}

	nonIdempotent := engine.Decide(model.Attempt{Index: 0, Outcome: outcome}, false, 5)
	if nonIdempotent.Kind != VerdictGiveup {
		t.Fatal("expected a protocol error on a non-idempotent request to never be retried")
	}
}

// TestDecideNonIdempotentBodyWrittenGivesUp covers Rule 2: once a
// non-idempotent request's body has been sent, transient failures and
// non-connect timeouts must not be retried.
func TestDecideNonIdempotentBodyWrittenGivesUp(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	v := engine.Decide(model.Attempt{Index: 0, Outcome: networkOutcome(), BodyWritten: true}, false, 5)
	if v.Kind != VerdictGiveup {
		t.Fatal("expected a transient failure after body-written to give up for a non-idempotent request")
	}

	timeoutAfterWrite := model.Outcome{Kind: model.OutcomeTimeout, TimeoutPhase: model.PhaseReadHeaders}
	v = engine.Decide(model.Attempt{Index: 0, Outcome: timeoutAfterWrite, BodyWritten: true}, false, 5)
	if v.Kind != VerdictGiveup {
		t.Fatal("expected a post-write timeout to give up for a non-idempotent request")
	}

	// A connect-phase timeout never has BodyWritten set in practice, but
	// Rule 2 explicitly carves it out even if it were: the connection
	// never accepted a write, so replay is always safe.
	connectTimeout := model.Outcome{Kind: model.OutcomeTimeout, TimeoutPhase: model.PhaseConnect}
	v = engine.Decide(model.Attempt{Index: 0, Outcome: connectTimeout, BodyWritten: true}, false, 5)
	if v.Kind == VerdictGiveup {
		t.Fatal("expected a connect-phase timeout to remain retryable for a non-idempotent request")
	}
}

// TestDecideRetryAfterOverridesBackoff is spec §8 property 11: a 429 with
// a parseable Retry-After produces VerdictRetryAfter with that delay
// rather than the configured backoff strategy's delay.
func TestDecideRetryAfterOverridesBackoff(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	header := model.NewHeader()
	header.Set("Retry-After", "2")

	outcome := model.Outcome{Kind: model.OutcomeHTTPStatus, StatusCode: 429, Header: header}
	v := engine.Decide(model.Attempt{Index: 0, Outcome: outcome}, true, 5)
	if v.Kind != VerdictRetryAfter {
		t.Fatalf("expected VerdictRetryAfter, got %v", v.Kind)
	}
	if v.Delay != 2*time.Second {
		t.Fatalf("expected a 2s delay from Retry-After, got %v", v.Delay)
	}
}

// TestDecideCategoryNotInPolicySetGivesUp covers Rule 3.
func TestDecideCategoryNotInPolicySetGivesUp(t *testing.T) {
	policy := DefaultPolicy()
	policy.RetryableCategories = map[Category]bool{CategoryServer: true}
	engine := NewEngine(policy)

	v := engine.Decide(model.Attempt{Index: 0, Outcome: networkOutcome()}, true, 5)
	if v.Kind != VerdictGiveup {
		t.Fatalf("expected transient category outside the policy set to give up, got %v", v.Kind)
	}
}

// TestExponentialBackoffDoublesAndCaps is spec §8 property 10: successive
// delays double until the cap, then stay pinned at the cap.
func TestExponentialBackoffDoublesAndCaps(t *testing.T) {
	b := ExponentialBackoff{Base: 100 * time.Millisecond, Cap: time.Second}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second, // would be 1600ms uncapped
		time.Second,
	}
	for i, w := range want {
		if got := b.Delay(i); got != w {
			t.Fatalf("attempt %d: expected delay %v, got %v", i, w, got)
		}
	}
}

// TestDecorrelatedJitterStaysWithinBounds is spec §8 property 10's jitter
// variant: every delay across 200 sequential draws falls within
// [base, cap].
func TestDecorrelatedJitterStaysWithinBounds(t *testing.T) {
	base := 50 * time.Millisecond
	cap := 2 * time.Second
	b := NewDecorrelatedJitterBackoff(base, cap)

	for i := 0; i < 200; i++ {
		d := b.Delay(i)
		if d < base || d > cap {
			t.Fatalf("delay %v at attempt %d out of bounds [%v, %v]", d, i, base, cap)
		}
	}
}

// TestClassifyStatusHonorsCustomRetryStatusCodes covers a caller-configured
// non-5xx entry in RetryStatusCodes (e.g. a custom retryable 408): it must
// classify as SERVER, not CLIENT, so Decide doesn't give up on it via the
// "CLIENT is never retried" rule even though the policy says it's retryable.
func TestClassifyStatusHonorsCustomRetryStatusCodes(t *testing.T) {
	policy := DefaultPolicy()
	policy.RetryStatusCodes[408] = true
	engine := NewEngine(policy)

	if got := engine.Classify(serverOutcome(408)); got != CategoryServer {
		t.Fatalf("expected a configured 408 to classify as server, got %v", got)
	}

	v := engine.Decide(model.Attempt{Index: 0, Outcome: serverOutcome(408)}, true, 5)
	if v.Kind == VerdictGiveup {
		t.Fatal("expected a configured retryable 408 to produce a retry verdict, not giveup")
	}

	// An un-configured 4xx still classifies as client and is never retried.
	if got := engine.Classify(serverOutcome(400)); got != CategoryClient {
		t.Fatalf("expected an unconfigured 400 to classify as client, got %v", got)
	}
}

func TestClassifyMapsOutcomesToCategories(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	cases := []struct {
		name string
		o    model.Outcome
		want Category
	}{
		{"network", networkOutcome(), CategoryTransient},
		{"timeout", model.Outcome{Kind: model.OutcomeTimeout}, CategoryTimeout},
		{"protocol", model.Outcome{Kind: model.OutcomeProtocolError}, CategoryProtocol},
		{"rate-limit", serverOutcome(429), CategoryRateLimit},
		{"server-error", serverOutcome(503), CategoryServer},
		{"client-error", serverOutcome(400), CategoryClient},
		{"success", serverOutcome(200), CategoryServer},
	}
	for _, c := range cases {
		if got := engine.Classify(c.o); got != c.want {
			t.Errorf("%s: expected category %v, got %v", c.name, c.want, got)
		}
	}
}
