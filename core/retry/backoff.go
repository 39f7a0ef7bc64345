package retry

import (
	"math/rand"
	"sync"
	"time"
)

// BackoffStrategy maps an attempt index (and, for stateful strategies,
// prior delays) to a wait duration. Spec §9 design notes call for exactly
// this shape instead of a deeper strategy hierarchy.
type BackoffStrategy interface {
	Delay(attemptIndex int) time.Duration
}

// ExponentialBackoff implements delay = min(base * 2^i, cap). It carries
// no mutable state, so one instance is safe to share across every
// concurrent request using the same RetryPolicy.
type ExponentialBackoff struct {
	Base time.Duration
	Cap  time.Duration
}

func (e ExponentialBackoff) Delay(attemptIndex int) time.Duration {
	if attemptIndex < 0 {
		attemptIndex = 0
	}
	d := e.Base
	for i := 0; i < attemptIndex; i++ {
		d *= 2
		if d > e.Cap {
			return e.Cap
		}
	}
	if d > e.Cap {
		return e.Cap
	}
	return d
}

// DecorrelatedJitterBackoff implements the AWS-style decorrelated jitter
// recurrence: next = min(cap, uniform(base, prev*3)). It is intentionally
// stateful and shared across every request on the policy — collisions in
// the shared prev value are what keeps concurrent retries from
// synchronizing into a thundering herd (spec §4.D).
type DecorrelatedJitterBackoff struct {
	Base time.Duration
	Cap  time.Duration

	mu   sync.Mutex
	prev time.Duration
	rnd  *rand.Rand
}

// NewDecorrelatedJitterBackoff seeds prev to base, per spec §4.D.
func NewDecorrelatedJitterBackoff(base, cap time.Duration) *DecorrelatedJitterBackoff {
	return &DecorrelatedJitterBackoff{
		Base: base,
		Cap:  cap,
		prev: base,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *DecorrelatedJitterBackoff) Delay(attemptIndex int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	upper := d.prev * 3
	if upper > d.Cap {
		upper = d.Cap
	}
	if upper <= d.Base {
		d.prev = d.Base
		return d.Base
	}

	span := int64(upper - d.Base)
	next := d.Base + time.Duration(d.rnd.Int63n(span+1))
	if next > d.Cap {
		next = d.Cap
	}
	d.prev = next
	return next
}
