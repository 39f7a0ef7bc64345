package connpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/searchktools/fastclient/core/model"
	"github.com/searchktools/fastclient/core/transport"
)

// Limits bounds one HostPool's behavior.
type Limits struct {
	PerHostMax         int
	MaxAge             time.Duration
	MaxRequests        int64
	CheckoutDeadline   time.Duration
}

// globalSlots is the subset of PoolManager a HostPool needs: the global
// connection ceiling, shared across every origin.
type globalSlots interface {
	acquire(ctx context.Context) error
	// release accounts for an actual Transport close.
	release()
	// releaseReserved rolls back a semaphore reservation that never
	// resulted in an opened Transport; it does not count as a close.
	releaseReserved()
	// onOpened accounts for a Transport that was actually opened.
	onOpened()
}

// HostPool manages idle and in-use Connections for one origin, per spec
// §4.B. Its idle queue, in-use set and waiter queue form one critical
// section guarded by mu.
type HostPool struct {
	origin model.Origin
	limits Limits
	dial   transport.DialFunc
	global globalSlots

	// openTransport opens a new Transport for this origin. Defaults to
	// transport.Open; tests substitute a fake to avoid real dialing.
	openTransport func(ctx context.Context) (transport.Transport, error)

	mu      sync.Mutex
	idle    []*Connection          // MRU at the end
	inUse   map[uint64]*Connection
	waiters []chan struct{}        // FIFO
	count   int                    // idle + in-use, reserved eagerly
}

func newHostPool(origin model.Origin, limits Limits, dial transport.DialFunc, global globalSlots) *HostPool {
	hp := &HostPool{
		origin: origin,
		limits: limits,
		dial:   dial,
		global: global,
		inUse:  make(map[uint64]*Connection),
	}
	hp.openTransport = func(ctx context.Context) (transport.Transport, error) {
		return transport.Open(ctx, hp.origin, hp.dial)
	}
	return hp
}

// Checkout implements spec §4.B's checkout algorithm.
func (hp *HostPool) Checkout(ctx context.Context) (*Connection, error) {
	for {
		hp.mu.Lock()

		for len(hp.idle) > 0 {
			conn := hp.idle[len(hp.idle)-1]
			hp.idle = hp.idle[:len(hp.idle)-1]

			if conn.usable(hp.limits.MaxAge, hp.limits.MaxRequests) {
				conn.state = InUse
				hp.inUse[conn.ID()] = conn
				hp.mu.Unlock()
				return conn, nil
			}

			hp.count--
			hp.mu.Unlock()
			conn.transport.Close()
			hp.global.release()
			hp.mu.Lock()
		}

		if hp.limits.PerHostMax <= 0 || hp.count < hp.limits.PerHostMax {
			hp.count++
			hp.mu.Unlock()

			conn, err := hp.openNew(ctx)
			if err != nil {
				hp.mu.Lock()
				hp.count--
				hp.wakeOneLocked()
				hp.mu.Unlock()
				return nil, err
			}

			hp.mu.Lock()
			hp.inUse[conn.ID()] = conn
			hp.mu.Unlock()
			return conn, nil
		}

		w := make(chan struct{})
		hp.waiters = append(hp.waiters, w)
		hp.mu.Unlock()

		select {
		case <-w:
			continue
		case <-ctx.Done():
			hp.removeWaiter(w)
			return nil, fmt.Errorf("%w: %v", model.ErrPoolExhausted, ctx.Err())
		}
	}
}

func (hp *HostPool) openNew(ctx context.Context) (*Connection, error) {
	if err := hp.global.acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrPoolExhausted, err)
	}

	tr, err := hp.openTransport(ctx)
	if err != nil {
		hp.global.releaseReserved()
		return nil, fmt.Errorf("%w: %v", model.ErrConnect, err)
	}

	hp.global.onOpened()
	return newConnection(tr), nil
}

// Checkin implements spec §4.B's checkin dispositions.
func (hp *HostPool) Checkin(conn *Connection, disposition Disposition) {
	hp.mu.Lock()
	delete(hp.inUse, conn.ID())

	var toClose *Connection
	switch disposition {
	case Reusable:
		conn.state = Idle
		conn.servedRequests++
		conn.lastUsedAt = time.Now()
		hp.idle = append(hp.idle, conn)
	default:
		conn.state = Broken
		hp.count--
		toClose = conn
	}

	hp.wakeOneLocked()
	hp.mu.Unlock()

	if toClose != nil {
		toClose.transport.Close()
		hp.global.release()
	}
}

func (hp *HostPool) wakeOneLocked() {
	if len(hp.waiters) == 0 {
		return
	}
	w := hp.waiters[0]
	hp.waiters = hp.waiters[1:]
	close(w)
}

func (hp *HostPool) removeWaiter(target chan struct{}) {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	for i, w := range hp.waiters {
		if w == target {
			hp.waiters = append(hp.waiters[:i], hp.waiters[i+1:]...)
			return
		}
	}
}

// Size reports the current idle/in-use/waiter counts (spec §4.B).
func (hp *HostPool) Size() (idle, inUse, waiters int) {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	return len(hp.idle), len(hp.inUse), len(hp.waiters)
}

// EvictStale closes idle Connections whose last-used-at predates
// idleTimeout or whose created-at predates maxAge. It snapshots the idle
// queue under the lock, evaluates eviction candidates outside the lock,
// then re-acquires the lock once per closed connection — the approach
// recorded as an Open Question decision in DESIGN.md.
func (hp *HostPool) EvictStale(idleTimeout, maxAge time.Duration) int {
	hp.mu.Lock()
	snapshot := make([]*Connection, len(hp.idle))
	copy(snapshot, hp.idle)
	hp.mu.Unlock()

	now := time.Now()
	var stale []*Connection
	for _, conn := range snapshot {
		if idleTimeout > 0 && now.Sub(conn.lastUsedAt) > idleTimeout {
			stale = append(stale, conn)
			continue
		}
		if maxAge > 0 && now.Sub(conn.createdAt) > maxAge {
			stale = append(stale, conn)
		}
	}

	evicted := 0
	for _, conn := range stale {
		hp.mu.Lock()
		removed := false
		for i, c := range hp.idle {
			if c == conn {
				hp.idle = append(hp.idle[:i], hp.idle[i+1:]...)
				hp.count--
				removed = true
				break
			}
		}
		hp.mu.Unlock()

		if removed {
			conn.transport.Close()
			hp.global.release()
			evicted++
		}
	}
	return evicted
}

// Shutdown closes every idle and in-use Connection and wakes every
// waiter. In-use connections are marked Broken and their Transports are
// closed immediately; Checkin does not consult that mark, so the owner's
// later Checkin still applies whatever disposition it passes.
func (hp *HostPool) Shutdown() {
	hp.mu.Lock()
	idle := hp.idle
	hp.idle = nil
	inUse := make([]*Connection, 0, len(hp.inUse))
	for _, c := range hp.inUse {
		inUse = append(inUse, c)
	}
	for _, w := range hp.waiters {
		close(w)
	}
	hp.waiters = nil
	hp.mu.Unlock()

	for _, conn := range idle {
		conn.transport.Close()
		hp.global.release()
	}
	for _, conn := range inUse {
		conn.state = Broken
		conn.transport.Close()
	}
}
