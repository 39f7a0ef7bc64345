// Package connpool implements spec components 4.B (HostPool) and 4.C
// (PoolManager): a per-origin pool of reusable Transports with health
// tracking, idle reaping, and FIFO fairness under contention.
package connpool

import (
	"time"

	"github.com/searchktools/fastclient/core/model"
	"github.com/searchktools/fastclient/core/transport"
)

// State is a Connection's position in its HostPool's lifecycle (spec §3).
type State int

const (
	Idle State = iota
	InUse
	Closing
	Broken
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InUse:
		return "in-use"
	case Closing:
		return "closing"
	case Broken:
		return "broken"
	default:
		return "unknown"
	}
}

// Disposition is the caller's verdict on a Connection at checkin time.
type Disposition int

const (
	// Reusable means the request completed cleanly and the connection's
	// framing state is known-good.
	Reusable Disposition = iota
	// BrokenDisposition means the connection's framing state is unknown
	// or known-bad and it must be discarded.
	BrokenDisposition
	// Exhausted means max-age or max-requests was reached; handled the
	// same as BrokenDisposition but is not itself an error condition.
	Exhausted
)

// Connection pairs a Transport with the pool bookkeeping spec §3 requires.
type Connection struct {
	transport      transport.Transport
	origin         model.Origin
	createdAt      time.Time
	lastUsedAt     time.Time
	servedRequests int64
	state          State
}

func newConnection(tr transport.Transport) *Connection {
	now := time.Now()
	return &Connection{
		transport:  tr,
		origin:     tr.Origin(),
		createdAt:  now,
		lastUsedAt: now,
		state:      InUse,
	}
}

// ID returns the underlying Transport's identity.
func (c *Connection) ID() uint64 { return c.transport.ID() }

// Transport exposes the underlying Transport for the executor to drive.
func (c *Connection) Transport() transport.Transport { return c.transport }

// Origin reports the origin this connection belongs to.
func (c *Connection) Origin() model.Origin { return c.origin }

// State reports the connection's current pool state.
func (c *Connection) State() State { return c.state }

// ServedRequests reports how many requests have completed on this
// connection; it is monotonic per spec §3.
func (c *Connection) ServedRequests() int64 { return c.servedRequests }

// usable reports whether an idle connection found during checkout may
// still be handed out (spec §4.B checkout step 1).
func (c *Connection) usable(maxAge time.Duration, maxRequests int64) bool {
	if c.state == Broken {
		return false
	}
	if !c.transport.IsAlive() {
		return false
	}
	if maxAge > 0 && time.Since(c.createdAt) >= maxAge {
		return false
	}
	if maxRequests > 0 && c.servedRequests >= maxRequests {
		return false
	}
	return true
}
