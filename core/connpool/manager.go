package connpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/searchktools/fastclient/core/model"
	"github.com/searchktools/fastclient/core/transport"
)

// Config configures a PoolManager. It is the pool-shaped subset of the
// configuration surface in spec §6.
type Config struct {
	MaxConnections          int
	MaxConnectionsPerHost   int
	IdleTimeout             time.Duration
	MaxAge                  time.Duration
	MaxRequestsPerConn      int64
	ReaperInterval          time.Duration
	Dial                    transport.DialFunc
}

// PoolManager owns a keyed mapping of Origin to HostPool and the global
// connection ceiling, per spec §4.C.
type PoolManager struct {
	cfg    Config
	sem    *semaphore.Weighted

	mu    sync.RWMutex
	pools map[model.Origin]*HostPool

	opened atomic.Uint64
	closed atomic.Uint64

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// NewPoolManager builds a PoolManager and, when cfg.ReaperInterval is
// positive, starts its idle reaper.
func NewPoolManager(cfg Config) *PoolManager {
	max := cfg.MaxConnections
	if max <= 0 {
		max = 1 << 30 // effectively unbounded
	}

	pm := &PoolManager{
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(max)),
		pools:      make(map[model.Origin]*HostPool),
		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}

	if cfg.ReaperInterval > 0 {
		go pm.runReaper()
	} else {
		close(pm.reaperDone)
	}

	return pm
}

func (pm *PoolManager) acquire(ctx context.Context) error {
	return pm.sem.Acquire(ctx, 1)
}

func (pm *PoolManager) release() {
	pm.sem.Release(1)
	pm.closed.Add(1)
}

func (pm *PoolManager) releaseReserved() {
	pm.sem.Release(1)
}

func (pm *PoolManager) onOpened() {
	pm.opened.Add(1)
}

func (pm *PoolManager) hostPool(origin model.Origin) *HostPool {
	pm.mu.RLock()
	hp, ok := pm.pools[origin]
	pm.mu.RUnlock()
	if ok {
		return hp
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if hp, ok := pm.pools[origin]; ok {
		return hp
	}

	hp = newHostPool(origin, Limits{
		PerHostMax:  pm.cfg.MaxConnectionsPerHost,
		MaxAge:      pm.cfg.MaxAge,
		MaxRequests: pm.cfg.MaxRequestsPerConn,
	}, pm.cfg.Dial, pm)
	pm.pools[origin] = hp
	return hp
}

// Acquire routes req to its origin's HostPool and checks out a
// Connection. The opened total is incremented by onOpened, called
// directly from HostPool.openNew at the moment a Transport is actually
// opened — not inferred here from before/after pool size.
func (pm *PoolManager) Acquire(ctx context.Context, req *model.Request) (*Connection, error) {
	hp := pm.hostPool(req.Origin)
	return hp.Checkout(ctx)
}

// Release routes conn's checkin to its origin's HostPool.
func (pm *PoolManager) Release(conn *Connection, disposition Disposition) {
	hp := pm.hostPool(conn.Origin())
	hp.Checkin(conn, disposition)
}

// Stats returns a snapshot of pool-wide and per-origin counters (spec §6
// "Pool statistics snapshot").
func (pm *PoolManager) Stats() Stats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	snap := Stats{
		Opened: pm.opened.Load(),
		Closed: pm.closed.Load(),
		Origins: make(map[string]OriginStats, len(pm.pools)),
	}

	for origin, hp := range pm.pools {
		idle, inUse, waiters := hp.Size()
		snap.Origins[origin.String()] = OriginStats{Idle: idle, InUse: inUse, Waiters: waiters}
		snap.InUse += inUse
	}
	return snap
}

func (pm *PoolManager) runReaper() {
	defer close(pm.reaperDone)
	ticker := time.NewTicker(pm.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.reaperStop:
			return
		case <-ticker.C:
			pm.mu.RLock()
			pools := make([]*HostPool, 0, len(pm.pools))
			for _, hp := range pm.pools {
				pools = append(pools, hp)
			}
			pm.mu.RUnlock()

			for _, hp := range pools {
				hp.EvictStale(pm.cfg.IdleTimeout, pm.cfg.MaxAge)
			}
		}
	}
}

// Shutdown stops the reaper and closes every HostPool's Connections.
func (pm *PoolManager) Shutdown() {
	select {
	case <-pm.reaperStop:
	default:
		close(pm.reaperStop)
	}
	<-pm.reaperDone

	pm.mu.RLock()
	pools := make([]*HostPool, 0, len(pm.pools))
	for _, hp := range pm.pools {
		pools = append(pools, hp)
	}
	pm.mu.RUnlock()

	for _, hp := range pools {
		hp.Shutdown()
	}
}
