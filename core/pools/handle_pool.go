package pools

import (
	"sync"
	"sync/atomic"
	"time"
)

// HandlePool is a warmed-up, self-reporting sync.Pool wrapper used by the
// executor to recycle the per-attempt objects that would otherwise churn
// on every request: response body handles (core/executor's bodyHandle)
// today, with the same shape available to any other fixed-layout object
// the attempt loop wants off the allocator. Warming it up at Client
// construction means the first wave of concurrent requests doesn't pay
// for cold sync.Pool misses.
type HandlePool struct {
	pool      sync.Pool
	newFunc   func() any
	resetFunc func(any)

	gets      atomic.Uint64
	puts      atomic.Uint64
	news      atomic.Uint64
	startTime time.Time

	warmupSize    int
	maxIdleSize   int
	targetHitRate float64
}

// HandlePoolConfig configures a HandlePool.
type HandlePoolConfig struct {
	New           func() any
	Reset         func(any)
	WarmupSize    int     // objects to pre-allocate at construction
	MaxIdleSize   int     // recorded only; retention is left to sync.Pool and not capped
	TargetHitRate float64 // hit rate Optimize tries to maintain (0.0-1.0)
}

// NewHandlePool creates a HandlePool and pre-allocates WarmupSize objects.
func NewHandlePool(config HandlePoolConfig) *HandlePool {
	if config.WarmupSize == 0 {
		config.WarmupSize = 100
	}
	if config.MaxIdleSize == 0 {
		config.MaxIdleSize = 1000
	}
	if config.TargetHitRate == 0 {
		config.TargetHitRate = 0.90
	}

	hp := &HandlePool{
		newFunc:       config.New,
		resetFunc:     config.Reset,
		warmupSize:    config.WarmupSize,
		maxIdleSize:   config.MaxIdleSize,
		targetHitRate: config.TargetHitRate,
		startTime:     time.Now(),
	}

	hp.pool.New = func() any {
		hp.news.Add(1)
		return config.New()
	}

	hp.Warmup()
	return hp
}

// Get acquires a handle from the pool, allocating a fresh one on a miss.
func (hp *HandlePool) Get() any {
	hp.gets.Add(1)
	return hp.pool.Get()
}

// Put resets and returns a handle to the pool.
func (hp *HandlePool) Put(obj any) {
	if obj == nil {
		return
	}
	hp.puts.Add(1)
	if hp.resetFunc != nil {
		hp.resetFunc(obj)
	}
	hp.pool.Put(obj)
}

// Warmup pre-allocates warmupSize handles.
func (hp *HandlePool) Warmup() {
	for i := 0; i < hp.warmupSize; i++ {
		hp.pool.Put(hp.newFunc())
	}
}

// HandlePoolStats reports pool utilization, for embedders tuning pool
// sizing. Client.Stats does not include it.
type HandlePoolStats struct {
	Gets      uint64
	Puts      uint64
	News      uint64
	HitRate   float64
	Uptime    time.Duration
	ReuseRate float64
}

// Stats returns a snapshot of the pool's hit rate and reuse behavior.
func (hp *HandlePool) Stats() HandlePoolStats {
	gets := hp.gets.Load()
	puts := hp.puts.Load()
	news := hp.news.Load()

	hitRate := 0.0
	if gets > 0 {
		if hits := gets - news; hits > 0 {
			hitRate = float64(hits) / float64(gets)
		}
	}

	return HandlePoolStats{
		Gets:      gets,
		Puts:      puts,
		News:      news,
		HitRate:   hitRate,
		Uptime:    time.Since(hp.startTime),
		ReuseRate: float64(puts) / float64(gets+1),
	}
}

// Optimize tops up the pool when its hit rate has fallen below
// targetHitRate under sustained load.
func (hp *HandlePool) Optimize() {
	stats := hp.Stats()
	if stats.HitRate < hp.targetHitRate && stats.Gets > 1000 {
		additional := hp.warmupSize / 10
		for i := 0; i < additional; i++ {
			hp.pool.Put(hp.newFunc())
		}
	}
}

// StartAutoOptimize runs Optimize on a ticker until the caller stops the
// returned goroutine by letting the process exit; fastclient's Client
// does not currently call this, but an embedder running a long-lived
// Client under sustained load can.
func (hp *HandlePool) StartAutoOptimize(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			hp.Optimize()
		}
	}()
}
