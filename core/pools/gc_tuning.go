package pools

import (
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds the GC tuning knobs exposed to a fastclient embedder via
// config.WithGCProfile. An embedder issuing a high volume of concurrent
// requests through one Client can trade memory for fewer GC pauses on the
// attempt hot path; this has nothing to do with the request/retry
// semantics and is opt-in only.
type GCConfig struct {
	// GOGC sets the garbage collection target percentage.
	// Default is 100. Lower values = more frequent GC but less memory.
	GOGC int

	// MemoryLimit sets a soft memory limit in bytes. 0 = no limit.
	MemoryLimit int64

	// MinRetainExtra is extra memory to retain as a baseline, reducing
	// GC frequency during a burst of connection/attempt allocations.
	MinRetainExtra int64
}

// DefaultGCProfile returns a GC profile biased toward fewer pauses, a
// reasonable starting point for an embedder issuing many concurrent
// requests through one Client.
func DefaultGCProfile() GCConfig {
	return GCConfig{
		GOGC:           200,      // less frequent GC than the runtime default of 100
		MemoryLimit:    0,        // no hard limit
		MinRetainExtra: 50 << 20, // retain 50MB extra to absorb connection/attempt churn
	}
}

// ApplyGCConfig applies cfg to the running process. Called once, from
// Client construction, when config.Config.GCProfile is set.
func ApplyGCConfig(cfg GCConfig) {
	if cfg.GOGC > 0 {
		debug.SetGCPercent(cfg.GOGC)
	}

	if cfg.MemoryLimit > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimit)
	}

	if cfg.MinRetainExtra > 0 {
		// Force a GC then immediately allocate to set a higher baseline,
		// so the first burst of pooled connections/attempts doesn't
		// trigger an early collection.
		runtime.GC()
		_ = make([]byte, cfg.MinRetainExtra)
	}
}

// RuntimeStats reports process-wide GC and goroutine counters, useful
// alongside Client.Stats() when diagnosing pool/GC interaction under load.
type RuntimeStats struct {
	NumGC        uint32
	PauseTotal   time.Duration
	LastPause    time.Duration
	AvgPause     time.Duration
	AllocBytes   uint64
	TotalAlloc   uint64
	Sys          uint64
	NumGoroutine int
}

// GetRuntimeStats samples current GC and goroutine statistics.
func GetRuntimeStats() RuntimeStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := RuntimeStats{
		NumGC:        ms.NumGC,
		AllocBytes:   ms.Alloc,
		TotalAlloc:   ms.TotalAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}

	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])

		var totalPause uint64
		numPauses := ms.NumGC
		if numPauses > 256 {
			numPauses = 256
		}
		for i := uint32(0); i < numPauses; i++ {
			totalPause += ms.PauseNs[i]
		}

		stats.PauseTotal = time.Duration(totalPause)
		stats.AvgPause = time.Duration(totalPause / uint64(numPauses))
	}

	return stats
}
