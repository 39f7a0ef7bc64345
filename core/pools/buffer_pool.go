package pools

import (
	"sync"
	"sync/atomic"
)

// wireTierSizes are the fixed scratch-buffer tiers used for copying request
// bodies onto the wire, with Content-Length or chunked framing
// (core/transport/conn.go's writeBody and writeChunkedBody loops).
var wireTierSizes = []int{512, 2048, 8192, 32768}

// Head-buffer tiers for assembling the request line + headers before a
// write. Sized around what a typical request head needs: most requests
// fit the small tier, a header-heavy request lands in medium, and large
// covers outliers (long cookie jars, bearer tokens, etc.) without ever
// falling back to an unpooled allocation in the common case.
const (
	HeadTierSmall  = 2 * 1024
	HeadTierMedium = 8 * 1024
	HeadTierLarge  = 32 * 1024
)

// WireBufferPool serves the two buffer shapes fastclient's transport
// needs on the hot path: a growable head buffer for building the request
// line and headers, and fixed-length scratch slices for copying a request
// body onto the wire. Both share the tiered
// sync.Pool design, sized differently because a head buffer grows via
// append while a scratch buffer is read into at a fixed length.
type WireBufferPool struct {
	headSmall, headMedium, headLarge sync.Pool
	scratch                          []*sync.Pool

	headGets                      atomic.Uint64
	headSmallHits, headMediumHits atomic.Uint64
	headLargeHits                 atomic.Uint64
	scratchGets                   atomic.Uint64
}

// NewWireBufferPool creates a pool with the standard head and scratch
// tiers.
func NewWireBufferPool() *WireBufferPool {
	p := &WireBufferPool{
		scratch: make([]*sync.Pool, len(wireTierSizes)),
	}
	p.headSmall.New = func() any { buf := make([]byte, 0, HeadTierSmall); return &buf }
	p.headMedium.New = func() any { buf := make([]byte, 0, HeadTierMedium); return &buf }
	p.headLarge.New = func() any { buf := make([]byte, 0, HeadTierLarge); return &buf }

	for i, size := range wireTierSizes {
		sz := size
		p.scratch[i] = &sync.Pool{
			New: func() any { buf := make([]byte, sz); return &buf },
		}
	}
	return p
}

// AcquireHead returns a zero-length, growable buffer sized to hold
// estimatedSize bytes without reallocating, for building one request
// head.
func (p *WireBufferPool) AcquireHead(estimatedSize int) *[]byte {
	p.headGets.Add(1)
	switch {
	case estimatedSize <= HeadTierSmall:
		p.headSmallHits.Add(1)
		return p.headSmall.Get().(*[]byte)
	case estimatedSize <= HeadTierMedium:
		p.headMediumHits.Add(1)
		return p.headMedium.Get().(*[]byte)
	default:
		p.headLargeHits.Add(1)
		return p.headLarge.Get().(*[]byte)
	}
}

// ReleaseHead returns a head buffer acquired via AcquireHead to its tier.
// Buffers larger than the largest tier are dropped for the GC to collect.
func (p *WireBufferPool) ReleaseHead(buf *[]byte) {
	if buf == nil {
		return
	}
	*buf = (*buf)[:0]
	switch c := cap(*buf); {
	case c <= HeadTierSmall:
		p.headSmall.Put(buf)
	case c <= HeadTierMedium:
		p.headMedium.Put(buf)
	case c <= HeadTierLarge:
		p.headLarge.Put(buf)
	}
}

// Scratch returns a fixed-length byte slice of exactly size bytes, drawn
// from the smallest tier that fits. Sizes above the largest tier fall
// back to a direct, unpooled allocation.
func (p *WireBufferPool) Scratch(size int) []byte {
	p.scratchGets.Add(1)
	for i, tier := range wireTierSizes {
		if size <= tier {
			bufPtr := p.scratch[i].Get().(*[]byte)
			buf := *bufPtr
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// PutScratch returns a slice acquired via Scratch to its tier, matched by
// capacity. Slices not drawn from a tier (oversized, or a caller-grown
// slice) are left for the GC.
func (p *WireBufferPool) PutScratch(buf []byte) {
	capacity := cap(buf)
	for i, tier := range wireTierSizes {
		if capacity == tier {
			buf = buf[:capacity]
			p.scratch[i].Put(&buf)
			return
		}
	}
}

// WireBufferStats reports pool utilization. Client.Stats does not include
// it; GetWireBufferStats returns it for the global pool.
type WireBufferStats struct {
	HeadGets    uint64
	HeadHitRate float64
	ScratchGets uint64
}

// Stats returns a snapshot of pool activity.
func (p *WireBufferPool) Stats() WireBufferStats {
	gets := p.headGets.Load()
	hitRate := 0.0
	if gets > 0 {
		hits := p.headSmallHits.Load() + p.headMediumHits.Load() + p.headLargeHits.Load()
		hitRate = float64(hits) / float64(gets)
	}
	return WireBufferStats{
		HeadGets:    gets,
		HeadHitRate: hitRate,
		ScratchGets: p.scratchGets.Load(),
	}
}

var globalWireBufferPool = NewWireBufferPool()

// AcquireBuffer gets a growable request-head buffer from the global pool.
func AcquireBuffer(estimatedSize int) *[]byte {
	return globalWireBufferPool.AcquireHead(estimatedSize)
}

// ReleaseBuffer returns a request-head buffer to the global pool.
func ReleaseBuffer(buf *[]byte) {
	globalWireBufferPool.ReleaseHead(buf)
}

// GetBytes gets a fixed-length scratch slice from the global pool.
func GetBytes(size int) []byte {
	return globalWireBufferPool.Scratch(size)
}

// PutBytes returns a scratch slice to the global pool.
func PutBytes(buf []byte) {
	globalWireBufferPool.PutScratch(buf)
}

// GetWireBufferStats returns statistics for the global wire buffer pool.
func GetWireBufferStats() WireBufferStats {
	return globalWireBufferPool.Stats()
}
