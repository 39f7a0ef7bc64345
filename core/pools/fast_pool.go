package pools

import "sync"

// FastPool is a zero-overhead object pool without statistics
// Use this for hot path where every nanosecond counts
type FastPool struct {
	pool sync.Pool
}

// NewFastPool creates a fast pool without any overhead
func NewFastPool(newFunc func() any) *FastPool {
	return &FastPool{
		pool: sync.Pool{
			New: newFunc,
		},
	}
}

// Get acquires an object from the pool
func (fp *FastPool) Get() any {
	return fp.pool.Get()
}

// Put returns an object to the pool
func (fp *FastPool) Put(obj any) {
	if obj != nil {
		fp.pool.Put(obj)
	}
}
