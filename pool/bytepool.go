// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
//
// sync.Pool backed read-buffer pool with in-use accounting.

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-tls/api"
)

// Stats is a point-in-time view of a BytePool.
type Stats struct {
	Size     int
	Acquired int64
	Released int64
	Allocs   int64
	InUse    int64
}

// BytePool hands out fixed-capacity buffers. Requests above the pool size
// are served by plain allocations and dropped on release.
type BytePool struct {
	pool     sync.Pool
	size     int
	acquired atomic.Int64
	released atomic.Int64
	allocs   atomic.Int64
}

var _ api.BytePool = (*BytePool)(nil)

// NewBytePool creates a pool of buffers with capacity size.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BytePool{size: size}
	bp.pool.New = func() any {
		bp.allocs.Add(1)
		b := make([]byte, bp.size)
		return &b
	}
	return bp
}

// Acquire returns a slice of length n.
func (bp *BytePool) Acquire(n int) []byte {
	bp.acquired.Add(1)
	if n > bp.size {
		bp.allocs.Add(1)
		return make([]byte, n)
	}
	b := bp.pool.Get().(*[]byte)
	return (*b)[:n]
}

// Release returns a buffer to the pool.
func (bp *BytePool) Release(buf []byte) {
	if buf == nil {
		return
	}
	bp.released.Add(1)
	if cap(buf) != bp.size {
		return
	}
	buf = buf[:bp.size]
	bp.pool.Put(&buf)
}

// Size returns the buffer capacity served by the pool.
func (bp *BytePool) Size() int { return bp.size }

// Stats returns a snapshot of pool counters.
func (bp *BytePool) Stats() Stats {
	acq, rel := bp.acquired.Load(), bp.released.Load()
	return Stats{
		Size:     bp.size,
		Acquired: acq,
		Released: rel,
		Allocs:   bp.allocs.Load(),
		InUse:    acq - rel,
	}
}
