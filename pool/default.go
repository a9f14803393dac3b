package pool

import (
	"sync"
)

// DefaultBufferSize is the largest record read in one call.
const DefaultBufferSize = 65535

var (
	defaultOnce sync.Once
	defaultPool *BytePool
)

// Default returns the process-wide read-buffer pool so servers and clients
// reuse the same buffers instead of fragmenting allocations.
func Default() *BytePool {
	defaultOnce.Do(func() {
		defaultPool = NewBytePool(DefaultBufferSize)
	})
	return defaultPool
}
