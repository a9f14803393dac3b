// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines the buffer pooling contract used by connection read loops.

package api

// BytePool provides reusable []byte buffers for read loops.
type BytePool interface {
	// Acquire returns a slice of at least n bytes.
	Acquire(n int) []byte

	// Release returns a buffer to the pool
	Release(buf []byte)
}
