// Author: momentics <momentics@gmail.com>

package fake

import (
	"sync"

	"github.com/momentics/hioload-tls/api"
)

// BytePool is an allocating api.BytePool that counts outstanding buffers.
type BytePool struct {
	mu          sync.Mutex
	outstanding int
}

var _ api.BytePool = (*BytePool)(nil)

func (p *BytePool) Acquire(n int) []byte {
	p.mu.Lock()
	p.outstanding++
	p.mu.Unlock()
	return make([]byte, n)
}

func (p *BytePool) Release(_ []byte) {
	p.mu.Lock()
	p.outstanding--
	p.mu.Unlock()
}

// Outstanding returns acquired minus released buffers.
func (p *BytePool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}
