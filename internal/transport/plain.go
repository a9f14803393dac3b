// File: internal/transport/plain.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/momentics/hioload-tls/api"
)

// MinWait is the shortest deadline used by the deadline based read path.
const MinWait = time.Millisecond

// Plain is an unencrypted TCP transport.
type Plain struct {
	conn   net.Conn
	raw    syscall.RawConn
	closed atomic.Bool
	once   sync.Once
	err    error
}

var _ api.Transport = (*Plain)(nil)

// NewPlain takes ownership of conn.
func NewPlain(conn net.Conn) *Plain {
	p := &Plain{conn: conn}
	if sc, ok := conn.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			p.raw = raw
		}
	}
	return p
}

// Read implements api.Transport.
func (p *Plain) Read(b []byte, wait time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, api.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	if p.raw != nil {
		return p.rawRead(b, wait)
	}
	return p.deadlineRead(b, wait)
}

// Write implements api.Transport.
func (p *Plain) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, api.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	if p.raw != nil {
		return p.rawWrite(b)
	}
	return p.deadlineWrite(b)
}

func (p *Plain) deadlineRead(b []byte, wait time.Duration) (int, error) {
	if wait < MinWait {
		wait = MinWait
	}
	if err := p.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return 0, classifyNet(err)
	}
	n, err := p.conn.Read(b)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		return 0, api.ErrWouldBlock
	}
	return 0, classifyNet(err)
}

func (p *Plain) deadlineWrite(b []byte) (int, error) {
	if err := p.conn.SetWriteDeadline(time.Now().Add(MinWait)); err != nil {
		return 0, classifyNet(err)
	}
	n, err := p.conn.Write(b)
	if n > 0 {
		return n, nil
	}
	return 0, classifyNet(err)
}

// Close implements api.Transport.
func (p *Plain) Close() error {
	p.once.Do(func() {
		p.closed.Store(true)
		p.err = p.conn.Close()
	})
	return p.err
}

// Closed implements api.Transport.
func (p *Plain) Closed() bool { return p.closed.Load() }

// Secure implements api.Transport.
func (p *Plain) Secure() bool { return false }

// RemoteAddr implements api.Transport.
func (p *Plain) RemoteAddr() net.Addr { return p.conn.RemoteAddr() }

// classifyNet maps runtime network errors onto the api error set.
// io.EOF is passed through untouched.
func classifyNet(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, os.ErrDeadlineExceeded):
		return api.ErrWouldBlock
	case errors.Is(err, net.ErrClosed):
		return api.ErrClosed
	default:
		return api.WrapError(api.ErrCodeIO, "socket i/o", err)
	}
}
