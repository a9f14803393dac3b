// File: internal/transport/secure.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/tlsengine"
)

// Secure carries application bytes through an established TLS session.
type Secure struct {
	sess   *tlsengine.Session
	closed atomic.Bool
}

var _ api.Transport = (*Secure)(nil)

// NewSecure takes ownership of sess and its socket.
func NewSecure(sess *tlsengine.Session) *Secure {
	return &Secure{sess: sess}
}

// Read implements api.Transport.
func (s *Secure) Read(b []byte, wait time.Duration) (int, error) {
	if s.closed.Load() {
		return 0, api.ErrClosed
	}
	return s.sess.Read(b, wait)
}

// Write implements api.Transport. The session writes whole records, so a
// successful call always accepts all of b.
func (s *Secure) Write(b []byte) (int, error) {
	if s.closed.Load() {
		return 0, api.ErrClosed
	}
	return s.sess.Write(b)
}

// Close sends close_notify and then closes the socket.
func (s *Secure) Close() error {
	s.closed.Store(true)
	return s.sess.Close()
}

// Interrupt wakes a Write blocked on a peer that stopped reading.
func (s *Secure) Interrupt() { s.sess.Interrupt() }

// Closed implements api.Transport.
func (s *Secure) Closed() bool { return s.closed.Load() }

// Secure implements api.Transport.
func (s *Secure) Secure() bool { return true }

// RemoteAddr implements api.Transport.
func (s *Secure) RemoteAddr() net.Addr { return s.sess.RemoteAddr() }

// Session exposes the TLS session, e.g. for peer certificate inspection.
func (s *Secure) Session() *tlsengine.Session { return s.sess }
