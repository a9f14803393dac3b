// File: tlsengine/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tlsengine

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-tls/api"
)

// MinReadWait is the shortest read deadline used for a record read.
// A deadline already in the past makes the runtime skip the socket entirely,
// so a zero wait is rounded up to this value.
const MinReadWait = time.Millisecond

const shutdownTimeout = time.Second

// Session is one established TLS connection.
type Session struct {
	conn         *tls.Conn
	raw          net.Conn
	role         api.Role
	writeTimeout time.Duration

	shutdown    atomic.Bool
	interrupted atomic.Bool
	writing     atomic.Bool
	writeFailed atomic.Bool
	closeOnce   sync.Once
	closeErr  error
}

func newSession(tc *tls.Conn, raw net.Conn, role api.Role, writeTimeout time.Duration) *Session {
	return &Session{conn: tc, raw: raw, role: role, writeTimeout: writeTimeout}
}

// Read decrypts at most one record worth of application data into p,
// waiting up to wait for it.
func (s *Session) Read(p []byte, wait time.Duration) (int, error) {
	if wait < MinReadWait {
		wait = MinReadWait
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return 0, classify(err)
	}
	n, err := s.conn.Read(p)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		return 0, api.ErrWouldBlock
	}
	return 0, classifyRead(err)
}

// Write encrypts and sends p. It blocks until every byte is handed to the
// socket, the write timeout expires or Interrupt is called. A failed write
// leaves the session unusable.
func (s *Session) Write(p []byte) (int, error) {
	if s.shutdown.Load() || s.interrupted.Load() {
		return 0, api.ErrClosed
	}
	s.writing.Store(true)
	defer s.writing.Store(false)
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return 0, classify(err)
		}
	}
	// Interrupt may have fired between the check above and the deadline.
	if s.interrupted.Load() {
		_ = s.conn.SetWriteDeadline(time.Now())
	}
	n, err := s.conn.Write(p)
	if err != nil {
		s.writeFailed.Store(true)
		if s.interrupted.Load() {
			return n, api.ErrClosed
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, api.WrapError(api.ErrCodeTimeout, "tls write", err)
		}
		return n, classify(err)
	}
	return n, nil
}

// Interrupt makes a pending Write return api.ErrClosed at once and fails
// every later Write. Reads are unaffected. Safe from any goroutine.
func (s *Session) Interrupt() {
	s.interrupted.Store(true)
	_ = s.conn.SetWriteDeadline(time.Now())
}

// Shutdown sends close_notify once. Later writes fail with api.ErrClosed.
// After a failed or still pending write the alert is skipped: the record
// layer is either broken or stuck behind a peer that does not read.
func (s *Session) Shutdown() error {
	if s.shutdown.Swap(true) {
		return nil
	}
	if s.writeFailed.Load() || s.writing.Load() {
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(shutdownTimeout))
	return s.conn.CloseWrite()
}

// Close shuts the session down and then closes the socket. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		shutErr := s.Shutdown()
		s.closeErr = s.raw.Close()
		if s.closeErr == nil && shutErr != nil && !isClosedConn(shutErr) {
			s.closeErr = shutErr
		}
	})
	return s.closeErr
}

// IsShutdown reports whether close_notify has been sent.
func (s *Session) IsShutdown() bool { return s.shutdown.Load() }

// Role returns the side of the handshake this session played.
func (s *Session) Role() api.Role { return s.role }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr { return s.raw.RemoteAddr() }

// ConnectionState returns negotiated parameters.
func (s *Session) ConnectionState() tls.ConnectionState {
	return s.conn.ConnectionState()
}

// PeerCertificates returns the chain presented by the peer, leaf first.
func (s *Session) PeerCertificates() []*x509.Certificate {
	return s.conn.ConnectionState().PeerCertificates
}

// DescribePeer renders the peer leaf certificate, or a note when there is none.
func (s *Session) DescribePeer() string {
	certs := s.PeerCertificates()
	if len(certs) == 0 {
		return "no peer certificate"
	}
	return DescribeCertificate(certs[0])
}

func classifyRead(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return api.ErrWouldBlock
	}
	return classify(err)
}

func classify(err error) error {
	if isClosedConn(err) {
		return api.ErrClosed
	}
	return err
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
