// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the per-connection transport abstraction shared by workers and clients.

package api

import (
	"net"
	"time"
)

// Transport is one established connection, plaintext or TLS.
//
// Read and Write are tri-state: (n > 0, nil) on progress, (0, ErrWouldBlock)
// when nothing can be done right now, (0, err) on failure. io.EOF reports an
// orderly close by the peer. A transport is owned by a single goroutine;
// only Close may be called from elsewhere.
type Transport interface {
	// Read performs one read call. wait bounds how long it may suspend;
	// wait <= 0 makes a single non-blocking attempt. The returned bytes are
	// exactly what one underlying read produced.
	Read(p []byte, wait time.Duration) (int, error)

	// Write performs one write attempt and may accept fewer bytes than len(p).
	Write(p []byte) (int, error)

	// Close releases the connection. TLS sessions are shut down before
	// the socket is closed. Idempotent.
	Close() error

	// Closed reports whether Close has been called.
	Closed() bool

	// Secure reports whether traffic is carried by a TLS session.
	Secure() bool

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr
}
