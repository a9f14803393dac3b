// File: internal/transport/sockopt.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"
)

// DefaultKeepAlive is the idle time before TCP keepalive probes start.
const DefaultKeepAlive = 30 * time.Second

// Listen opens a tuned TCP listener on address.
func Listen(ctx context.Context, address string) (*net.TCPListener, error) {
	lc := net.ListenConfig{Control: listenControl}
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return ln.(*net.TCPListener), nil
}

// Dial connects to address with the given timeout and tunes the socket.
func Dial(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout, KeepAlive: -1}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if err := Tune(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
