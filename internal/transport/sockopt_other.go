//go:build !linux
// +build !linux

// internal/transport/sockopt_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net"
	"syscall"
)

func listenControl(_, _ string, _ syscall.RawConn) error {
	return nil
}

// Tune disables Nagle and enables keepalive when conn is a TCP socket.
func Tune(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(true); err != nil {
		return err
	}
	if err := tc.SetKeepAlive(true); err != nil {
		return err
	}
	return tc.SetKeepAlivePeriod(DefaultKeepAlive)
}
