// File: lowlevel/server/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"net"
	"os"
	"time"
)

// errPollTimeout reports that no connection arrived within the poll interval.
var errPollTimeout = errors.New("accept poll timeout")

// pollAccept waits at most wait for one connection.
func pollAccept(ln *net.TCPListener, wait time.Duration) (net.Conn, error) {
	if err := ln.SetDeadline(time.Now().Add(wait)); err != nil {
		return nil, err
	}
	conn, err := ln.AcceptTCP()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, errPollTimeout
		}
		return nil, err
	}
	return conn, nil
}
