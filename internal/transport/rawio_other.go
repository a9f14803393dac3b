//go:build !linux
// +build !linux

// internal/transport/rawio_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable fallback: deadline bounded reads and writes through net.Conn.

package transport

import "time"

func (p *Plain) rawRead(b []byte, wait time.Duration) (int, error) {
	return p.deadlineRead(b, wait)
}

func (p *Plain) rawWrite(b []byte) (int, error) {
	return p.deadlineWrite(b)
}
