//go:build linux
// +build linux

// internal/transport/rawio_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw non-blocking read/write on the connection descriptor. The errno is
// captured inside the callback that issued the syscall, so it always belongs
// to that call.

package transport

import (
	"io"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tls/api"
)

func (p *Plain) rawRead(b []byte, wait time.Duration) (int, error) {
	var deadline time.Time
	if wait > 0 {
		deadline = time.Now().Add(wait)
	}
	// A stale past deadline would make the runtime refuse the attempt.
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return 0, classifyNet(err)
	}

	var (
		n     int
		errno error
	)
	err := p.raw.Read(func(fd uintptr) bool {
		n, errno = unix.Read(int(fd), b)
		switch errno {
		case unix.EINTR:
			return false
		case unix.EAGAIN:
			// Park on the poller only when the caller allows waiting.
			return wait <= 0
		}
		return true
	})
	if err != nil {
		return 0, classifyNet(err)
	}
	switch {
	case errno == unix.EAGAIN:
		return 0, api.ErrWouldBlock
	case errno != nil:
		return 0, classifyErrno("read", errno)
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

func (p *Plain) rawWrite(b []byte) (int, error) {
	var (
		n     int
		errno error
	)
	err := p.raw.Write(func(fd uintptr) bool {
		n, errno = unix.Write(int(fd), b)
		return errno != unix.EINTR
	})
	if err != nil {
		return 0, classifyNet(err)
	}
	if errno != nil {
		if errno == unix.EAGAIN {
			return 0, api.ErrWouldBlock
		}
		return 0, classifyErrno("write", errno)
	}
	return n, nil
}

// classifyErrno turns a syscall errno into a structured i/o error.
func classifyErrno(op string, errno error) error {
	e := api.WrapError(api.ErrCodeIO, op, errno)
	if en, ok := errno.(unix.Errno); ok {
		e.WithContext("errno", int(en))
	}
	return e
}
