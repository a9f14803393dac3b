// File: internal/transport/write.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"time"

	"github.com/momentics/hioload-tls/api"
)

// WriteFull writes all of b, sleeping retry between would-block results.
// It stops early when active reports false, returning api.ErrClosed, or on
// the first hard error. A nil return means every byte was accepted.
// The returned count is the number of bytes accepted either way.
func WriteFull(t api.Transport, b []byte, retry time.Duration, active func() bool) (int, error) {
	written := 0
	for written < len(b) {
		if active != nil && !active() {
			return written, api.ErrClosed
		}
		n, err := t.Write(b[written:])
		written += n
		switch {
		case err == nil:
			if n == 0 {
				// No progress without an error; treat as transient.
				time.Sleep(retry)
			}
		case errors.Is(err, api.ErrWouldBlock):
			time.Sleep(retry)
		default:
			return written, err
		}
	}
	return written, nil
}

// Interrupter is implemented by transports whose Write can block on the peer.
type Interrupter interface {
	Interrupt()
}

// Interrupt wakes a Write pending on t when t supports it. Transports with
// bounded writes need nothing and are left alone.
func Interrupt(t api.Transport) {
	if i, ok := t.(Interrupter); ok {
		i.Interrupt()
	}
}
