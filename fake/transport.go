// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the transport and pool contracts.

package fake

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-tls/api"
)

type readStep struct {
	data []byte
	err  error
}

// Transport is a scripted implementation of api.Transport for testing.
// Each queued chunk is returned by exactly one Read call.
type Transport struct {
	mu          sync.Mutex
	reads       []readStep
	notify      chan struct{}
	eof         bool
	writes      [][]byte
	maxWrite    int
	blockWrites int
	holdWrites  bool
	held        int
	release     chan struct{}
	interrupts  int
	writeErr    error
	closeErr    error
	closed      bool
	closeCount  int
	secure      bool
	remote      net.Addr
}

var _ api.Transport = (*Transport)(nil)

// NewTransport creates an open fake transport with nothing to read.
func NewTransport() *Transport {
	return &Transport{
		notify: make(chan struct{}, 1),
		remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000},
	}
}

// Read implements api.Transport.Read.
func (t *Transport) Read(p []byte, wait time.Duration) (int, error) {
	t.mu.Lock()
	if n, ok, err := t.popLocked(p); ok {
		t.mu.Unlock()
		return n, err
	}
	t.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-t.notify:
		case <-timer.C:
		}
		timer.Stop()
		t.mu.Lock()
		defer t.mu.Unlock()
		if n, ok, err := t.popLocked(p); ok {
			return n, err
		}
	}
	return 0, api.ErrWouldBlock
}

func (t *Transport) popLocked(p []byte) (int, bool, error) {
	if t.closed {
		return 0, true, api.ErrClosed
	}
	if len(t.reads) == 0 {
		if t.eof {
			return 0, true, io.EOF
		}
		return 0, false, nil
	}
	step := t.reads[0]
	if step.err != nil {
		t.reads = t.reads[1:]
		return 0, true, step.err
	}
	n := copy(p, step.data)
	if n < len(step.data) {
		t.reads[0].data = step.data[n:]
	} else {
		t.reads = t.reads[1:]
	}
	return n, true, nil
}

// Write implements api.Transport.Write.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, api.ErrClosed
	}
	if t.holdWrites {
		release := t.release
		t.held++
		t.mu.Unlock()
		<-release
		t.mu.Lock()
		t.held--
		return 0, api.ErrClosed
	}
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	if t.blockWrites > 0 {
		t.blockWrites--
		return 0, api.ErrWouldBlock
	}
	n := len(p)
	if t.maxWrite > 0 && n > t.maxWrite {
		n = t.maxWrite
	}
	chunk := make([]byte, n)
	copy(chunk, p[:n])
	t.writes = append(t.writes, chunk)
	return n, nil
}

// Close implements api.Transport.Close.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCount++
	t.closed = true
	t.wakeLocked()
	t.releaseLocked()
	return t.closeErr
}

// Interrupt releases writes held by HoldWrites; they fail with api.ErrClosed.
func (t *Transport) Interrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interrupts++
	t.releaseLocked()
}

func (t *Transport) releaseLocked() {
	if t.holdWrites {
		t.holdWrites = false
		close(t.release)
	}
}

// Closed implements api.Transport.Closed.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Secure implements api.Transport.Secure.
func (t *Transport) Secure() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.secure
}

// RemoteAddr implements api.Transport.RemoteAddr.
func (t *Transport) RemoteAddr() net.Addr { return t.remote }

func (t *Transport) wakeLocked() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// AddRecvData queues one chunk to be returned by a single Read.
func (t *Transport) AddRecvData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	t.reads = append(t.reads, readStep{data: dataCopy})
	t.wakeLocked()
}

// AddRecvError queues an error to be returned by a single Read.
func (t *Transport) AddRecvError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads = append(t.reads, readStep{err: err})
	t.wakeLocked()
}

// CloseRemote makes Read return io.EOF once queued chunks are drained.
func (t *Transport) CloseRemote() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eof = true
	t.wakeLocked()
}

// SetWriteLimit caps the bytes accepted by each Write call. Zero removes the cap.
func (t *Transport) SetWriteLimit(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxWrite = n
}

// BlockWrites makes the next n Write calls report api.ErrWouldBlock.
func (t *Transport) BlockWrites(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blockWrites = n
}

// HoldWrites makes Write block like a socket whose peer stopped reading,
// until Interrupt or Close is called.
func (t *Transport) HoldWrites() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.holdWrites {
		t.holdWrites = true
		t.release = make(chan struct{})
	}
}

// HeldWrites returns how many Write calls are blocked right now.
func (t *Transport) HeldWrites() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.held
}

// InterruptCount returns how many times Interrupt was called.
func (t *Transport) InterruptCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interrupts
}

// SetSendError configures the transport to fail every Write with err.
func (t *Transport) SetSendError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// SetCloseError configures the transport to return an error on Close.
func (t *Transport) SetCloseError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeErr = err
}

// SetSecure marks the transport as TLS-backed.
func (t *Transport) SetSecure(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.secure = v
}

// GetSentData returns the chunks accepted by each successful Write call.
func (t *Transport) GetSentData() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	sent := make([][]byte, len(t.writes))
	copy(sent, t.writes)
	return sent
}

// Sent returns all written bytes concatenated.
func (t *Transport) Sent() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []byte
	for _, w := range t.writes {
		out = append(out, w...)
	}
	return out
}

// ClearSentData clears the recorded writes.
func (t *Transport) ClearSentData() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = t.writes[:0]
}

// CloseCount returns how many times Close was called.
func (t *Transport) CloseCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCount
}
