// File: lowlevel/server/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-tls/adapters"
	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/internal/transport"
	"github.com/momentics/hioload-tls/pool"
)

// WorkerOptions configures a Worker. Zero values take server defaults.
type WorkerOptions struct {
	ID            uint64
	PollInterval  time.Duration
	RetryInterval time.Duration
	BufferSize    int
	Pool          api.BytePool
	Handler       api.Handler
	Logger        *slog.Logger
	Counter       api.Counter
	// OnExit runs on the worker goroutine after the loop ends.
	OnExit func(*Worker)
}

// Worker serves one established connection on its own goroutine:
// read a message, hand it to the handler, write the reply back.
type Worker struct {
	id   uint64
	tr   api.Transport
	opts WorkerOptions
	log  *slog.Logger

	enabled atomic.Bool // intent; cleared first on Close
	running atomic.Bool // loop alive; cleared by the goroutine on exit

	mu        sync.Mutex
	started   bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewWorker takes ownership of tr.
func NewWorker(tr api.Transport, opts WorkerOptions) *Worker {
	def := DefaultConfig()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = def.RetryInterval
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.ReadBufferSize
	}
	if opts.Pool == nil {
		opts.Pool = pool.Default()
	}
	if opts.Handler == nil {
		opts.Handler = adapters.Echo
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	log := opts.Logger.With("worker", opts.ID)
	if tr != nil && tr.RemoteAddr() != nil {
		log = log.With("remote", tr.RemoteAddr().String())
	}
	return &Worker{id: opts.ID, tr: tr, opts: opts, log: log}
}

// ID returns the identifier assigned by the server.
func (w *Worker) ID() uint64 { return w.id }

// Start launches the processing goroutine.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tr == nil || w.tr.Closed() {
		return api.ErrInvalidHandle
	}
	if w.started {
		return api.ErrAlreadyOpen
	}
	w.started = true
	w.done = make(chan struct{})
	w.enabled.Store(true)
	w.running.Store(true)
	go w.run(w.done)
	return nil
}

// IsRunning reports whether the worker is enabled or its goroutine is still alive.
func (w *Worker) IsRunning() bool {
	return w.enabled.Load() || w.running.Load()
}

// Finished reports whether the goroutine was started and has exited.
func (w *Worker) Finished() bool {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	return started && !w.running.Load()
}

// Close stops the loop, waits for it and releases the connection. A reply
// stuck behind a peer that stopped reading is abandoned. Idempotent and safe
// from any goroutine.
func (w *Worker) Close() {
	w.enabled.Store(false)
	if w.tr != nil {
		transport.Interrupt(w.tr)
	}
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
	w.closeTransport()
	w.running.Store(false)
}

func (w *Worker) closeTransport() {
	if w.tr == nil {
		return
	}
	w.closeOnce.Do(func() {
		if err := w.tr.Close(); err != nil {
			w.log.Debug("close connection", "err", err)
		}
	})
}

func (w *Worker) count(key string, delta int64) {
	if w.opts.Counter != nil && delta != 0 {
		w.opts.Counter.AddMetric(key, delta)
	}
}

func (w *Worker) run(done chan struct{}) {
	defer func() {
		w.closeTransport()
		w.running.Store(false)
		if w.opts.OnExit != nil {
			w.opts.OnExit(w)
		}
		close(done)
	}()

	buf := w.opts.Pool.Acquire(w.opts.BufferSize)
	defer w.opts.Pool.Release(buf)

	for w.enabled.Load() {
		n, err := w.tr.Read(buf, w.opts.PollInterval)
		switch {
		case errors.Is(err, api.ErrWouldBlock):
			continue
		case errors.Is(err, io.EOF):
			w.log.Debug("peer closed connection")
			return
		case err != nil:
			if w.enabled.Load() {
				w.log.Warn("read failed", "err", err)
			}
			return
		}
		w.count("worker.bytes_in", int64(n))

		reply, err := w.handle(buf[:n])
		if err != nil {
			w.log.Warn("handler failed", "err", err)
			return
		}
		if len(reply) == 0 {
			continue
		}
		written, err := transport.WriteFull(w.tr, reply, w.opts.RetryInterval, w.enabled.Load)
		w.count("worker.bytes_out", int64(written))
		if err != nil {
			if w.enabled.Load() {
				w.log.Warn("write failed", "err", err, "written", written, "bytes", len(reply))
			}
			return
		}
	}
}

func (w *Worker) handle(msg []byte) (reply []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.opts.Handler.Handle(msg)
}
