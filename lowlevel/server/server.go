// File: lowlevel/server/server.go
// Package server provides the connection-per-worker TCP/TLS server:
// a non-blocking accept loop on its own goroutine, one Worker per accepted
// connection and a graceful shutdown that joins every worker.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-tls/adapters"
	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/internal/transport"
	"github.com/momentics/hioload-tls/pool"
	"github.com/momentics/hioload-tls/tlsengine"
)

// lifetime holds what one successful Open acquired. The accept goroutine
// releases all of it before it exits.
type lifetime struct {
	ln      *net.TCPListener
	tlsCtx  *tlsengine.Context
	watcher *tlsengine.IdentityWatcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// Server accepts connections and hands each one to a Worker.
type Server struct {
	cfg        *Config
	log        *slog.Logger
	control    *adapters.ControlAdapter
	middleware []adapters.Middleware
	handler    api.Handler

	mu   sync.Mutex // guards life; never held across joins
	life *lifetime

	enabled atomic.Bool // intent to serve; cleared first on Close
	running atomic.Bool // accept goroutine alive; cleared by it on exit

	active     atomic.Int64
	registered atomic.Int64
	nextID     atomic.Uint64
}

// NewServer constructs a Server with the given Config and options.
// A nil Config means DefaultConfig().
func NewServer(cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:     cfg.withDefaults(),
		control: adapters.NewControlAdapter(),
	}
	s.log = s.cfg.Logger
	for _, opt := range opts {
		opt(s)
	}
	s.handler = adapters.Chain(s.cfg.Handler, s.middleware...)
	s.registerProbes()
	return s
}

func (s *Server) registerProbes() {
	s.control.RegisterDebugProbe("server.workers.active", func() any { return s.active.Load() })
	s.control.RegisterDebugProbe("server.workers.registered", func() any { return s.registered.Load() })
	if bp, ok := s.cfg.Pool.(*pool.BytePool); ok {
		s.control.RegisterDebugProbe("pool.in_use", func() any { return bp.Stats().InUse })
	}
}

// Open binds listen, loads id when it is non-zero and starts accepting on
// a new goroutine. It fails with api.ErrAlreadyOpen while the server is open
// or still shutting down. Any resource acquired before a failure is released.
func (s *Server) Open(listen api.Endpoint, id api.Identity) error {
	published, err := s.open(listen, id)
	if err != nil {
		return err
	}
	// Reload hooks may call back into the server, so publish unlocked.
	_ = s.control.SetConfig(published)
	return nil
}

func (s *Server) open(listen api.Endpoint, id api.Identity) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IsOpen() {
		return nil, api.ErrAlreadyOpen
	}

	var tlsCtx *tlsengine.Context
	if !id.IsZero() {
		ctx, err := tlsengine.NewContext(api.RoleServer,
			tlsengine.WithLogger(s.log),
			tlsengine.WithWriteTimeout(s.cfg.WriteTimeout))
		if err != nil {
			return nil, err
		}
		if err := ctx.ConfigureIdentity(id.KeyFile, id.CertFile); err != nil {
			ctx.Close()
			return nil, err
		}
		tlsCtx = ctx
	}

	ln, err := transport.Listen(context.Background(), listen.String())
	if err != nil {
		if tlsCtx != nil {
			tlsCtx.Close()
		}
		return nil, api.WrapError(api.ErrCodeSetup, "listen", err).WithContext("listen", listen.String())
	}

	var watcher *tlsengine.IdentityWatcher
	if tlsCtx != nil && s.cfg.WatchIdentity {
		watcher, err = tlsCtx.WatchIdentity(id.KeyFile, id.CertFile, s.cfg.ReloadDelay, s.onIdentityReload)
		if err != nil {
			ln.Close()
			tlsCtx.Close()
			return nil, api.WrapError(api.ErrCodeSetup, "watch identity", err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	l := &lifetime{ln: ln, tlsCtx: tlsCtx, watcher: watcher, cancel: cancel, done: make(chan struct{})}
	s.life = l
	s.enabled.Store(true)
	s.running.Store(true)

	s.log.Info("server listening", "listen", ln.Addr().String(), "tls", tlsCtx != nil)

	go s.run(loopCtx, l)
	return map[string]any{
		"server.listen_addr":       ln.Addr().String(),
		"server.tls":               tlsCtx != nil,
		"server.poll_interval":     s.cfg.PollInterval.String(),
		"server.handshake_timeout": s.cfg.HandshakeTimeout.String(),
		"server.write_timeout":     s.cfg.WriteTimeout.String(),
		"server.max_connections":   s.cfg.MaxConnections,
	}, nil
}

// IsOpen reports whether the server is enabled or its accept loop is still alive.
func (s *Server) IsOpen() bool {
	return s.enabled.Load() || s.running.Load()
}

// Close stops accepting, aborts an in-flight handshake and waits until every
// worker is closed and the listening socket is released. Concurrent callers
// wait for the same shutdown. Closing a closed server is a no-op.
func (s *Server) Close() {
	s.mu.Lock()
	l := s.life
	wasEnabled := s.enabled.Swap(false)
	s.mu.Unlock()
	if l == nil {
		return
	}
	if wasEnabled {
		l.cancel()
	}
	<-l.done
}

// Addr returns the bound address while the server is open.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.life == nil || !s.running.Load() {
		return nil
	}
	return s.life.ln.Addr()
}

// ActiveWorkers returns the number of workers whose goroutine is alive.
func (s *Server) ActiveWorkers() int {
	return int(s.active.Load())
}

// GetControl returns the control adapter holding config, counters and probes.
func (s *Server) GetControl() api.Control {
	return s.control
}

func (s *Server) onIdentityReload(err error) {
	if err != nil {
		s.control.AddMetric("tls.identity_reload_failures", 1)
		return
	}
	s.control.AddMetric("tls.identity_reloads", 1)
	_ = s.control.SetConfig(map[string]any{"server.identity_loaded_at": time.Now().UTC().Format(time.RFC3339Nano)})
}

func (s *Server) workerOptions() WorkerOptions {
	return WorkerOptions{
		ID:            s.nextID.Add(1),
		PollInterval:  s.cfg.PollInterval,
		RetryInterval: s.cfg.RetryInterval,
		BufferSize:    s.cfg.ReadBufferSize,
		Pool:          s.cfg.Pool,
		Handler:       s.handler,
		Logger:        s.log,
		Counter:       s.control,
		OnExit: func(*Worker) {
			s.active.Add(-1)
		},
	}
}
