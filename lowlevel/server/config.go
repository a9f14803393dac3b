// File: lowlevel/server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"time"

	"github.com/momentics/hioload-tls/adapters"
	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/pool"
)

// Config holds all server-side configuration parameters.
type Config struct {
	PollInterval        time.Duration // bounded readiness wait for accept and worker reads
	RetryInterval       time.Duration // pause after would-block writes and transient accept errors
	HandshakeTimeout    time.Duration // budget for one server-side TLS handshake
	WriteTimeout        time.Duration // per TLS write bound, negative = unbounded
	ReadBufferSize      int           // largest message read in one call
	MaxConnections      int           // concurrent workers, 0 = unlimited
	ShutdownConcurrency int           // workers closed in parallel on shutdown, 1 = sequential
	WatchIdentity       bool          // reload key/cert when the files change
	ReloadDelay         time.Duration // coalescing delay for identity reloads
	Logger              *slog.Logger
	Handler             api.Handler  // nil = echo
	Pool                api.BytePool // nil = shared default pool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:        100 * time.Millisecond,
		RetryInterval:       100 * time.Millisecond,
		HandshakeTimeout:    5 * time.Second,
		WriteTimeout:        10 * time.Second,
		ReadBufferSize:      pool.DefaultBufferSize,
		MaxConnections:      0,
		ShutdownConcurrency: 16,
		ReloadDelay:         200 * time.Millisecond,
	}
}

// withDefaults fills zero fields so a partially filled Config is usable.
func (c *Config) withDefaults() *Config {
	out := *c
	def := DefaultConfig()
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.RetryInterval <= 0 {
		out.RetryInterval = def.RetryInterval
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	switch {
	case out.WriteTimeout == 0:
		out.WriteTimeout = def.WriteTimeout
	case out.WriteTimeout < 0:
		out.WriteTimeout = 0
	}
	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = def.ReadBufferSize
	}
	if out.ShutdownConcurrency <= 0 {
		out.ShutdownConcurrency = 1
	}
	if out.ReloadDelay <= 0 {
		out.ReloadDelay = def.ReloadDelay
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.DiscardHandler)
	}
	if out.Handler == nil {
		out.Handler = adapters.Echo
	}
	if out.Pool == nil {
		out.Pool = pool.Default()
	}
	return &out
}

// Option customizes server initialization.
type Option func(*Server)

// WithMiddleware wraps the connection handler; first is outermost.
func WithMiddleware(mw ...adapters.Middleware) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// WithControl shares a control adapter, e.g. between a server and its tooling.
func WithControl(c *adapters.ControlAdapter) Option {
	return func(s *Server) {
		if c != nil {
			s.control = c
		}
	}
}
