// File: lowlevel/server/run.go
// Accept loop, per-connection setup and graceful teardown.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/internal/transport"
)

// reapEvery bounds registry growth under constant load, when poll timeouts are rare.
const reapEvery = 64

func (s *Server) run(ctx context.Context, l *lifetime) {
	reg := newRegistry()
	defer func() {
		s.closeWorkers(reg)
		if l.watcher != nil {
			_ = l.watcher.Close()
		}
		if l.tlsCtx != nil {
			l.tlsCtx.Close()
		}
		if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Debug("close listener", "err", err)
		}
		l.cancel()
		s.running.Store(false)
		s.log.Info("server stopped")
		close(l.done)
	}()

	accepted := 0
	for s.enabled.Load() {
		conn, err := pollAccept(l.ln, s.cfg.PollInterval)
		switch {
		case errors.Is(err, errPollTimeout):
			s.reap(reg)
			continue
		case errors.Is(err, net.ErrClosed):
			s.log.Error("listener closed unexpectedly")
			return
		case err != nil:
			s.control.AddMetric("server.accept_errors", 1)
			s.log.Warn("accept failed", "err", err)
			time.Sleep(s.cfg.RetryInterval)
			continue
		}

		s.serveConn(ctx, l, reg, conn)
		if accepted++; accepted%reapEvery == 0 {
			s.reap(reg)
		}
	}
}

func (s *Server) reap(reg *registry) {
	if n := reg.reap(); n > 0 {
		s.registered.Add(-int64(n))
	}
}

// serveConn turns an accepted socket into a running worker. Failures close
// only this connection.
func (s *Server) serveConn(ctx context.Context, l *lifetime, reg *registry, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	if limit := s.cfg.MaxConnections; limit > 0 && s.active.Load() >= int64(limit) {
		s.control.AddMetric("server.rejected", 1)
		s.log.Warn("connection limit reached, rejecting", "remote", remote, "limit", limit)
		_ = conn.Close()
		return
	}
	if err := transport.Tune(conn); err != nil {
		s.log.Debug("tune socket", "remote", remote, "err", err)
	}

	var tr api.Transport
	if l.tlsCtx != nil {
		hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		sess, err := l.tlsCtx.Accept(hctx, conn)
		cancel()
		if err != nil {
			s.control.AddMetric("server.handshake_failures", 1)
			s.log.Warn("tls handshake failed", "remote", remote, "err", err)
			_ = conn.Close()
			return
		}
		tr = transport.NewSecure(sess)
	} else {
		tr = transport.NewPlain(conn)
	}

	s.active.Add(1)
	w := NewWorker(tr, s.workerOptions())
	if err := w.Start(); err != nil {
		s.active.Add(-1)
		s.log.Warn("start worker", "remote", remote, "err", err)
		_ = tr.Close()
		return
	}
	reg.add(w)
	s.registered.Add(1)
	s.control.AddMetric("server.accepted", 1)
	s.control.AddMetric("server.workers.started", 1)
	s.log.Debug("connection accepted", "remote", remote, "worker", w.ID(), "tls", tr.Secure())
}

// closeWorkers closes and joins every registered worker, at most
// ShutdownConcurrency at a time.
func (s *Server) closeWorkers(reg *registry) {
	workers := reg.drain()
	s.registered.Add(-int64(len(workers)))
	if len(workers) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(s.cfg.ShutdownConcurrency)
	for _, w := range workers {
		g.Go(func() error {
			w.Close()
			return nil
		})
	}
	_ = g.Wait()
	s.log.Debug("workers closed", "count", len(workers))
}
