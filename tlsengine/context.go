// File: tlsengine/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tlsengine

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/awnumar/memguard"

	"github.com/momentics/hioload-tls/api"
)

var errNoIdentity = errors.New("no identity configured")

// Context holds the per-role TLS configuration shared by all sessions of
// one server or client. The identity may be replaced while sessions exist;
// new handshakes pick up the new certificate.
type Context struct {
	role     api.Role
	opts     options
	identity atomic.Pointer[tls.Certificate]
	closed   atomic.Bool
	cfgOnce  sync.Once
	cfg      *tls.Config
	log      *slog.Logger
}

// NewContext creates a context for the given role.
func NewContext(role api.Role, opts ...Option) (*Context, error) {
	if role != api.RoleServer && role != api.RoleClient {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "unknown tls role").WithContext("role", int(role))
	}
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, api.WrapError(api.ErrCodeSetup, "tls context option", err)
		}
	}
	return &Context{role: role, opts: o, log: o.log}, nil
}

// Role returns the handshake direction of the context.
func (c *Context) Role() api.Role { return c.role }

// ConfigureIdentity loads the PEM key and certificate presented by a server.
// The key bytes are held in locked memory while parsing and wiped afterwards.
// On failure the previous identity, if any, stays active.
func (c *Context) ConfigureIdentity(keyPath, certPath string) error {
	if c.role != api.RoleServer {
		return api.WrapError(api.ErrCodeNotSupported, "identity on client context", api.ErrNotSupported)
	}
	if c.closed.Load() {
		return api.ErrClosed
	}
	cert, err := loadIdentity(keyPath, certPath)
	if err != nil {
		return api.WrapError(api.ErrCodeSetup, "load identity", err).
			WithContext("key", keyPath).
			WithContext("cert", certPath)
	}
	c.identity.Store(cert)
	c.log.Info("tls identity loaded", "cert", certPath, "subject", subjectOf(cert))
	return nil
}

func loadIdentity(keyPath, certPath string) (*tls.Certificate, error) {
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	// NewBufferFromBytes wipes keyPEM.
	locked := memguard.NewBufferFromBytes(keyPEM)
	defer locked.Destroy()

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(certPEM, locked.Bytes())
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// HasIdentity reports whether a server identity is loaded.
func (c *Context) HasIdentity() bool {
	return c.identity.Load() != nil
}

// Certificate returns the currently loaded identity, or nil.
func (c *Context) Certificate() *tls.Certificate {
	return c.identity.Load()
}

func (c *Context) config() *tls.Config {
	c.cfgOnce.Do(func() {
		cfg := &tls.Config{MinVersion: c.opts.minVersion}
		switch c.role {
		case api.RoleServer:
			cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
				if cert := c.identity.Load(); cert != nil {
					return cert, nil
				}
				return nil, errNoIdentity
			}
		case api.RoleClient:
			cfg.RootCAs = c.opts.rootCAs
			cfg.ServerName = c.opts.serverName
			cfg.InsecureSkipVerify = c.opts.insecureSkipVerify
		}
		c.cfg = cfg
	})
	return c.cfg
}

// Accept runs the server side handshake over conn. The handshake is retried
// internally until it completes, fails, or ctx is done. On error the caller
// still owns conn and must close it.
func (c *Context) Accept(ctx context.Context, conn net.Conn) (*Session, error) {
	if c.role != api.RoleServer {
		return nil, api.WrapError(api.ErrCodeNotSupported, "accept on client context", api.ErrNotSupported)
	}
	if c.closed.Load() {
		return nil, api.ErrClosed
	}
	if !c.HasIdentity() {
		return nil, api.WrapError(api.ErrCodeSetup, "accept", errNoIdentity)
	}
	return c.handshake(ctx, tls.Server(conn, c.config()), conn)
}

// Connect runs the client side handshake over conn. Same ownership rules as Accept.
func (c *Context) Connect(ctx context.Context, conn net.Conn) (*Session, error) {
	if c.role != api.RoleClient {
		return nil, api.WrapError(api.ErrCodeNotSupported, "connect on server context", api.ErrNotSupported)
	}
	if c.closed.Load() {
		return nil, api.ErrClosed
	}
	return c.handshake(ctx, tls.Client(conn, c.config()), conn)
}

func (c *Context) handshake(ctx context.Context, tc *tls.Conn, raw net.Conn) (*Session, error) {
	if err := tc.HandshakeContext(ctx); err != nil {
		code := api.ErrCodeHandshake
		if ctx.Err() != nil {
			code = api.ErrCodeTimeout
		}
		return nil, api.WrapError(code, c.role.String()+" handshake", err).
			WithContext("remote", raw.RemoteAddr().String())
	}
	return newSession(tc, raw, c.role, c.opts.writeTimeout), nil
}

// Close releases the identity. Later handshakes fail with api.ErrClosed;
// established sessions are unaffected.
func (c *Context) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.identity.Store(nil)
}

func subjectOf(cert *tls.Certificate) string {
	if cert == nil || cert.Leaf == nil {
		return ""
	}
	return cert.Leaf.Subject.String()
}
