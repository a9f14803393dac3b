// Package client provides the outbound counterpart of the hioload-tls server:
// one owned connection, optional TLS, non-blocking TryRead and polling Read
// variants and a full-write Write.
//
// A Client is driven by a single owner goroutine. Close may be called from
// any goroutine and makes a pending Read return api.ErrClosed.
package client

import (
	"context"
	"crypto/x509"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-tls/adapters"
	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/internal/transport"
	"github.com/momentics/hioload-tls/tlsengine"
)

// Client owns one outbound connection.
type Client struct {
	cfg     *Config
	log     *slog.Logger
	control *adapters.ControlAdapter

	mu      sync.Mutex // guards the fields below; never held across I/O
	tr      api.Transport
	sess    *tlsengine.Session
	tlsCtx  *tlsengine.Context
	buf     []byte
	opened  bool
	enabled atomic.Bool
}

// NewClient creates a closed client. A nil Config means DefaultConfig().
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Client{cfg: cfg.withDefaults(), control: adapters.NewControlAdapter()}
	c.log = c.cfg.Logger.With("endpoint", c.cfg.Endpoint.String())
	return c
}

func (c *Client) tlsOptions() []tlsengine.Option {
	opts := []tlsengine.Option{
		tlsengine.WithServerName(c.cfg.serverName()),
		tlsengine.WithInsecureSkipVerify(c.cfg.InsecureSkipVerify),
		tlsengine.WithWriteTimeout(c.cfg.WriteTimeout),
		tlsengine.WithLogger(c.log),
	}
	if c.cfg.RootCAFile != "" {
		opts = append(opts, tlsengine.WithRootCAFile(c.cfg.RootCAFile))
	}
	return opts
}

// Open connects to the configured endpoint and, when TLS is enabled,
// completes the client handshake. It fails with api.ErrAlreadyOpen on an
// open client. Every resource acquired before a failure is released.
func (c *Client) Open() error {
	return c.OpenContext(context.Background())
}

// OpenContext is Open with a caller supplied context bounding dial and handshake.
func (c *Client) OpenContext(ctx context.Context) error {
	if err := c.open(ctx); err != nil {
		return err
	}
	// Published unlocked; reload hooks may call back into the client.
	_ = c.control.SetConfig(map[string]any{
		"client.endpoint": c.cfg.Endpoint.String(),
		"client.tls":      c.cfg.TLS,
	})
	return nil
}

func (c *Client) open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled.Load() {
		return api.ErrAlreadyOpen
	}

	var tlsCtx *tlsengine.Context
	if c.cfg.TLS {
		var err error
		if tlsCtx, err = tlsengine.NewContext(api.RoleClient, c.tlsOptions()...); err != nil {
			return err
		}
	}

	addr := c.cfg.Endpoint.String()
	conn, err := transport.Dial(ctx, addr, c.cfg.ConnectTimeout)
	if err != nil {
		if tlsCtx != nil {
			tlsCtx.Close()
		}
		return api.WrapError(api.ErrCodeSetup, "connect", err).WithContext("endpoint", addr)
	}

	var (
		tr   api.Transport
		sess *tlsengine.Session
	)
	if tlsCtx != nil {
		hctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		sess, err = tlsCtx.Connect(hctx, conn)
		cancel()
		if err != nil {
			_ = conn.Close()
			tlsCtx.Close()
			return err
		}
		tr = transport.NewSecure(sess)
		c.log.Info("tls session established", "peer", sess.DescribePeer())
	} else {
		tr = transport.NewPlain(conn)
	}

	c.tr, c.sess, c.tlsCtx = tr, sess, tlsCtx
	c.buf = make([]byte, c.cfg.ReadBufferSize)
	c.opened = true
	c.enabled.Store(true)
	return nil
}

// IsOpen reports whether the client holds an open connection.
func (c *Client) IsOpen() bool {
	return c.enabled.Load()
}

func (c *Client) current() (api.Transport, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled.Load() || c.tr == nil {
		if c.opened {
			return nil, nil, api.ErrClosed
		}
		return nil, nil, api.ErrNotOpen
	}
	return c.tr, c.buf, nil
}

// readOnce performs one bounded read and copies the result out of the
// shared buffer. (nil, nil) means nothing arrived within wait.
func (c *Client) readOnce(wait time.Duration) ([]byte, error) {
	tr, buf, err := c.current()
	if err != nil {
		return nil, err
	}
	n, err := tr.Read(buf, wait)
	switch {
	case errors.Is(err, api.ErrWouldBlock):
		return nil, nil
	case err != nil:
		if !c.enabled.Load() {
			return nil, api.ErrClosed
		}
		return nil, err
	}
	c.control.AddMetric("client.bytes_in", int64(n))
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}

// TryRead makes a single non-blocking attempt. It returns (nil, nil) when
// no data is available now, the bytes of one read call on success, and an
// error when the connection failed or was closed. io.EOF reports an orderly
// close by the server.
func (c *Client) TryRead() ([]byte, error) {
	return c.readOnce(0)
}

// TryReadString is TryRead returning a string; "" with a nil error means no data.
func (c *Client) TryReadString() (string, error) {
	b, err := c.TryRead()
	return string(b), err
}

// Read polls until data arrives, the connection fails, or the client is closed.
func (c *Client) Read() ([]byte, error) {
	return c.ReadContext(context.Background())
}

// ReadContext is Read that also gives up when ctx is done.
func (c *Client) ReadContext(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := c.readOnce(c.cfg.RetryInterval)
		if err != nil || data != nil {
			return data, err
		}
	}
}

// ReadString is Read returning a string.
func (c *Client) ReadString() (string, error) {
	b, err := c.Read()
	return string(b), err
}

// Write sends all of p, retrying would-block conditions. It fails if any
// other error occurs or the client is closed before every byte is accepted.
func (c *Client) Write(p []byte) error {
	tr, _, err := c.current()
	if err != nil {
		return err
	}
	n, err := transport.WriteFull(tr, p, c.cfg.RetryInterval, c.enabled.Load)
	c.control.AddMetric("client.bytes_out", int64(n))
	if err != nil && !c.enabled.Load() {
		return api.ErrClosed
	}
	return err
}

// WriteString is Write for strings.
func (c *Client) WriteString(s string) error {
	return c.Write([]byte(s))
}

// Close shuts down the TLS session, if any, and then the socket. A Write
// blocked on a server that stopped reading returns api.ErrClosed. Idempotent
// and safe from any goroutine.
func (c *Client) Close() {
	c.mu.Lock()
	c.enabled.Store(false)
	tr, tlsCtx := c.tr, c.tlsCtx
	c.tr, c.sess, c.tlsCtx = nil, nil, nil
	c.mu.Unlock()

	if tr != nil {
		transport.Interrupt(tr)
		if err := tr.Close(); err != nil {
			c.log.Debug("close connection", "err", err)
		}
	}
	if tlsCtx != nil {
		tlsCtx.Close()
	}
}

// Secure reports whether the open connection is carried by TLS.
func (c *Client) Secure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// RemoteAddr returns the server address of the open connection.
func (c *Client) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil {
		return nil
	}
	return c.tr.RemoteAddr()
}

// PeerCertificates returns the server chain of an open TLS connection.
func (c *Client) PeerCertificates() []*x509.Certificate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	return c.sess.PeerCertificates()
}

// DescribePeer renders subject, issuer and validity of the server certificate.
func (c *Client) DescribePeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return "no peer certificate"
	}
	return c.sess.DescribePeer()
}

// GetControl returns the control adapter holding client counters.
func (c *Client) GetControl() api.Control {
	return c.control
}
