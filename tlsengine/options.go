// File: tlsengine/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tlsengine

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Option configures a Context.
type Option func(*options) error

type options struct {
	rootCAs            *x509.CertPool
	serverName         string
	insecureSkipVerify bool
	minVersion         uint16
	writeTimeout       time.Duration
	log                *slog.Logger
}

func defaultOptions() options {
	return options{
		minVersion: tls.VersionTLS12,
		log:        slog.New(slog.DiscardHandler),
	}
}

// WithRootCAFile trusts the PEM certificates in path instead of the system roots.
func WithRootCAFile(path string) Option {
	return func(o *options) error {
		pemBytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read root CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return fmt.Errorf("no certificates found in %s", path)
		}
		o.rootCAs = pool
		return nil
	}
}

// WithRootCAs trusts the given pool instead of the system roots.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(o *options) error {
		o.rootCAs = pool
		return nil
	}
}

// WithServerName sets the name verified against the server certificate.
func WithServerName(name string) Option {
	return func(o *options) error {
		o.serverName = name
		return nil
	}
}

// WithInsecureSkipVerify disables server certificate verification.
func WithInsecureSkipVerify(skip bool) Option {
	return func(o *options) error {
		o.insecureSkipVerify = skip
		return nil
	}
}

// WithMinVersion sets the lowest accepted protocol version.
func WithMinVersion(v uint16) Option {
	return func(o *options) error {
		o.minVersion = v
		return nil
	}
}

// WithWriteTimeout bounds each record write. Zero means no bound.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) error {
		o.writeTimeout = d
		return nil
	}
}

// WithLogger sets the logger used for identity and handshake events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) error {
		if l != nil {
			o.log = l
		}
		return nil
	}
}
