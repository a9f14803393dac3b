// File: lowlevel/client/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"log/slog"
	"time"

	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/pool"
)

// Config holds client parameters.
type Config struct {
	Endpoint           api.Endpoint  // target, default 127.0.0.1:5044
	TLS                bool          // run a client handshake after connecting
	ServerName         string        // name verified against the server certificate, default Endpoint.Address
	RootCAFile         string        // PEM bundle to trust instead of the system roots
	InsecureSkipVerify bool          // accept any server certificate
	ConnectTimeout     time.Duration // dial bound
	HandshakeTimeout   time.Duration // TLS handshake budget
	RetryInterval      time.Duration // sleep between would-block attempts and read polls
	WriteTimeout       time.Duration // per TLS write bound, negative = unbounded
	ReadBufferSize     int           // largest message returned by one read
	Logger             *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:         api.Endpoint{Address: "127.0.0.1", Port: api.DefaultPort},
		ConnectTimeout:   10 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		RetryInterval:    100 * time.Millisecond,
		WriteTimeout:     10 * time.Second,
		ReadBufferSize:   pool.DefaultBufferSize,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	def := DefaultConfig()
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = def.ConnectTimeout
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.RetryInterval <= 0 {
		out.RetryInterval = def.RetryInterval
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
	if out.Logger == nil {
		out.Logger = slog.New(slog.DiscardHandler)
	}
	return &out
}

func (c *Config) serverName() string {
	switch {
	case c.ServerName != "":
		return c.ServerName
	case c.Endpoint.Address != "":
		return c.Endpoint.Address
	default:
		return "localhost"
	}
}
