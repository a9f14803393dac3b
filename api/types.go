// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

import (
	"net"
	"strconv"
)

// DefaultPort is the port used when nothing else is configured.
const DefaultPort uint16 = 5044

// Role selects the TLS handshake direction of a context.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// Endpoint is a listen or connect address. Empty Address means any interface.
type Endpoint struct {
	Address string
	Port    uint16
}

// String renders the endpoint as host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(int(e.Port)))
}

// ParseEndpoint parses host:port. A missing host yields the any-interface endpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, WrapError(ErrCodeInvalidArgument, "parse endpoint", err).WithContext("endpoint", s)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Endpoint{}, WrapError(ErrCodeInvalidArgument, "parse port", err).WithContext("endpoint", s)
	}
	return Endpoint{Address: host, Port: uint16(p)}, nil
}

// Identity names the PEM private key and certificate presented by a TLS server.
// The zero Identity means plaintext.
type Identity struct {
	KeyFile  string
	CertFile string
}

// IsZero reports whether TLS is inactive for this identity.
func (id Identity) IsZero() bool {
	return id.KeyFile == "" && id.CertFile == ""
}
