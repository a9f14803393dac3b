// File: api/handler.go
// Package api defines Handler interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Handler processes one message read from a connection and returns the
// bytes to send back. A nil or empty reply sends nothing. An error ends
// the connection.
type Handler interface {
	Handle(msg []byte) ([]byte, error)
}
