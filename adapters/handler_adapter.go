// File: adapters/handler_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
//
// HandlerFunc glue, the echo handler and middleware for connection handlers.

package adapters

import (
	"log/slog"

	"github.com/momentics/hioload-tls/api"
)

// HandlerFunc converts a function into an api.Handler.
type HandlerFunc func(msg []byte) ([]byte, error)

// Handle calls the underlying function.
func (f HandlerFunc) Handle(msg []byte) ([]byte, error) {
	return f(msg)
}

// Echo returns every message unchanged. The message buffer is reused by the
// caller after the reply is written, so no copy is made.
var Echo api.Handler = HandlerFunc(func(msg []byte) ([]byte, error) {
	return msg, nil
})

// Middleware augments an api.Handler.
type Middleware func(api.Handler) api.Handler

// Chain applies middleware in order: first in slice is outermost.
func Chain(base api.Handler, mw ...Middleware) api.Handler {
	h := base
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// LoggingMiddleware logs message sizes and handler errors at debug level.
func LoggingMiddleware(log *slog.Logger) Middleware {
	return func(next api.Handler) api.Handler {
		return HandlerFunc(func(msg []byte) ([]byte, error) {
			reply, err := next.Handle(msg)
			if err != nil {
				log.Debug("handler failed", "bytes", len(msg), "err", err)
				return reply, err
			}
			log.Debug("handled message", "bytes", len(msg), "reply", len(reply))
			return reply, nil
		})
	}
}

// MetricsMiddleware increments "handler.processed" and "handler.errors".
func MetricsMiddleware(c api.Counter) Middleware {
	return func(next api.Handler) api.Handler {
		return HandlerFunc(func(msg []byte) ([]byte, error) {
			reply, err := next.Handle(msg)
			c.AddMetric("handler.processed", 1)
			if err != nil {
				c.AddMetric("handler.errors", 1)
			}
			return reply, err
		})
	}
}
