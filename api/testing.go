// Package api
// Author: momentics
//
// Mock/testing utilities for core contracts.

package api

import (
	"net"
	"time"
)

// MockTransport is a func-driven implementation of Transport.
// Nil funcs behave as an idle open connection.
type MockTransport struct {
	ReadFunc  func(p []byte, wait time.Duration) (int, error)
	WriteFunc func(p []byte) (int, error)
	CloseFunc func() error
	closed    bool
}

func (m *MockTransport) Read(p []byte, wait time.Duration) (int, error) {
	if m.ReadFunc == nil {
		return 0, ErrWouldBlock
	}
	return m.ReadFunc(p, wait)
}

func (m *MockTransport) Write(p []byte) (int, error) {
	if m.WriteFunc == nil {
		return len(p), nil
	}
	return m.WriteFunc(p)
}

func (m *MockTransport) Close() error {
	m.closed = true
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

func (m *MockTransport) Closed() bool         { return m.closed }
func (m *MockTransport) Secure() bool         { return false }
func (m *MockTransport) RemoteAddr() net.Addr { return nil }

