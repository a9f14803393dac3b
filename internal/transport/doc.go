// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection transports for hioload-tls. Plain carries bytes directly
// over the socket using raw non-blocking syscalls where the platform allows;
// Secure carries them through a TLS session. Both satisfy api.Transport, so
// workers and clients never branch on whether TLS is active.
// Socket tuning is strictly separated by build tags (linux/other).

package transport
