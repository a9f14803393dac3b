// Package tlsengine
// Author: momentics <momentics@gmail.com>
//
// Thin adapter over crypto/tls used by the hioload-tls server, workers and
// clients. It creates role-specific contexts, loads the server identity,
// runs bounded handshakes over already-connected sockets and exposes
// tri-state record I/O on the resulting sessions.
//
// Read timeouts are not fatal to a session: crypto/tls keeps partially
// received records and reports deadline errors as temporary, which is what
// allows bounded polling reads. Write timeouts are fatal and are reported
// as hard errors.
package tlsengine
