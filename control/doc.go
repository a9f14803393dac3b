// Package control
// Author: momentics <momentics@gmail.com>
//
// Hot-reload, runtime metrics, configuration control, and debug introspection layer
// used by the hioload-tls server and client.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads and merged updates
//   - Reload hooks fired on config or identity changes
//   - Counters for connection and byte accounting
//   - Debug probe registration, including platform probes
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
