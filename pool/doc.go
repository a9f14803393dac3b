// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer pooling for hioload-tls read loops. Every worker and client reads
// into a buffer taken from a BytePool and returns it on exit.
package pool
