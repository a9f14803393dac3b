// File: lowlevel/server/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/eapache/queue"
)

// registry is the FIFO of workers created during one Open lifetime.
// It is owned by the accept goroutine and needs no locking.
type registry struct {
	q *queue.Queue
}

func newRegistry() *registry {
	return &registry{q: queue.New()}
}

func (r *registry) add(w *Worker) {
	r.q.Add(w)
}

func (r *registry) len() int {
	return r.q.Length()
}

// reap drops workers whose goroutine has exited and returns how many were removed.
func (r *registry) reap() int {
	n := r.q.Length()
	removed := 0
	for i := 0; i < n; i++ {
		w := r.q.Remove().(*Worker)
		if w.Finished() {
			w.Close()
			removed++
			continue
		}
		r.q.Add(w)
	}
	return removed
}

// drain empties the registry and returns its workers in creation order.
func (r *registry) drain() []*Worker {
	out := make([]*Worker, 0, r.q.Length())
	for r.q.Length() > 0 {
		out = append(out, r.q.Remove().(*Worker))
	}
	return out
}
