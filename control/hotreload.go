// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Reload hook registry shared by config stores and file watchers.

package control

import "sync"

// ReloadHooks is a list of component reload listeners.
type ReloadHooks struct {
	mu    sync.Mutex
	hooks []func()
}

// NewReloadHooks creates an empty hook list.
func NewReloadHooks() *ReloadHooks {
	return &ReloadHooks{}
}

// Register adds a new component reload listener.
func (h *ReloadHooks) Register(fn func()) {
	h.mu.Lock()
	h.hooks = append(h.hooks, fn)
	h.mu.Unlock()
}

func (h *ReloadHooks) snapshot() []func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]func(){}, h.hooks...)
}

// TriggerSync invokes all reload hooks in registration order.
func (h *ReloadHooks) TriggerSync() {
	for _, fn := range h.snapshot() {
		fn()
	}
}
