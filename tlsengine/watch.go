// File: tlsengine/watch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tlsengine

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay coalesces the burst of events produced when key and
// certificate are replaced together.
const DefaultReloadDelay = 200 * time.Millisecond

// IdentityWatcher reloads a server identity when its files change.
type IdentityWatcher struct {
	ctx      *Context
	keyPath  string
	certPath string
	delay    time.Duration
	onReload func(error)
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// WatchIdentity starts watching keyPath and certPath. onReload, if set, is
// called after every reload attempt with its result. The parent directories
// are watched so that atomic rename-over updates are seen.
func (c *Context) WatchIdentity(keyPath, certPath string, delay time.Duration, onReload func(error)) (*IdentityWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	iw := &IdentityWatcher{
		ctx:      c,
		keyPath:  filepath.Clean(keyPath),
		certPath: filepath.Clean(certPath),
		delay:    delay,
		onReload: onReload,
		watcher:  w,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	dirs := map[string]struct{}{
		filepath.Dir(iw.keyPath):  {},
		filepath.Dir(iw.certPath): {},
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	go iw.run()
	return iw, nil
}

func (iw *IdentityWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	return name == iw.keyPath || name == iw.certPath
}

func (iw *IdentityWatcher) run() {
	defer close(iw.done)
	pending := time.NewTimer(time.Hour)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-iw.stop:
			return
		case ev, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			if iw.relevant(ev) {
				pending.Reset(iw.delay)
			}
		case <-pending.C:
			err := iw.ctx.ConfigureIdentity(iw.keyPath, iw.certPath)
			if err != nil {
				iw.ctx.log.Warn("identity reload failed, keeping previous identity", "err", err)
			}
			if iw.onReload != nil {
				iw.onReload(err)
			}
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			iw.ctx.log.Error("identity watcher error", "err", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine. Idempotent.
func (iw *IdentityWatcher) Close() error {
	iw.closeOnce.Do(func() {
		close(iw.stop)
		iw.closeErr = iw.watcher.Close()
		<-iw.done
	})
	return iw.closeErr
}
