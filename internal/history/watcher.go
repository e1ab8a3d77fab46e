// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history watches the sessions directory for external changes so the
// history list stays current when another claudechat process, or the user
// with an editor, touches session files.
package history

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events one atomic save produces
// (create of the temp file, rename, chmod) into a single notification.
const DefaultDebounce = 250 * time.Millisecond

// Watcher emits a notification when the sessions directory changes.
type Watcher struct {
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	changes  chan struct{}

	mu      sync.Mutex
	pending bool
	lastEvt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher creates a watcher for the sessions directory. Call Start to
// begin watching.
func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		watcher:  fsw,
		changes:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Changes returns the notification channel. Notifications are coalesced:
// the channel holds at most one pending signal regardless of how many
// events arrived.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Start begins watching. The sessions directory must exist.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.processEvents()
	go w.flushPending()
	return nil
}

// processEvents marks the directory dirty on relevant events.
func (w *Watcher) processEvents() {
	defer func() {
		// A panic here must not take the app down; the watcher just stops.
		recover()
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Only session records matter; atomic-save temp files are
			// filtered so a save triggers one notification, not two.
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".tmp-") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending = true
				w.lastEvt = time.Now()
				w.mu.Unlock()
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal; the list refresh is best-effort.
		}
	}
}

// flushPending delivers a coalesced notification once the event burst has
// settled for the debounce window.
func (w *Watcher) flushPending() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			ready := w.pending && time.Since(w.lastEvt) >= w.debounce
			if ready {
				w.pending = false
			}
			w.mu.Unlock()

			if ready {
				select {
				case w.changes <- struct{}{}:
				default: // a signal is already queued
				}
			}
		}
	}
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}
