// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWatcher(dir, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, dir
}

func waitChange(t *testing.T, w *Watcher) bool {
	t.Helper()
	select {
	case <-w.Changes():
		return true
	case <-time.After(3 * time.Second):
		return false
	}
}

func TestWatcher_NotifiesOnCreate(t *testing.T) {
	w, dir := newWatcher(t)

	if err := os.WriteFile(filepath.Join(dir, "abc.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if !waitChange(t, w) {
		t.Fatal("no notification for created session file")
	}
}

func TestWatcher_NotifiesOnRemove(t *testing.T) {
	w, dir := newWatcher(t)
	path := filepath.Join(dir, "abc.json")
	os.WriteFile(path, []byte("{}"), 0644)
	waitChange(t, w) // drain the create notification

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !waitChange(t, w) {
		t.Fatal("no notification for removed session file")
	}
}

func TestWatcher_IgnoresNonSessionFiles(t *testing.T) {
	w, dir := newWatcher(t)

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, ".tmp-12345"), []byte("x"), 0644)

	select {
	case <-w.Changes():
		t.Fatal("unexpected notification for non-session file")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_CoalescesBurst(t *testing.T) {
	w, dir := newWatcher(t)

	// A burst of writes within the debounce window.
	for i := 0; i < 5; i++ {
		os.WriteFile(filepath.Join(dir, "s.json"), []byte("{}"), 0644)
		time.Sleep(5 * time.Millisecond)
	}

	if !waitChange(t, w) {
		t.Fatal("no notification for burst")
	}
	// The burst must not queue a second notification after the first drain.
	select {
	case <-w.Changes():
		t.Error("burst produced more than one notification")
	case <-time.After(400 * time.Millisecond):
	}
}
