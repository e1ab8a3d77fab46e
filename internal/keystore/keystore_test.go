// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package keystore

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func newStore(t *testing.T) *FileKeyStore {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "") // isolate from the host environment
	return NewFileKeyStore(t.TempDir())
}

func TestRetrieve_NoKey(t *testing.T) {
	k := newStore(t)

	_, err := k.Retrieve()
	if !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey, got %v", err)
	}
	if k.Exists() {
		t.Error("Exists should be false")
	}
}

func TestStoreRetrieve(t *testing.T) {
	k := newStore(t)

	if err := k.Store("sk-ant-test-key-12345"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	key, err := k.Retrieve()
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if key != "sk-ant-test-key-12345" {
		t.Errorf("key = %q", key)
	}
	if !k.Exists() {
		t.Error("Exists should be true")
	}
}

func TestStore_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes not meaningful on windows")
	}
	k := newStore(t)
	if err := k.Store("sk-ant-perm-check-123"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(k.Dir, keyFileName))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file mode = %o, want 0600", perm)
	}
}

func TestStore_RejectsEmpty(t *testing.T) {
	k := newStore(t)
	if err := k.Store("   "); err == nil {
		t.Error("expected error storing empty key")
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	k := NewFileKeyStore(t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env-99999")
	if err := k.Store("sk-ant-from-file-11111"); err != nil {
		t.Fatal(err)
	}

	key, err := k.Retrieve()
	if err != nil {
		t.Fatal(err)
	}
	if key != "sk-ant-from-env-99999" {
		t.Errorf("key = %q, env must win", key)
	}
}

func TestDelete(t *testing.T) {
	k := newStore(t)
	k.Store("sk-ant-delete-me-123")

	if err := k.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := k.Retrieve(); !errors.Is(err, ErrNoKey) {
		t.Errorf("key still retrievable after delete: %v", err)
	}

	// Idempotent.
	if err := k.Delete(); err != nil {
		t.Errorf("second delete errored: %v", err)
	}
}

func TestValidateKeyFormat(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"sk-ant-REDACTED", true},
		{"  sk-ant-REDACTED  ", true},
		{"sk-or-wrong-provider-key-123", false},
		{"sk-ant-short", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateKeyFormat(tt.key); got != tt.want {
			t.Errorf("ValidateKeyFormat(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
