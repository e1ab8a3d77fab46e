// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keystore handles API key storage.
//
// SECURITY: The key never goes through the config file, which is
// world-readable and routinely copied around. Resolution order is the
// ANTHROPIC_API_KEY environment variable, then the api.key file in the data
// directory with owner-only permissions.
package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mforge/claudechat/internal/util"
)

// ErrNoKey indicates no API key is stored anywhere.
var ErrNoKey = errors.New("no API key configured")

// keyFileName is the key file inside the data directory.
const keyFileName = "api.key"

// KeyStore persists and retrieves the API key.
type KeyStore interface {
	// Retrieve returns the stored key, or ErrNoKey.
	Retrieve() (string, error)
	// Store saves the key.
	Store(key string) error
	// Delete removes the stored key. Deleting an absent key is not an error.
	Delete() error
	// Exists reports whether a key is available.
	Exists() bool
}

// =============================================================================
// FILE KEY STORE
// =============================================================================

// FileKeyStore stores the key in a file with 0600 permissions, checking the
// environment first so deployments can inject the key without touching disk.
type FileKeyStore struct {
	// Dir is the data directory holding the key file.
	Dir string
}

// NewFileKeyStore creates a key store rooted at the data directory.
func NewFileKeyStore(dir string) *FileKeyStore {
	return &FileKeyStore{Dir: dir}
}

// path returns the key file location.
func (k *FileKeyStore) path() string {
	return filepath.Join(k.Dir, keyFileName)
}

// Retrieve returns the API key: the environment wins, the file is the
// fallback.
func (k *FileKeyStore) Retrieve() (string, error) {
	if key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		return key, nil
	}

	data, err := os.ReadFile(k.path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoKey
		}
		return "", fmt.Errorf("failed to read key file: %w", err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", ErrNoKey
	}
	return key, nil
}

// Store saves the key to the key file with owner-only permissions.
func (k *FileKeyStore) Store(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("refusing to store empty API key")
	}
	// SECURITY: 0600 - the key must not be readable by other users.
	if err := util.AtomicWriteFile(k.path(), []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	return nil
}

// Delete removes the key file.
func (k *FileKeyStore) Delete() error {
	if err := os.Remove(k.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	return nil
}

// Exists reports whether a key is available from any source.
func (k *FileKeyStore) Exists() bool {
	_, err := k.Retrieve()
	return err == nil
}

// ValidateKeyFormat performs a shape check on an Anthropic API key without
// contacting the API. Used by setup to catch paste accidents early.
func ValidateKeyFormat(key string) bool {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, "sk-ant-") {
		return false
	}
	return len(key) >= 20
}
