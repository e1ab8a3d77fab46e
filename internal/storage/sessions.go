// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session persistence for claudechat.
//
// Each session lives in its own JSON file named by session id under the
// sessions directory. Writes are whole-file rewrites through an atomic
// temp-and-rename, so a concurrent reader never sees a partial record.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mforge/claudechat/internal/model"
	"github.com/mforge/claudechat/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSessionNotFound is returned when no session exists for an id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrCorruptSession is returned when a session file exists but cannot
	// be parsed. Load surfaces it rather than repairing, since silent
	// repair could hide real data loss. List skips such files instead —
	// one bad record must not hide the rest of the history.
	ErrCorruptSession = errors.New("corrupt session")
)

// =============================================================================
// SESSION STORE
// =============================================================================

// Store handles session persistence.
type Store struct {
	// BaseDir is the directory holding one JSON file per session.
	BaseDir string

	// mu serializes writes so two exchanges finishing near-simultaneously
	// cannot interleave a read-modify-write on the same file.
	mu sync.Mutex
}

// NewStore creates a store rooted at baseDir, creating it if needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &Store{BaseDir: baseDir}, nil
}

// =============================================================================
// CREATE / SAVE / APPEND
// =============================================================================

// Create allocates a new session with the given generation parameters. The
// session exists only in memory until Save: a chat abandoned before the first
// message leaves no record behind. Ids are never reused.
func (s *Store) Create(p model.Params) *model.Session {
	return &model.Session{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		Model:        p.Model,
		MaxTokens:    p.MaxTokens,
		Temperature:  p.Temperature,
		SystemPrompt: p.SystemPrompt,
		Messages:     []model.Message{},
	}
}

// Save persists the full session record, creating or replacing its file.
func (s *Store) Save(sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(sess)
}

// AppendMessage appends one message to a session and rewrites its record.
// Sessions are small, so a whole-file rewrite is acceptable. Returns the
// updated session.
func (s *Store) AppendMessage(id string, msg model.Message) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(id)
	if err != nil {
		return nil, err
	}
	sess.Append(msg)
	if err := s.saveLocked(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// saveLocked marshals and atomically writes a session record.
// Callers must hold s.mu.
func (s *Store) saveLocked(sess *model.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := util.AtomicWriteFile(s.filePath(sess.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", sess.ID, err)
	}
	return nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load retrieves a session by id.
func (s *Store) Load(id string) (*model.Session, error) {
	return s.load(id)
}

func (s *Store) load(id string) (*model.Session, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSession, id, err)
	}
	return &sess, nil
}

// =============================================================================
// LIST / SEARCH
// =============================================================================

// List returns metadata for all saved sessions, most recent first.
// Corrupt files are skipped, not surfaced: listing is partial-failure
// tolerant while single-session Load is strict.
func (s *Store) List() ([]model.SessionMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.SessionMeta{}, nil
		}
		return nil, err
	}

	var metas []model.SessionMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")

		sess, err := s.load(id)
		if err != nil {
			continue // skip corrupt records
		}
		metas = append(metas, sess.Meta())
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// Search returns sessions whose preview or any message content contains the
// query, case-insensitively.
func (s *Store) Search(query string) ([]model.SessionMeta, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return all, nil
	}

	query = strings.ToLower(query)
	var results []model.SessionMeta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Preview), query) {
			results = append(results, meta)
			continue
		}
		sess, err := s.load(meta.ID)
		if err != nil {
			continue
		}
		for i := range sess.Messages {
			if strings.Contains(strings.ToLower(sess.Messages[i].Content), query) {
				results = append(results, meta)
				break
			}
		}
	}
	return results, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a session record. Deleting an id that does not exist is
// not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// filePath returns the file path for a session id.
func (s *Store) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}
