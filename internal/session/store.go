// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides conversation persistence for quill.
//
// Sessions are stored as individual JSON files under ~/.quill/sessions/,
// one file per session, named by session ID.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morganforge/quill/internal/api"
	"github.com/morganforge/quill/internal/util"
)

// =============================================================================
// SESSION TYPES
// =============================================================================

// Session represents a persisted conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []api.Message `json:"messages"`
}

// Meta contains metadata for listing sessions without loading full bodies.
type Meta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// =============================================================================
// STORE
// =============================================================================

// Store handles session persistence.
type Store struct {
	// BaseDir is the directory holding session files.
	// Default: ~/.quill/sessions/
	BaseDir string

	// MaxSessions limits stored sessions (0 = unlimited); the oldest are
	// pruned on save.
	MaxSessions int
}

// NewStore creates a store rooted at ~/.quill/sessions/.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewStoreWithDir(filepath.Join(home, ".quill", "sessions"))
}

// NewStoreWithDir creates a store with a custom directory.
func NewStoreWithDir(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Store{
		BaseDir:     baseDir,
		MaxSessions: 100,
	}, nil
}

// =============================================================================
// SAVE
// =============================================================================

// Save persists a session and returns its ID, assigning one if unset.
func (s *Store) Save(sess *Session) (string, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Title == "" {
		sess.Title = titleFor(sess)
	}

	sess.UpdatedAt = time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = sess.UpdatedAt
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return "", err
	}

	// RELIABILITY: atomic write, a crash never leaves a torn session file.
	if err := util.AtomicWriteFile(s.filePath(sess.ID), data, 0644); err != nil {
		return "", err
	}

	if s.MaxSessions > 0 {
		s.enforceLimit()
	}
	return sess.ID, nil
}

// titleFor derives a session title from the first user message.
func titleFor(sess *Session) string {
	for _, msg := range sess.Messages {
		if msg.Role == api.RoleUser && msg.Content != "" {
			line := util.FirstLine(msg.Content)
			return util.TruncateRunes(line, 50)
		}
	}
	return "New session"
}

// enforceLimit prunes the oldest sessions when over the cap.
func (s *Store) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxSessions {
		return
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.Before(metas[j].UpdatedAt)
	})
	for i := 0; i < len(metas)-s.MaxSessions; i++ {
		s.Delete(metas[i].ID)
	}
}

// =============================================================================
// LOAD / LIST / DELETE
// =============================================================================

// Load retrieves a session by ID.
func (s *Store) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// LoadByIndex loads a session by its position in the list (0 = most recent).
func (s *Store) LoadByIndex(index int) (*Session, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(metas) {
		return nil, ErrSessionNotFound
	}
	return s.Load(metas[index].ID)
}

// List returns metadata for all saved sessions, most recent first.
// Corrupted files are skipped rather than failing the whole listing.
func (s *Store) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Meta{}, nil
		}
		return nil, err
	}

	var metas []Meta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		sess, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		metas = append(metas, Meta{
			ID:           sess.ID,
			Title:        sess.Title,
			Model:        sess.Model,
			UpdatedAt:    sess.UpdatedAt,
			MessageCount: len(sess.Messages),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Delete removes a session by ID.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.filePath(id))
	if os.IsNotExist(err) {
		return ErrSessionNotFound
	}
	return err
}

// filePath returns the on-disk path for a session ID.
func (s *Store) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrSessionNotFound indicates a session ID with no stored file.
var ErrSessionNotFound = &StoreError{Message: "session not found"}

// StoreError represents a session storage error.
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatList renders session metadata as an aligned table for terminal
// display.
func FormatList(metas []Meta) string {
	if len(metas) == 0 {
		return "No saved sessions."
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-3s  %-8s  %-16s  %-5s  %s\n", "#", "ID", "Updated", "Msgs", "Title"))
	for i, m := range metas {
		shortID := m.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}
		b.WriteString(fmt.Sprintf("%-3d  %-8s  %-16s  %-5d  %s\n",
			i,
			shortID,
			m.UpdatedAt.Format("2006-01-02 15:04"),
			m.MessageCount,
			util.TruncateWidth(m.Title, 50),
		))
	}
	return b.String()
}
