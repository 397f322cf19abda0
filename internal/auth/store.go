// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/trygodson/llamatest/internal/util"
)

// TokenEnv overrides the stored token when set.
const TokenEnv = "LEXAI_TOKEN"

// Token is a stored login.
type Token struct {
	AccessToken string    `json:"access_token"`
	Username    string    `json:"username"`
	SavedAt     time.Time `json:"saved_at"`
}

// Store persists the access token in a 0600 file.
//
// Store is safe for concurrent use.
type Store struct {
	path string

	mu     sync.Mutex
	cached *Token
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the credentials file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored token, or ErrNotLoggedIn.
func (s *Store) Load() (*Token, error) {
	if env := os.Getenv(TokenEnv); env != "" {
		return &Token{AccessToken: env, Username: "(" + TokenEnv + ")"}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		tok := *s.cached
		return &tok, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, ErrNotLoggedIn
	}
	s.cached = &tok
	out := tok
	return &out, nil
}

// Save writes tok atomically.
func (s *Store) Save(tok *Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := util.AtomicWriteFile(s.path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	saved := *tok
	s.cached = &saved
	return nil
}

// Token returns the access token. It satisfies documents.TokenProvider.
func (s *Store) Token() (string, error) {
	tok, err := s.Load()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Clear removes the stored token. A missing file is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
