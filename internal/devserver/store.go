// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/trygodson/llamatest/internal/documents"
)

var (
	errUserExists  = errors.New("Username already exists")
	errBadLogin    = errors.New("Incorrect username or password")
	errUnknownUser = errors.New("unknown user")
	errNoDocument  = errors.New("document not found")
)

// Store is the dev backend's in-memory state: accounts, issued tokens and
// one document library per user.
type Store struct {
	mu     sync.RWMutex
	users  map[string][]byte // username -> bcrypt hash
	tokens map[string]string // token -> username
	docs   map[string][]documents.Document
	nextID int64
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:  make(map[string][]byte),
		tokens: make(map[string]string),
		docs:   make(map[string][]documents.Document),
		nextID: 1,
		now:    time.Now,
	}
}

// AddUser registers an account.
func (s *Store) AddUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return errUserExists
	}
	s.users[username] = hash
	return nil
}

// Login checks credentials and issues a new token.
func (s *Store) Login(username, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.users[username]
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", errBadLogin
	}
	token := uuid.NewString()
	s.tokens[token] = username
	return token, nil
}

// IssueToken returns a token for an existing user without a password check.
func (s *Store) IssueToken(username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return "", errUnknownUser
	}
	token := uuid.NewString()
	s.tokens[token] = username
	return token, nil
}

// Revoke invalidates a token.
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

func (s *Store) userForToken(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.tokens[token]
	return u, ok
}

// AddDocument stores d for username, assigning its ID and upload date.
func (s *Store) AddDocument(username string, d documents.Document) documents.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.nextID
	s.nextID++
	d.UploadDate = documents.Timestamp{Time: s.now().UTC().Truncate(time.Second)}
	if d.Status == "" {
		d.Status = documents.StatusProcessed
	}
	s.docs[username] = append(s.docs[username], d)
	return d
}

// Page returns one page of username's library, newest first.
func (s *Store) Page(username string, page, pageSize int) documents.Page {
	s.mu.RLock()
	all := slices.Clone(s.docs[username])
	s.mu.RUnlock()

	slices.Reverse(all)
	total := len(all)
	pages := (total + pageSize - 1) / pageSize
	lo := min((page-1)*pageSize, total)
	hi := min(lo+pageSize, total)

	out := all[lo:hi]
	if out == nil {
		out = []documents.Document{}
	}
	return documents.Page{
		Documents: out,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		Pages:     pages,
	}
}

// DeleteDocument removes one of username's documents.
func (s *Store) DeleteDocument(username string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.docs[username]
	i := slices.IndexFunc(list, func(d documents.Document) bool { return d.ID == id })
	if i < 0 {
		return errNoDocument
	}
	s.docs[username] = slices.Delete(list, i, i+1)
	return nil
}
