// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversation transcripts.
package model

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// INVARIANT ERRORS
// =============================================================================

// InvariantError is the panic value raised when a caller breaks a transcript
// invariant, such as mutating an entry that already reached a terminal state.
// It always signals a programming error, usually two exchanges racing for
// the same entry.
type InvariantError struct {
	Op        string
	EntryID   uint64
	Lifecycle Lifecycle
	Reason    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("transcript invariant violated: %s entry %d (%s): %s",
		e.Op, e.EntryID, e.Lifecycle, e.Reason)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is the ordered, append-only log of conversation entries for one
// session.
//
// Entries are never removed. Only the single streaming entry may be mutated,
// through UpdateContent, AppendContent and Finalize.
//
// A Transcript is safe for one writer and any number of concurrent readers.
type Transcript struct {
	mu sync.RWMutex

	entries []*ConversationEntry
	index   map[uint64]int

	nextID      uint64
	streamingID uint64 // 0 when nothing is streaming
	revision    uint64

	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	stream strings.Builder

	now func() time.Time
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		entries: make([]*ConversationEntry, 0, 16),
		index:   make(map[uint64]int),
		nextID:  1,
		now:     time.Now,
	}
}

// NewSeededTranscript creates a transcript holding one complete assistant
// entry with the given greeting. The seed has no matching user entry.
func NewSeededTranscript(greeting string) *Transcript {
	t := NewTranscript()
	if greeting != "" {
		t.Append(RoleAssistant, greeting, LifecycleComplete)
	}
	return t
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Append adds a new entry at the end of the transcript and returns a copy
// of it with its ID and CreatedAt assigned.
//
// Appending a streaming entry while another entry is streaming panics.
func (t *Transcript) Append(role Role, content string, lifecycle Lifecycle) ConversationEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !role.Valid() {
		panic(&InvariantError{Op: "append", Lifecycle: lifecycle, Reason: "unknown role " + string(role)})
	}
	if lifecycle == LifecycleStreaming && t.streamingID != 0 {
		panic(&InvariantError{
			Op:        "append",
			EntryID:   t.streamingID,
			Lifecycle: LifecycleStreaming,
			Reason:    "another entry is already streaming",
		})
	}

	entry := &ConversationEntry{
		ID:        t.nextID,
		Role:      role,
		Content:   content,
		CreatedAt: t.now(),
		Lifecycle: lifecycle,
	}
	t.nextID++

	t.index[entry.ID] = len(t.entries)
	t.entries = append(t.entries, entry)

	if lifecycle == LifecycleStreaming {
		t.streamingID = entry.ID
		t.stream.Reset()
		t.stream.WriteString(content)
	}
	t.revision++

	return *entry
}

// UpdateContent replaces the content of the streaming entry id.
func (t *Transcript) UpdateContent(id uint64, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.mustStreaming("update", id)
	t.stream.Reset()
	t.stream.WriteString(content)
	entry.Content = content
	t.revision++
}

// AppendContent appends a fragment to the content of the streaming entry id.
func (t *Transcript) AppendContent(id uint64, fragment string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.mustStreaming("append content", id)
	if fragment == "" {
		return
	}
	t.stream.WriteString(fragment)
	entry.Content = t.stream.String()
	t.revision++
}

// Finalize moves the streaming entry id to its terminal lifecycle.
// After Finalize the entry is immutable.
func (t *Transcript) Finalize(id uint64, outcome Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.mustStreaming("finalize", id)
	entry.Lifecycle = outcome.Lifecycle()
	t.streamingID = 0
	t.stream.Reset()
	t.revision++
}

// mustStreaming returns the entry id, panicking unless it is streaming.
// Caller must hold t.mu.
func (t *Transcript) mustStreaming(op string, id uint64) *ConversationEntry {
	pos, ok := t.index[id]
	if !ok {
		panic(&InvariantError{Op: op, EntryID: id, Reason: "no such entry"})
	}
	entry := t.entries[pos]
	if entry.Lifecycle != LifecycleStreaming {
		panic(&InvariantError{
			Op:        op,
			EntryID:   id,
			Lifecycle: entry.Lifecycle,
			Reason:    "entry is not streaming",
		})
	}
	return entry
}

// =============================================================================
// READERS
// =============================================================================

// Entries returns a snapshot of all entries in order.
func (t *Transcript) Entries() []ConversationEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ConversationEntry, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}

// Get returns a copy of the entry with the given ID.
func (t *Transcript) Get(id uint64) (ConversationEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.index[id]
	if !ok {
		return ConversationEntry{}, false
	}
	return *t.entries[pos], true
}

// Last returns the most recent entry.
func (t *Transcript) Last() (ConversationEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.entries) == 0 {
		return ConversationEntry{}, false
	}
	return *t.entries[len(t.entries)-1], true
}

// Streaming returns the entry currently streaming, if any.
func (t *Transcript) Streaming() (ConversationEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.streamingID == 0 {
		return ConversationEntry{}, false
	}
	return *t.entries[t.index[t.streamingID]], true
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Revision increases on every mutation. Renderers compare it to skip
// redundant redraws.
func (t *Transcript) Revision() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.revision
}

// Stats summarizes the transcript by lifecycle.
type Stats struct {
	Entries   int
	User      int
	Assistant int
	Failed    int
	Streaming bool
}

// Stats returns the current transcript summary.
func (t *Transcript) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Stats{Entries: len(t.entries), Streaming: t.streamingID != 0}
	for _, e := range t.entries {
		switch e.Role {
		case RoleUser:
			s.User++
		case RoleAssistant:
			s.Assistant++
		}
		if e.Lifecycle == LifecycleFailed {
			s.Failed++
		}
	}
	return s
}
