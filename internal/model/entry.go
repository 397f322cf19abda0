// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversation transcripts.
package model

import (
	"strconv"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "LexAI"
	default:
		return string(r)
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Lifecycle is the state of a conversation entry.
//
// Assistant entries start in LifecycleStreaming and end in either
// LifecycleComplete or LifecycleFailed. User entries are created complete.
// LifecyclePending is reserved for queued submissions and is never assigned
// by the session manager.
type Lifecycle int

const (
	LifecyclePending Lifecycle = iota
	LifecycleStreaming
	LifecycleComplete
	LifecycleFailed
)

// String returns the lifecycle name.
func (l Lifecycle) String() string {
	switch l {
	case LifecyclePending:
		return "pending"
	case LifecycleStreaming:
		return "streaming"
	case LifecycleComplete:
		return "complete"
	case LifecycleFailed:
		return "failed"
	default:
		return "lifecycle(" + strconv.Itoa(int(l)) + ")"
	}
}

// IsTerminal reports whether no further transitions are allowed.
func (l Lifecycle) IsTerminal() bool {
	return l == LifecycleComplete || l == LifecycleFailed
}

// Rendered returns the lifecycle a renderer should display.
// Failed entries look exactly like complete ones to the end user.
func (l Lifecycle) Rendered() Lifecycle {
	if l == LifecycleFailed {
		return LifecycleComplete
	}
	return l
}

// Outcome is the terminal result passed to Transcript.Finalize.
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	return o.Lifecycle().String()
}

// Lifecycle maps the outcome to its terminal lifecycle.
func (o Outcome) Lifecycle() Lifecycle {
	if o == OutcomeFailed {
		return LifecycleFailed
	}
	return LifecycleComplete
}

// =============================================================================
// CONVERSATION ENTRY
// =============================================================================

// ConversationEntry is a single turn in the transcript.
//
// ID, Role and CreatedAt never change after creation. Content and Lifecycle
// change only while the entry is streaming.
type ConversationEntry struct {
	ID        uint64    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Lifecycle Lifecycle `json:"lifecycle"`
}

// IsStreaming reports whether the entry is still receiving fragments.
func (e ConversationEntry) IsStreaming() bool {
	return e.Lifecycle == LifecycleStreaming
}

// IsFailed reports whether the entry ended on the failure path.
func (e ConversationEntry) IsFailed() bool {
	return e.Lifecycle == LifecycleFailed
}

// IsEmpty returns true if the entry has no content.
func (e ConversationEntry) IsEmpty() bool {
	return len(e.Content) == 0
}

// Preview returns a truncated preview of the entry content.
// Uses rune-based truncation to handle Unicode correctly.
func (e ConversationEntry) Preview(maxLen int) string {
	runes := []rune(e.Content)
	if len(runes) <= maxLen {
		return e.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Timestamp formats CreatedAt the way the chat view shows it.
func (e ConversationEntry) Timestamp() string {
	return e.CreatedAt.Format("3:04:05 PM")
}
