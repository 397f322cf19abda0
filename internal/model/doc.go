// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversation transcripts.
//
// This package defines the in-memory transcript owned by a chat session and
// the lifecycle rules its entries follow while an answer streams in.
//
// # Key Types
//
//   - ConversationEntry: Single turn with ID, role, content, timestamp and lifecycle
//   - Transcript: Ordered, append-only store with guarded mutations
//   - Lifecycle: pending, streaming, complete, failed
//   - InvariantError: Panic value for illegal mutations
//
// # Usage
//
// Stream an assistant answer into a transcript:
//
//	t := model.NewSeededTranscript("Hello!")
//	t.Append(model.RoleUser, "What is a tort?", model.LifecycleComplete)
//	ph := t.Append(model.RoleAssistant, "", model.LifecycleStreaming)
//	t.AppendContent(ph.ID, "A tort is ")
//	t.AppendContent(ph.ID, "a civil wrong.")
//	t.Finalize(ph.ID, model.OutcomeComplete)
//
// Any mutation of an entry that is not streaming panics with *InvariantError.
package model
