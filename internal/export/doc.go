// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a chat transcript to a file.
//
// # Supported Formats
//
//   - Markdown: human-readable, one section per entry
//   - JSON: machine-readable entries with session metadata
//
// # Usage
//
//	conv := export.FromTranscript(mgr.SessionID(), started, mgr.Transcript())
//	path, err := export.ToFile(conv, export.NewMarkdownExporter(nil), nil)
//
// A still-streaming entry is exported with the content received so far.
package export
