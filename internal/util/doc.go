// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the LexAI packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes, TruncateWidth: UTF-8 safe truncation with ellipsis
//   - PadRight: Terminal cell aware padding
//
// Type Conversion:
//   - IntToString, Plural
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	display := util.TruncateWidth(title, 40)
//	err := util.AtomicWriteFile(path, data, 0600, 0700)
package util
