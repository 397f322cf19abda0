// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the lexai command tree.
//
// Running lexai with no arguments opens the chat screen. The line commands
// cover one-shot questions, a line-based chat, login and the document
// library.
//
// # Commands
//
//	lexai [tui]                     full-screen chat
//	lexai ask <question>            one question, answer on stdout
//	lexai chat                      line-based chat with history
//	lexai login | signup | logout | whoami
//	lexai docs list | upload | delete | stats
//	lexai config show | path | init | validate | get | set
//	lexai dev-server                in-memory backend for local testing
//	lexai version
//
// # Exit Codes
//
// Execute maps errors to exit codes: 2 for bad usage, 3 for config
// problems, 4 for auth failures, 5 for network or backend errors and 8 for
// timeouts.
package cli
