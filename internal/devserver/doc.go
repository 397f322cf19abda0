// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package devserver is an in-memory LexAI backend for local development
// and tests.
//
// # Endpoints
//
//   - POST   /auth/signup            - Create an account
//   - POST   /auth/login             - Issue a bearer token
//   - POST   /llama/query            - Stream a plain text answer
//   - GET    /llama/documents        - Page through the caller's library
//   - POST   /llama/upload           - Multipart PDF or CSV upload
//   - DELETE /deleteDocument/{id}    - Remove a document
//   - GET    /health                 - Health check
//
// Answers are written in small chunks with a flush after each, so UTF-8
// sequences regularly straddle chunk boundaries.
//
// # Usage
//
//	srv := devserver.New(nil, devserver.DefaultOptions())
//	err := srv.ListenAndServe(ctx, ":8000")
package devserver
