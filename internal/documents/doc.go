// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package documents manages the user's document library on the LexAI
// backend: paging, upload, delete, and the local filtering and statistics
// shown next to the list.
//
// Every request carries the bearer token from a TokenProvider. A 401
// clears that token and returns ErrUnauthorized.
//
// # Key Types
//
//   - Client: List, ListAll, Upload and Delete
//   - Document, Page: Library entries and paging metadata
//   - Summary: Status counts from Summarize
//
// # Usage
//
//	client := documents.NewClient(cfg, store)
//	page, err := client.List(ctx, 1, 10)
//	if err != nil {
//	    return err
//	}
//	for _, d := range documents.Filter(page.Documents, "lease", documents.DocTypeAll) {
//	    fmt.Println(d.Title, documents.FormatFileSize(d.FileSize))
//	}
package documents
