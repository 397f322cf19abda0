// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth logs in to the LexAI backend and keeps the access token.
//
// The query endpoint needs no token. The document endpoints send it as a
// bearer token, read through Store.
//
//	client := auth.NewClient(nil)
//	tok, err := client.Login(ctx, "alice", "s3cret!")
//	if err != nil {
//	    return err
//	}
//	err = auth.NewStore(path).Save(tok)
package auth
