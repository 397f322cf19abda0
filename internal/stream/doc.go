// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes streamed answer bodies into text fragments.
//
// The query endpoint answers with a raw UTF-8 byte stream and no framing.
// Chunk boundaries fall wherever the network puts them, including inside a
// multi-byte character, so decoding has to carry partial characters from
// one chunk to the next.
//
// # Key Types
//
//   - Decoder: Incremental chunk decoder built on golang.org/x/text transformers
//   - Reader: Pulls chunks from an io.Reader and yields fragments
//   - Mode: fail (malformed bytes are an error) or replace (U+FFFD)
//   - DecodeError: Byte offset and cause of a decode failure
//
// # Usage
//
//	r := stream.NewReader(resp.Body)
//	err := r.Process(ctx, func(fragment string) error {
//	    fmt.Print(fragment)
//	    return nil
//	})
//
// A Decoder is single use. Create a new one for every response.
package stream
