// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes streamed answer bodies into text fragments.
package stream

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidUTF8 is reported for malformed byte sequences in ModeFail.
	ErrInvalidUTF8 = encoding.ErrInvalidUTF8

	// ErrTruncated is reported when the stream ends inside a multi-byte character.
	ErrTruncated = errors.New("stream ended inside a multi-byte character")

	// ErrDecoderClosed is returned by any call after Close.
	ErrDecoderClosed = errors.New("decoder already closed")
)

// DecodeError reports where in the stream decoding failed.
type DecodeError struct {
	Offset int64 // byte offset of the first byte that could not be decoded
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at byte %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// =============================================================================
// MODE
// =============================================================================

// Mode selects how malformed input is handled.
type Mode string

const (
	// ModeFail treats malformed bytes as a decode error.
	ModeFail Mode = "fail"
	// ModeReplace substitutes U+FFFD for malformed bytes.
	ModeReplace Mode = "replace"
)

// ParseMode parses a config value. Empty means ModeFail.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFail:
		return ModeFail, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("unknown invalid_utf8 mode %q (want fail or replace)", s)
	}
}

func (m Mode) transformer() transform.Transformer {
	if m == ModeReplace {
		return unicode.UTF8.NewDecoder()
	}
	return encoding.UTF8Validator
}

// =============================================================================
// DECODER
// =============================================================================

const initialDstSize = 4096

// Decoder turns raw byte chunks into complete UTF-8 text fragments.
//
// A multi-byte character split across chunks is held back until the rest of
// its bytes arrive, so every fragment is valid text. A Decoder serves one
// stream: after Close it rejects further input.
type Decoder struct {
	mode    Mode
	t       transform.Transformer
	pending []byte // undecoded tail of the previous chunk
	dst     []byte
	out     strings.Builder
	offset  int64
	closed  bool
}

// NewDecoder creates a decoder for one stream.
func NewDecoder(mode Mode) *Decoder {
	if mode == "" {
		mode = ModeFail
	}
	t := mode.transformer()
	t.Reset()
	return &Decoder{
		mode: mode,
		t:    t,
		dst:  make([]byte, initialDstSize),
	}
}

// Mode returns the decoder's malformed-input mode.
func (d *Decoder) Mode() Mode {
	return d.mode
}

// Decode decodes one chunk and returns the text it completes. The result may
// be empty when the chunk only holds part of a character.
func (d *Decoder) Decode(chunk []byte) (string, error) {
	if d.closed {
		return "", ErrDecoderClosed
	}
	if len(chunk) == 0 {
		return "", nil
	}

	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
	}
	text, consumed, err := d.run(src, false)
	if err != nil {
		d.pending = d.pending[:0]
		return "", err
	}

	// Keep the incomplete tail for the next chunk. src may alias pending.
	tail := src[consumed:]
	d.pending = append(d.pending[:0], tail...)
	return text, nil
}

// Close signals the end of the stream and returns any remaining text.
// A character left incomplete is an error in ModeFail and U+FFFD in
// ModeReplace.
func (d *Decoder) Close() (string, error) {
	if d.closed {
		return "", ErrDecoderClosed
	}
	d.closed = true

	if len(d.pending) == 0 {
		return "", nil
	}
	if d.mode == ModeFail {
		err := &DecodeError{Offset: d.offset, Err: ErrTruncated}
		d.pending = nil
		return "", err
	}

	text, _, err := d.run(d.pending, true)
	d.pending = nil
	return text, err
}

// Pending returns the number of bytes held back for the next chunk.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// run drives the transformer over src until it is consumed or needs more
// input. It returns the decoded text and how many bytes of src were used.
func (d *Decoder) run(src []byte, atEOF bool) (string, int, error) {
	d.out.Reset()
	used := 0
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src[used:], atEOF)
		d.out.Write(d.dst[:nDst])
		used += nSrc
		d.offset += int64(nSrc)

		switch {
		case err == nil:
			return d.out.String(), used, nil
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.dst = make([]byte, 2*len(d.dst))
			}
		case errors.Is(err, transform.ErrShortSrc):
			return d.out.String(), used, nil
		default:
			return "", used, &DecodeError{Offset: d.offset, Err: err}
		}
	}
}
