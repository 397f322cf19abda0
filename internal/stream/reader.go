// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes streamed answer bodies into text fragments.
package stream

import (
	"context"
	"errors"
	"io"
	"time"
)

// DefaultChunkSize is the read buffer used for response bodies.
const DefaultChunkSize = 4096

// FragmentCallback is called for each decoded fragment, in stream order.
// Returning an error stops processing.
type FragmentCallback func(fragment string) error

// =============================================================================
// STREAM READER
// =============================================================================

// Reader reads an unframed UTF-8 byte stream and yields decoded fragments.
// End of stream is the underlying reader's io.EOF; there is no in-band
// terminator.
type Reader struct {
	r   io.Reader
	dec *Decoder
	buf []byte

	err   error // sticky terminal state, io.EOF on clean end
	stats Stats
}

// Stats describes a consumed stream.
type Stats struct {
	Chunks        int
	Bytes         int64
	Fragments     int
	StartTime     time.Time
	FirstFragment time.Time
	EndTime       time.Time
}

// TTFF returns the time to first fragment.
func (s Stats) TTFF() time.Duration {
	if s.FirstFragment.IsZero() {
		return 0
	}
	return s.FirstFragment.Sub(s.StartTime)
}

// Duration returns how long the stream took.
func (s Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// NewReader creates a Reader with ModeFail and the default chunk size.
func NewReader(r io.Reader) *Reader {
	return NewReaderMode(r, ModeFail, DefaultChunkSize)
}

// NewReaderMode creates a Reader with an explicit mode and chunk size.
func NewReaderMode(r io.Reader, mode Mode, chunkSize int) *Reader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reader{
		r:     r,
		dec:   NewDecoder(mode),
		buf:   make([]byte, chunkSize),
		stats: Stats{StartTime: time.Now()},
	}
}

// Next returns the next non-empty fragment. It returns io.EOF after the last
// fragment of a cleanly ended stream, and the same error on every later call.
func (r *Reader) Next() (string, error) {
	for {
		if r.err != nil {
			return "", r.err
		}

		n, readErr := r.r.Read(r.buf)
		if n > 0 {
			r.stats.Chunks++
			r.stats.Bytes += int64(n)
			frag, err := r.dec.Decode(r.buf[:n])
			if err != nil {
				return "", r.fail(err)
			}
			if readErr != nil {
				frag += r.finish(readErr)
			}
			if frag != "" {
				return r.deliver(frag), nil
			}
			continue
		}

		if readErr != nil {
			if tail := r.finish(readErr); tail != "" {
				return r.deliver(tail), nil
			}
		}
	}
}

// Process reads the whole stream, calling fn for each fragment.
// Blocks until the stream ends, fails or the context is cancelled.
// A clean end of stream returns nil.
func (r *Reader) Process(ctx context.Context, fn FragmentCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			frag, err := r.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			if err := fn(frag); err != nil {
				return err
			}
		}
	}
}

// Stats returns statistics for the stream so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// finish records the end of the underlying reader and flushes the decoder.
// It returns any text released by the flush.
func (r *Reader) finish(readErr error) string {
	if !errors.Is(readErr, io.EOF) {
		r.fail(readErr)
		return ""
	}
	tail, err := r.dec.Close()
	if err != nil {
		r.fail(err)
		return ""
	}
	r.err = io.EOF
	r.stats.EndTime = time.Now()
	return tail
}

func (r *Reader) fail(err error) error {
	r.err = err
	r.stats.EndTime = time.Now()
	return err
}

func (r *Reader) deliver(frag string) string {
	if r.stats.Fragments == 0 {
		r.stats.FirstFragment = time.Now()
	}
	r.stats.Fragments++
	return frag
}
