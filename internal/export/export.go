// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/trygodson/llamatest/internal/model"
	"github.com/trygodson/llamatest/internal/util"
)

// =============================================================================
// CONVERSATION SNAPSHOT
// =============================================================================

// Entry is one exported turn. Failed answers carry the apology text and are
// not marked differently from complete ones.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a point-in-time copy of a transcript.
type Conversation struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Entries   []Entry   `json:"entries"`
}

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("conversation has no entries")

// FromTranscript snapshots tr.
func FromTranscript(sessionID string, started time.Time, tr *model.Transcript) *Conversation {
	entries := tr.Entries()
	conv := &Conversation{
		SessionID: sessionID,
		StartedAt: started,
		Entries:   make([]Entry, 0, len(entries)),
	}
	for _, e := range entries {
		conv.Entries = append(conv.Entries, Entry{
			Role:      e.Role.String(),
			Content:   e.Content,
			CreatedAt: e.CreatedAt,
		})
	}
	return conv
}

// Title is the first question asked, or "conversation".
func (c *Conversation) Title() string {
	for _, e := range c.Entries {
		if e.Role == model.RoleUser.String() {
			return util.TruncateRunes(util.FirstLine(e.Content), 60)
		}
	}
	return "conversation"
}

// =============================================================================
// EXPORTER INTERFACE
// =============================================================================

// Exporter renders a conversation in one format.
type Exporter interface {
	Export(conv *Conversation) ([]byte, error)

	// FileExtension returns the extension including the dot, e.g. ".md".
	FileExtension() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written (default: current directory).
	OutputDir string

	// IncludeTimestamps adds per-entry times to Markdown output.
	IncludeTimestamps bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeTimestamps: true,
	}
}

// ForFormat returns the exporter for "markdown", "md" or "json".
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "", "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports conv into opts.OutputDir and returns the file path. The
// file is owner-only.
func ToFile(conv *Conversation, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if conv == nil || len(conv.Entries) == 0 {
		return "", ErrEmpty
	}

	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	filename := fmt.Sprintf("lexai_%s_%s%s",
		sanitizeFilename(conv.Title()),
		time.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(path, content, 0600, 0700); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(s, 40)

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}
