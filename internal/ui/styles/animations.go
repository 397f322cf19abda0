// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "time"

// =============================================================================
// SPINNER ANIMATIONS
// =============================================================================

// LineSpinner - Simple line rotation
var LineSpinner = SpinnerConfig{
	Frames: []string{"|", "/", "-", "\\"},
	FPS:    10,
}

// DotsSpinner - Classic three-dot animation
var DotsSpinner = SpinnerConfig{
	Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "},
	FPS:    6,
}

// SpinnerConfig holds the configuration for a spinner animation.
type SpinnerConfig struct {
	Frames []string
	FPS    int
}

// Duration returns the duration for each frame.
func (s SpinnerConfig) Duration() time.Duration {
	if s.FPS <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(s.FPS)
}

// =============================================================================
// STREAMING CURSOR
// =============================================================================

// TypingCursor frames alternate on the streaming placeholder.
var TypingCursor = []string{"_", " "}

// CursorBlinkRate is the interval between TypingCursor frames.
var CursorBlinkRate = 530 * time.Millisecond

// CursorFrame returns the cursor frame shown at elapsed time since the
// stream started.
func CursorFrame(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	return TypingCursor[int(elapsed/CursorBlinkRate)%len(TypingCursor)]
}
