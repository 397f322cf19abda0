// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// RENDER THROTTLE
// =============================================================================

const defaultMaxFPS = 30

// RenderThrottle caps transcript redraws while an answer streams.
// Fragments can arrive far faster than a terminal can repaint, so the
// view is rebuilt only when the transcript revision moved and at least
// one frame interval has passed since the last rebuild.
//
// The throttle is only touched from the Bubble Tea update loop.
type RenderThrottle struct {
	lastRevision uint64
	lastRender   time.Time
	minInterval  time.Duration
}

// NewRenderThrottle creates a throttle capped at 30 frames per second.
func NewRenderThrottle() *RenderThrottle {
	return NewRenderThrottleWithFPS(defaultMaxFPS)
}

// NewRenderThrottleWithFPS creates a throttle with a custom frame cap.
// Values outside 1..60 fall back to 30.
func NewRenderThrottleWithFPS(maxFPS int) *RenderThrottle {
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = defaultMaxFPS
	}
	return &RenderThrottle{
		minInterval: time.Second / time.Duration(maxFPS),
	}
}

// Due reports whether a redraw at now would show something new and is
// allowed by the frame cap.
func (r *RenderThrottle) Due(revision uint64, now time.Time) bool {
	if revision == r.lastRevision {
		return false
	}
	return now.Sub(r.lastRender) >= r.minInterval
}

// Stale reports whether the transcript changed since the last redraw.
func (r *RenderThrottle) Stale(revision uint64) bool {
	return revision != r.lastRevision
}

// Rendered records a redraw of revision at now.
func (r *RenderThrottle) Rendered(revision uint64, now time.Time) {
	r.lastRevision = revision
	r.lastRender = now
}

// Interval returns the minimum time between redraws.
func (r *RenderThrottle) Interval() time.Duration {
	return r.minInterval
}

// streamTickCmd schedules the next StreamTickMsg one frame from now.
func streamTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
