// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat screen for LexAI.
//
// The screen is a view over a session.Manager. Every submit goes through a
// session.Gate, so an Enter press while an answer streams or with a blank
// draft is dropped without any visible effect. Session observer events are
// delivered to the program as SessionEventMsg; fragment events only mark the
// transcript dirty and a RenderThrottle caps redraws at 30 frames per second.
//
// Finished assistant entries are rendered as markdown with glamour and cached
// by entry ID. Failed answers carry the fixed apology and are drawn like any
// other finished answer.
//
// Use Run for the full-screen program, or New to embed the model.
package chat
