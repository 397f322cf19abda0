// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"strings"
)

// =============================================================================
// INPUT GATE
// =============================================================================

// Gate is the admission check in front of a Manager. It drops submit
// intents while an exchange is in flight or the draft is blank.
type Gate struct {
	m *Manager
}

// NewGate creates a gate for m.
func NewGate(m *Manager) *Gate {
	return &Gate{m: m}
}

// Manager returns the gated manager.
func (g *Gate) Manager() *Manager {
	return g.m
}

// Allowed reports whether a submit intent would be forwarded.
func (g *Gate) Allowed() bool {
	return !g.m.InFlight() && strings.TrimSpace(g.m.Draft()) != ""
}

// SetDraft updates the draft text.
func (g *Gate) SetDraft(text string) {
	g.m.SetDraft(text)
}

// Draft returns the draft text.
func (g *Gate) Draft() string {
	return g.m.Draft()
}

// Submit forwards the draft and blocks until the exchange ends. It returns
// false, with no other effect, when the intent was dropped.
func (g *Gate) Submit(ctx context.Context) bool {
	if !g.Allowed() {
		return false
	}
	_, err := g.m.Submit(ctx, g.m.Draft())
	return err == nil
}

// SubmitAsync forwards the draft and returns immediately. The channel
// delivers the finished exchange. ok is false when the intent was dropped.
func (g *Gate) SubmitAsync(ctx context.Context) (done <-chan *Exchange, ok bool) {
	if !g.Allowed() {
		return nil, false
	}
	done, err := g.m.SubmitAsync(ctx, g.m.Draft())
	if err != nil {
		return nil, false
	}
	return done, true
}
