// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/trygodson/llamatest/internal/model"
	"github.com/trygodson/llamatest/internal/ui/styles"
)

// =============================================================================
// SCREEN
// =============================================================================

func (m Model) renderScreen() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatusBar(),
	)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("LexAI")
	subtitle := m.theme.HeaderSubtitle.Render("Legal AI Assistant")
	line := title + "  " + subtitle
	return m.theme.Header.Width(m.width).Render(line)
}

func (m Model) renderInput() string {
	frame := m.theme.InputContainer
	if m.gate.Manager().InFlight() {
		frame = m.theme.InputContainerBlocked
	}
	return frame.Width(m.width).Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.gate.Manager().InFlight():
		left = m.spinner.View() + " " + m.theme.ThinkingText.Render("Answering...")
	case m.lastExchange != nil:
		left = "Answered in " + m.lastExchange.Duration().Round(100*time.Millisecond).String()
	default:
		left = "Ready"
	}

	var help []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		help = append(help, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	right := strings.Join(help, "  ")
	if m.theme.GetLayoutMode() == styles.LayoutNarrow {
		right = ""
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		right = ""
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m *Model) renderTranscript(entries []model.ConversationEntry, now time.Time) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderEntry(e, now))
		b.WriteString("\n")
	}
	return b.String()
}

// renderEntry draws one transcript entry. Failed answers are drawn exactly
// like finished ones.
func (m *Model) renderEntry(e model.ConversationEntry, now time.Time) string {
	width := m.theme.BubbleWidth(m.wordWrap)
	stamp := m.theme.Timestamp.Render(e.Timestamp())

	if e.Role == model.RoleUser {
		label := m.theme.UserLabel.Render(e.Role.DisplayName())
		return label + "  " + stamp + "\n" + m.theme.UserBubble.Width(width).Render(e.Content)
	}

	label := m.theme.AssistantLabel.Render(e.Role.DisplayName())
	var body string
	switch e.Lifecycle.Rendered() {
	case model.LifecycleStreaming:
		if e.IsEmpty() {
			body = m.spinner.View() + " " + m.theme.ThinkingText.Render("Thinking...")
		} else {
			body = e.Content + m.theme.Cursor.Render(styles.CursorFrame(now.Sub(m.streamStart)))
		}
	default:
		body = m.finished(e)
	}
	return label + "  " + stamp + "\n" + m.theme.AssistantBubble.Width(width).Render(body)
}

// finished returns the body of a terminal assistant entry, rendered as
// markdown when enabled. Results are cached by entry ID.
func (m *Model) finished(e model.ConversationEntry) string {
	if m.renderer == nil {
		return e.Content
	}
	if out, ok := m.rendered[e.ID]; ok {
		return out
	}
	out, err := m.renderer.Render(e.Content)
	if err != nil {
		m.logger.Debug("markdown render failed", "entry_id", e.ID, "error", err)
		out = e.Content
	}
	out = strings.Trim(out, "\n")
	if strings.TrimSpace(out) == "" {
		out = e.Content
	}
	m.rendered[e.ID] = out
	return out
}
