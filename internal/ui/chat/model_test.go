// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trygodson/llamatest/internal/config"
	"github.com/trygodson/llamatest/internal/model"
	"github.com/trygodson/llamatest/internal/query"
	"github.com/trygodson/llamatest/internal/session"
	"github.com/trygodson/llamatest/internal/ui/styles"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type scriptedQuerier struct {
	calls atomic.Int32
	open  func() (io.ReadCloser, error)
}

func (q *scriptedQuerier) Ask(_ context.Context, _ string) (*query.Response, error) {
	q.calls.Add(1)
	body, err := q.open()
	if err != nil {
		return nil, err
	}
	return &query.Response{Body: body, StatusCode: 200}, nil
}

func answering(text string) *scriptedQuerier {
	return &scriptedQuerier{open: func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(text)), nil
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestModel(t *testing.T, q session.Querier) (Model, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(q, session.Config{Logger: discardLogger()})
	m := New(session.NewGate(mgr), Options{
		Theme:    styles.NewTheme(styles.ModeDark),
		WordWrap: 80,
		Logger:   discardLogger(),
	})
	m = step(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, mgr
}

func step(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func typeText(m Model, text string) Model {
	return step(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func enter(m Model) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func waitIdle(t *testing.T, mgr *session.Manager) {
	t.Helper()
	require.Eventually(t, func() bool { return !mgr.InFlight() }, 2*time.Second, 5*time.Millisecond)
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestModel_SubmitStreamsAnswer(t *testing.T) {
	q := answering("The answer is 42.")
	m, mgr := newTestModel(t, q)

	m = typeText(m, "What is the answer?")
	m, cmd := enter(m)
	require.NotNil(t, cmd, "admitted submit should return commands")
	assert.Empty(t, m.Draft(), "input should be cleared after admission")

	waitIdle(t, mgr)
	m = step(m, StreamTickMsg{Time: time.Now().Add(time.Second)})

	last, ok := mgr.Transcript().Last()
	require.True(t, ok)
	assert.Equal(t, "The answer is 42.", last.Content)
	assert.Equal(t, model.LifecycleComplete, last.Lifecycle)

	view := m.View()
	assert.Contains(t, view, "What is the answer?")
	assert.Contains(t, view, "The answer is 42.")
	assert.Equal(t, int32(1), q.calls.Load())
}

func TestModel_BlankDraftIsDropped(t *testing.T) {
	q := answering("x")
	m, mgr := newTestModel(t, q)

	m = typeText(m, "   ")
	m, cmd := enter(m)

	assert.Nil(t, cmd)
	assert.Equal(t, int32(0), q.calls.Load())
	assert.Equal(t, 1, mgr.Transcript().Len())
	assert.Equal(t, "   ", m.Draft(), "dropped intent keeps the draft")
}

func TestModel_SubmitWhileInFlightIsDropped(t *testing.T) {
	pr, pw := io.Pipe()
	q := &scriptedQuerier{open: func() (io.ReadCloser, error) { return pr, nil }}
	m, mgr := newTestModel(t, q)

	m = typeText(m, "first")
	m, _ = enter(m)
	require.Eventually(t, func() bool { return q.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, mgr.InFlight())

	m = typeText(m, "second")
	m, cmd := enter(m)
	assert.Nil(t, cmd)
	assert.Equal(t, "second", m.Draft(), "draft stays editable while an answer streams")
	assert.Equal(t, int32(1), q.calls.Load())
	assert.Equal(t, 3, mgr.Transcript().Len())

	_, _ = pw.Write([]byte("partial"))
	require.Eventually(t, func() bool {
		last, _ := mgr.Transcript().Last()
		return last.Content == "partial"
	}, time.Second, 5*time.Millisecond)

	m = step(m, StreamTickMsg{Time: time.Now().Add(time.Second)})
	assert.Contains(t, m.View(), "partial")

	require.NoError(t, pw.Close())
	waitIdle(t, mgr)

	// The gate reopens once the stream is done.
	m, cmd = enter(m)
	assert.NotNil(t, cmd)
	waitIdle(t, mgr)
	assert.Equal(t, int32(2), q.calls.Load())
}

func TestModel_NewlineDoesNotSubmit(t *testing.T) {
	q := answering("x")
	m, _ := newTestModel(t, q)

	m = typeText(m, "line one")
	m = step(m, tea.KeyMsg{Type: tea.KeyEnter, Alt: true})
	m = typeText(m, "line two")

	assert.Equal(t, "line one\nline two", m.Draft())
	assert.Equal(t, int32(0), q.calls.Load())
}

func TestModel_FailedAnswerShowsApologyOnly(t *testing.T) {
	q := &scriptedQuerier{open: func() (io.ReadCloser, error) {
		return nil, errors.New("dial tcp 127.0.0.1:8000: connection refused")
	}}
	m, mgr := newTestModel(t, q)

	m = typeText(m, "hello")
	m, _ = enter(m)
	waitIdle(t, mgr)

	next, _ := m.Update(ExchangeDoneMsg{Exchange: mgr.GetStatus().Last})
	m = next.(Model)

	last, _ := mgr.Transcript().Last()
	require.True(t, last.IsFailed())

	view := m.View()
	assert.Contains(t, view, "I apologize")
	assert.NotContains(t, view, "connection refused")
	require.NotNil(t, m.LastExchange())
	assert.True(t, m.LastExchange().Failed())
}

// =============================================================================
// OTHER KEYS AND MESSAGES
// =============================================================================

func TestModel_ClearStartsNewConversation(t *testing.T) {
	m, mgr := newTestModel(t, answering("ok"))
	oldID := mgr.SessionID()

	m = typeText(m, "q")
	m, _ = enter(m)
	waitIdle(t, mgr)
	require.Equal(t, 3, mgr.Transcript().Len())

	m = step(m, tea.KeyMsg{Type: tea.KeyCtrlL})

	assert.Equal(t, 1, mgr.Transcript().Len())
	assert.NotEqual(t, oldID, mgr.SessionID())
	assert.Nil(t, m.LastExchange())
	assert.Contains(t, m.View(), "LexAI")
}

func TestModel_QuitKey(t *testing.T) {
	m, _ := newTestModel(t, answering("x"))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, next.(Model).View())
}

func TestModel_ConfigReloadAppliesIdleTimeout(t *testing.T) {
	m, mgr := newTestModel(t, answering("x"))

	cfg := config.Default()
	cfg.Chat.StreamIdleTimeout = 7
	cfg.UI.Markdown = true
	m = step(m, ConfigReloadedMsg{Config: cfg})

	assert.Equal(t, 7*time.Second, mgr.StreamIdleTimeout())
	assert.True(t, m.markdown)
	assert.NotNil(t, m.renderer)

	// nil config is ignored
	m = step(m, ConfigReloadedMsg{})
	assert.Equal(t, 7*time.Second, mgr.StreamIdleTimeout())
}

func TestModel_ViewBeforeResize(t *testing.T) {
	mgr := session.NewManager(answering("x"), session.Config{Logger: discardLogger()})
	m := New(session.NewGate(mgr), Options{Theme: styles.NewTheme(styles.ModeLight)})
	assert.Equal(t, "Starting LexAI...", m.View())
}

func TestModel_MarkdownIsCachedPerEntry(t *testing.T) {
	mgr := session.NewManager(answering("**bold** answer"), session.Config{Logger: discardLogger()})
	m := New(session.NewGate(mgr), Options{
		Theme:    styles.NewTheme(styles.ModeDark),
		Markdown: true,
		Logger:   discardLogger(),
	})
	m = step(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	require.NotNil(t, m.renderer)

	greeting, _ := mgr.Transcript().Last()
	_, cached := m.rendered[greeting.ID]
	assert.True(t, cached, "greeting should be rendered on first draw")

	m = step(m, tea.WindowSizeMsg{Width: 60, Height: 30})
	_, cached = m.rendered[greeting.ID]
	assert.True(t, cached, "resize re-renders at the new width")
}

// =============================================================================
// RENDER THROTTLE TESTS
// =============================================================================

func TestRenderThrottle(t *testing.T) {
	r := NewRenderThrottle()
	start := time.Now()

	assert.True(t, r.Due(1, start), "new revision with no prior render is due")
	r.Rendered(1, start)

	assert.False(t, r.Due(1, start.Add(time.Second)), "same revision is never due")
	assert.False(t, r.Due(2, start.Add(time.Millisecond)), "frame cap not yet reached")
	assert.True(t, r.Stale(2))
	assert.True(t, r.Due(2, start.Add(r.Interval())))
}

func TestNewRenderThrottleWithFPS(t *testing.T) {
	tests := []struct {
		fps  int
		want time.Duration
	}{
		{60, time.Second / 60},
		{10, 100 * time.Millisecond},
		{0, time.Second / 30},
		{120, time.Second / 30},
	}
	for _, tc := range tests {
		if got := NewRenderThrottleWithFPS(tc.fps).Interval(); got != tc.want {
			t.Errorf("NewRenderThrottleWithFPS(%d).Interval() = %v, want %v", tc.fps, got, tc.want)
		}
	}
}
