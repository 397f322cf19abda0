// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/trygodson/llamatest/internal/session"
	"github.com/trygodson/llamatest/internal/ui/styles"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	headerHeight    = 1
	statusBarHeight = 1
	inputHeight     = 3
	// input rows plus the top border
	inputFrameHeight = inputHeight + 1
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the chat screen.
type Options struct {
	// Theme styles the screen (default: auto-detected theme)
	Theme *styles.Theme

	// Markdown renders finished assistant entries with glamour
	Markdown bool

	// WordWrap caps the bubble width in columns (0: terminal width)
	WordWrap int

	// Context is the parent context for exchanges (default: Background)
	Context context.Context

	// Logger receives UI debug logs (default: slog.Default())
	Logger *slog.Logger
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen. It renders the
// session transcript and forwards submit intents through the gate.
type Model struct {
	gate   *session.Gate
	theme  *styles.Theme
	keys   KeyMap
	ctx    context.Context
	logger *slog.Logger

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	// Markdown rendering
	markdown      bool
	wordWrap      int
	renderer      *glamour.TermRenderer
	rendererWidth int
	rendered      map[uint64]string // finished entries are immutable

	throttle    *RenderThrottle
	streamStart time.Time
	cursor      string // last drawn cursor frame
	ticking     bool

	width  int
	height int
	ready  bool
	follow bool // keep the viewport pinned to the newest entry

	lastExchange *session.Exchange
	quitting     bool
}

// New creates the chat model for gate.
func New(gate *session.Gate, opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(styles.ModeAuto)
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ta := textarea.New()
	ta.Placeholder = "Ask a legal question..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = DefaultKeyMap().Newline
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: styles.LineSpinner.Frames,
		FPS:    styles.LineSpinner.Duration(),
	}
	sp.Style = opts.Theme.Spinner

	m := Model{
		gate:     gate,
		theme:    opts.Theme,
		keys:     DefaultKeyMap(),
		ctx:      opts.Context,
		logger:   opts.Logger,
		viewport: viewport.New(80, 20),
		input:    ta,
		spinner:  sp,
		markdown: opts.Markdown,
		wordWrap: opts.WordWrap,
		rendered: make(map[uint64]string),
		throttle: NewRenderThrottle(),
		follow:   true,
	}
	gate.SetDraft("")
	return m
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follow = m.viewport.AtBottom()
		return m, cmd

	case SessionEventMsg:
		return m.handleSessionEvent(msg)

	case StreamTickMsg:
		return m.handleStreamTick(msg)

	case ExchangeDoneMsg:
		return m.handleExchangeDone(msg)

	case ConfigReloadedMsg:
		return m.handleConfigReloaded(msg)

	case spinner.TickMsg:
		if !m.gate.Manager().InFlight() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting LexAI..."
	}
	return m.renderScreen()
}

// =============================================================================
// HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width, m.height = msg.Width, msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	vpHeight := msg.Height - headerHeight - statusBarHeight - inputFrameHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = msg.Width
	m.viewport.Height = vpHeight
	m.input.SetWidth(msg.Width - 2)

	if width := m.theme.BubbleWidth(m.wordWrap); width != m.rendererWidth {
		m.resetRenderer(width)
	}
	m.ready = true
	m.refresh(time.Now())
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		m.follow = false
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		m.follow = m.viewport.AtBottom()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		m.follow = false
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		m.follow = true
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		if err := m.gate.Manager().Reset(); err != nil {
			m.logger.Debug("reset dropped", "error", err)
			return m, nil
		}
		m.afterReset()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.gate.SetDraft(m.input.Value())
	return m, cmd
}

// submit forwards the draft through the gate. A dropped intent leaves the
// screen untouched.
func (m Model) submit() (tea.Model, tea.Cmd) {
	m.gate.SetDraft(m.input.Value())
	done, ok := m.gate.SubmitAsync(m.ctx)
	if !ok {
		return m, nil
	}

	m.input.Reset()
	m.streamStart = time.Now()
	m.follow = true
	m.refresh(m.streamStart)

	cmds := []tea.Cmd{waitForExchange(done), m.spinner.Tick}
	if !m.ticking {
		m.ticking = true
		cmds = append(cmds, streamTickCmd(m.throttle.Interval()))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleSessionEvent(msg SessionEventMsg) (tea.Model, tea.Cmd) {
	switch msg.Event.Type {
	case session.EventFragment:
		// Picked up by the next stream tick.
		return m, nil
	case session.EventReset:
		m.afterReset()
	}
	m.refresh(time.Now())
	return m, nil
}

func (m Model) handleStreamTick(msg StreamTickMsg) (tea.Model, tea.Cmd) {
	mgr := m.gate.Manager()
	rev := mgr.Transcript().Revision()
	blink := mgr.InFlight() && styles.CursorFrame(msg.Time.Sub(m.streamStart)) != m.cursor
	if m.throttle.Due(rev, msg.Time) || blink {
		m.refresh(msg.Time)
	}
	if !mgr.InFlight() && !m.throttle.Stale(rev) {
		m.ticking = false
		return m, nil
	}
	return m, streamTickCmd(m.throttle.Interval())
}

func (m Model) handleExchangeDone(msg ExchangeDoneMsg) (tea.Model, tea.Cmd) {
	m.lastExchange = msg.Exchange
	if ex := msg.Exchange; ex != nil {
		m.logger.Debug("exchange finished",
			"entry_id", ex.AssistantEntryID,
			"outcome", ex.Outcome.String(),
			"duration", ex.Duration())
	}
	m.refresh(time.Now())
	return m, nil
}

func (m Model) handleConfigReloaded(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	cfg := msg.Config
	if cfg == nil {
		return m, nil
	}
	m.gate.Manager().SetStreamIdleTimeout(cfg.StreamIdleTimeout())
	m.markdown = cfg.UI.Markdown
	m.wordWrap = cfg.UI.WordWrap
	m.resetRenderer(m.theme.BubbleWidth(m.wordWrap))
	m.refresh(time.Now())
	m.logger.Info("config reloaded", "stream_idle_timeout", cfg.StreamIdleTimeout())
	return m, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// waitForExchange blocks on done and reports the finished exchange.
func waitForExchange(done <-chan *session.Exchange) tea.Cmd {
	return func() tea.Msg {
		return ExchangeDoneMsg{Exchange: <-done}
	}
}

// refresh rebuilds the viewport content from the transcript.
func (m *Model) refresh(now time.Time) {
	tr := m.gate.Manager().Transcript()
	rev := tr.Revision()
	m.cursor = styles.CursorFrame(now.Sub(m.streamStart))
	m.viewport.SetContent(m.renderTranscript(tr.Entries(), now))
	if m.follow {
		m.viewport.GotoBottom()
	}
	m.throttle.Rendered(rev, now)
}

func (m *Model) afterReset() {
	clear(m.rendered)
	m.input.Reset()
	m.lastExchange = nil
	m.follow = true
	m.refresh(time.Now())
}

// resetRenderer drops cached markdown and builds a renderer for width.
func (m *Model) resetRenderer(width int) {
	clear(m.rendered)
	m.rendererWidth = width
	m.renderer = nil
	if !m.markdown {
		return
	}

	style := styles.ModeLight
	if m.theme.IsDark {
		style = styles.ModeDark
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", "error", err)
		return
	}
	m.renderer = r
}

// LastExchange returns the most recently finished exchange, if any.
func (m Model) LastExchange() *session.Exchange {
	return m.lastExchange
}

// Draft returns the text currently in the input box.
func (m Model) Draft() string {
	return m.input.Value()
}
