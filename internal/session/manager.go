// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs chat exchanges against the streaming query endpoint.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trygodson/llamatest/internal/model"
	"github.com/trygodson/llamatest/internal/query"
	"github.com/trygodson/llamatest/internal/stream"
	"github.com/trygodson/llamatest/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// DefaultGreeting seeds every new transcript.
const DefaultGreeting = "Hello! I'm your legal AI assistant. I can help you with legal research, " +
	"document analysis, and case preparation. How can I assist you today?"

// FailureMessage replaces the assistant entry when an exchange fails.
const FailureMessage = "I apologize, but I encountered an error while processing your request. " +
	"Please try again later."

// =============================================================================
// ERRORS
// =============================================================================

// Admission errors. Submit returns them without touching any state; callers
// treat them as a dropped intent, not a fault.
var (
	ErrEmptySubmission  = errors.New("submission is empty")
	ErrExchangeInFlight = errors.New("an exchange is already in flight")
)

// Failure causes recorded on an Exchange.
var (
	ErrStreamIdle    = errors.New("answer stream idle timeout")
	ErrNoAnswerBody  = errors.New("query returned no answer body")
	ErrExchangePanic = errors.New("exchange panicked")
)

// IsAdmissionError reports whether err means the submission was not admitted.
func IsAdmissionError(err error) bool {
	return errors.Is(err, ErrEmptySubmission) || errors.Is(err, ErrExchangeInFlight)
}

// =============================================================================
// QUERIER
// =============================================================================

// Querier opens an answer stream for a question. *query.Client implements it.
type Querier interface {
	Ask(ctx context.Context, question string) (*query.Response, error)
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns one chat session: the transcript, the draft text and the
// single-flight flag. At most one exchange runs at a time.
type Manager struct {
	mu sync.Mutex

	// Session tracking
	sessionID  string
	startTime  time.Time
	transcript *model.Transcript
	draft      string

	// RELIABILITY: CAS on inFlight is the only admission control
	inFlight atomic.Bool

	querier Querier

	// Streaming configuration
	greeting    string
	idleTimeout time.Duration
	mode        stream.Mode
	chunkSize   int

	// Counters
	exchanges int
	failures  int
	last      *Exchange

	base     *slog.Logger
	logger   *slog.Logger
	observer func(Event)
}

// Config holds configuration for the session manager.
type Config struct {
	// Greeting seeds the transcript (default: DefaultGreeting)
	Greeting string

	// StreamIdleTimeout fails an exchange when no bytes arrive for this long.
	// Zero disables the check. (default: 2 minutes)
	StreamIdleTimeout time.Duration

	// DecodeMode controls malformed UTF-8 handling (default: fail)
	DecodeMode stream.Mode

	// ChunkSize is the read buffer for answer bodies (default: 4096)
	ChunkSize int

	// Logger receives exchange logs (default: slog.Default())
	Logger *slog.Logger
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Greeting:          DefaultGreeting,
		StreamIdleTimeout: 2 * time.Minute,
		DecodeMode:        stream.ModeFail,
		ChunkSize:         stream.DefaultChunkSize,
	}
}

// NewManager creates a session manager with a seeded transcript.
func NewManager(q Querier, cfg Config) *Manager {
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.DecodeMode == "" {
		cfg.DecodeMode = stream.ModeFail
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = stream.DefaultChunkSize
	}
	if cfg.StreamIdleTimeout < 0 {
		cfg.StreamIdleTimeout = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		sessionID:   uuid.NewString(),
		startTime:   time.Now(),
		querier:     q,
		greeting:    cfg.Greeting,
		idleTimeout: cfg.StreamIdleTimeout,
		mode:        cfg.DecodeMode,
		chunkSize:   cfg.ChunkSize,
	}
	m.transcript = model.NewSeededTranscript(m.greeting)
	m.base = logger
	m.logger = logger.With("session_id", m.sessionID)
	return m
}

// =============================================================================
// SESSION STATE
// =============================================================================

// SessionID returns the current session ID.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Transcript returns the session transcript. Renderers may read it at any
// time; only the manager mutates it.
func (m *Manager) Transcript() *model.Transcript {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript
}

// InFlight reports whether an exchange is running.
func (m *Manager) InFlight() bool {
	return m.inFlight.Load()
}

// Draft returns the unsent input text.
func (m *Manager) Draft() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft
}

// SetDraft replaces the unsent input text.
func (m *Manager) SetDraft(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = text
}

// SetObserver sets the function called for every session event. Events are
// delivered from the goroutine running the exchange, outside any lock.
func (m *Manager) SetObserver(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// SetStreamIdleTimeout updates the idle timeout for future exchanges.
func (m *Manager) SetStreamIdleTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = d
}

// StreamIdleTimeout returns the current idle timeout.
func (m *Manager) StreamIdleTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idleTimeout
}

// Reset discards the transcript and starts a new session with a fresh seed.
// It fails while an exchange is in flight.
func (m *Manager) Reset() error {
	if !m.inFlight.CompareAndSwap(false, true) {
		return ErrExchangeInFlight
	}
	defer m.inFlight.Store(false)

	m.mu.Lock()
	m.sessionID = uuid.NewString()
	m.startTime = time.Now()
	m.transcript = model.NewSeededTranscript(m.greeting)
	m.draft = ""
	m.exchanges, m.failures, m.last = 0, 0, nil
	m.logger = m.base.With("session_id", m.sessionID)
	m.mu.Unlock()

	m.emit(Event{Type: EventReset})
	return nil
}

// =============================================================================
// SUBMIT
// =============================================================================

// Exchange describes one admitted submission and its result.
type Exchange struct {
	Question         string
	UserEntryID      uint64
	AssistantEntryID uint64
	Outcome          model.Outcome
	Cause            error // set only when Outcome is OutcomeFailed
	Started          time.Time
	Finished         time.Time
	Stats            stream.Stats
}

// Duration returns how long the exchange took.
func (e *Exchange) Duration() time.Duration {
	return e.Finished.Sub(e.Started)
}

// Failed reports whether the exchange ended on the failure path.
func (e *Exchange) Failed() bool {
	return e.Outcome == model.OutcomeFailed
}

// Submit runs one exchange to completion and returns its result.
//
// An empty submission or one made while another exchange is in flight
// returns an admission error and has no effect. Every admitted submission
// returns a nil error; failures are reported through Exchange.Outcome and
// the transcript.
func (m *Manager) Submit(ctx context.Context, text string) (*Exchange, error) {
	ex, tr, err := m.admit(text)
	if err != nil {
		return nil, err
	}
	m.run(ctx, ex, tr)
	return ex, nil
}

// SubmitAsync admits the submission and runs the exchange on a new goroutine.
// The returned channel receives the finished exchange and is then closed.
func (m *Manager) SubmitAsync(ctx context.Context, text string) (<-chan *Exchange, error) {
	ex, tr, err := m.admit(text)
	if err != nil {
		return nil, err
	}
	done := make(chan *Exchange, 1)
	go func() {
		defer close(done)
		m.run(ctx, ex, tr)
		done <- ex
	}()
	return done, nil
}

// admit checks preconditions, sets inFlight and appends the user entry and
// the streaming placeholder.
func (m *Manager) admit(text string) (ex *Exchange, tr *model.Transcript, err error) {
	if strings.TrimSpace(text) == "" {
		m.log().Debug("submission dropped", "reason", ErrEmptySubmission.Error())
		return nil, nil, ErrEmptySubmission
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		m.log().Debug("submission dropped", "reason", ErrExchangeInFlight.Error())
		return nil, nil, ErrExchangeInFlight
	}
	defer func() {
		if r := recover(); r != nil {
			m.inFlight.Store(false)
			panic(r)
		}
	}()

	m.mu.Lock()
	tr = m.transcript
	m.mu.Unlock()

	if stuck, ok := tr.Streaming(); ok {
		m.inFlight.Store(false)
		m.log().Warn("submission dropped", "reason", "entry still streaming", "entry_id", stuck.ID)
		return nil, nil, ErrExchangeInFlight
	}

	m.mu.Lock()
	m.draft = ""
	m.mu.Unlock()

	user := tr.Append(model.RoleUser, text, model.LifecycleComplete)
	placeholder := tr.Append(model.RoleAssistant, "", model.LifecycleStreaming)

	ex = &Exchange{
		Question:         text,
		UserEntryID:      user.ID,
		AssistantEntryID: placeholder.ID,
		Started:          time.Now(),
	}

	m.log().Info("exchange started",
		"user_entry", user.ID,
		"entry_id", placeholder.ID,
		"question_len", len(text))
	return ex, tr, nil
}

// run streams the answer into the placeholder. inFlight is cleared on every
// exit path. A panic in the querier or the observer fails the exchange
// instead of unwinding further.
func (m *Manager) run(ctx context.Context, ex *Exchange, tr *model.Transcript) {
	defer func() {
		if r := recover(); r != nil {
			m.recoverExchange(ex, tr, r)
		}
		ex.Finished = time.Now()
		m.record(ex)
		m.inFlight.Store(false)
		m.emitQuiet(Event{Type: EventIdle, EntryID: ex.AssistantEntryID, Outcome: ex.Outcome})
	}()

	m.emit(Event{Type: EventEntryAppended, EntryID: ex.UserEntryID})
	m.emit(Event{Type: EventEntryAppended, EntryID: ex.AssistantEntryID})

	stats, err := m.stream(ctx, ex, tr)
	ex.Stats = stats
	if err != nil {
		m.fail(ex, tr, err)
		return
	}

	tr.Finalize(ex.AssistantEntryID, model.OutcomeComplete)
	ex.Outcome = model.OutcomeComplete

	m.log().Info("exchange complete",
		"entry_id", ex.AssistantEntryID,
		"fragments", stats.Fragments,
		"bytes", stats.Bytes,
		"ttff", stats.TTFF(),
		"duration", time.Since(ex.Started))
	m.emit(Event{Type: EventFinalized, EntryID: ex.AssistantEntryID, Outcome: model.OutcomeComplete})
}

// stream issues the query and folds every fragment into the placeholder.
func (m *Manager) stream(ctx context.Context, ex *Exchange, tr *model.Transcript) (stream.Stats, error) {
	if m.querier == nil {
		return stream.Stats{}, errors.New("no query client configured")
	}

	m.mu.Lock()
	idle, mode, chunkSize := m.idleTimeout, m.mode, m.chunkSize
	m.mu.Unlock()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	resp, err := m.querier.Ask(ctx, ex.Question)
	if err != nil {
		return stream.Stats{}, err
	}
	if resp == nil || resp.Body == nil {
		return stream.Stats{}, ErrNoAnswerBody
	}
	raw := resp.Body
	body := raw
	defer raw.Close()

	if idle > 0 {
		// closing the body unblocks reads that ignore ctx
		wd := newIdleWatchdog(body, idle, func() {
			cancel(ErrStreamIdle)
			raw.Close()
		})
		defer wd.Stop()
		body = wd
	}

	reader := stream.NewReaderMode(body, mode, chunkSize)
	err = reader.Process(ctx, func(fragment string) error {
		tr.AppendContent(ex.AssistantEntryID, fragment)
		m.emit(Event{Type: EventFragment, EntryID: ex.AssistantEntryID, Fragment: fragment})
		return nil
	})
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, ErrStreamIdle) {
			err = fmt.Errorf("%w after %s", ErrStreamIdle, idle)
		}
		return reader.Stats(), err
	}
	return reader.Stats(), nil
}

// fail replaces the placeholder with the apology and records the cause.
func (m *Manager) fail(ex *Exchange, tr *model.Transcript, cause error) {
	tr.UpdateContent(ex.AssistantEntryID, FailureMessage)
	tr.Finalize(ex.AssistantEntryID, model.OutcomeFailed)
	ex.Outcome = model.OutcomeFailed
	ex.Cause = cause

	m.log().Warn("exchange failed",
		"entry_id", ex.AssistantEntryID,
		"cause", describeCause(cause),
		"error", cause,
		"duration", time.Since(ex.Started))
	m.emit(Event{Type: EventFinalized, EntryID: ex.AssistantEntryID, Outcome: model.OutcomeFailed})
}

// recoverExchange fails the placeholder after a panic. An entry that was
// already finalized keeps its outcome and ex already records it.
func (m *Manager) recoverExchange(ex *Exchange, tr *model.Transcript, r any) {
	cause := fmt.Errorf("%w: %v", ErrExchangePanic, r)
	m.log().Error("exchange panicked",
		"entry_id", ex.AssistantEntryID,
		"panic", fmt.Sprint(r),
		"stack", string(debug.Stack()))

	if entry, ok := tr.Get(ex.AssistantEntryID); !ok || !entry.IsStreaming() {
		return
	}
	tr.UpdateContent(ex.AssistantEntryID, FailureMessage)
	tr.Finalize(ex.AssistantEntryID, model.OutcomeFailed)
	ex.Outcome = model.OutcomeFailed
	ex.Cause = cause
	m.emitQuiet(Event{Type: EventFinalized, EntryID: ex.AssistantEntryID, Outcome: model.OutcomeFailed})
}

func (m *Manager) record(ex *Exchange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges++
	if ex.Failed() {
		m.failures++
	}
	m.last = ex
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	fn := m.observer
	m.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
}

// emitQuiet delivers ev and logs an observer panic instead of propagating it.
func (m *Manager) emitQuiet(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log().Error("observer panicked", "event", ev.Type.String(), "panic", fmt.Sprint(r))
		}
	}()
	m.emit(ev)
}

func (m *Manager) log() *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logger
}

func describeCause(err error) string {
	var de *stream.DecodeError
	switch {
	case errors.Is(err, ErrStreamIdle):
		return "idle_timeout"
	case errors.As(err, &de):
		return "decode"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var ce *query.ClientError
	if errors.As(err, &ce) {
		return query.Describe(err)
	}
	return "transport"
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status represents the current session status.
type Status struct {
	SessionID string
	StartTime time.Time
	Duration  time.Duration
	InFlight  bool
	Exchanges int
	Failures  int
	Entries   int
	Last      *Exchange
}

// GetStatus returns the current session status.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		SessionID: m.sessionID,
		StartTime: m.startTime,
		Duration:  time.Since(m.startTime),
		InFlight:  m.inFlight.Load(),
		Exchanges: m.exchanges,
		Failures:  m.failures,
		Entries:   m.transcript.Len(),
		Last:      m.last,
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		secs := int(d.Seconds())
		return util.IntToString(secs) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return util.IntToString(mins) + "m"
	}
	return util.IntToString(mins) + "m " + util.IntToString(secs) + "s"
}
