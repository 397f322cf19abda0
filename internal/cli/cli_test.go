// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trygodson/llamatest/internal/auth"
	"github.com/trygodson/llamatest/internal/config"
	"github.com/trygodson/llamatest/internal/devserver"
	"github.com/trygodson/llamatest/internal/documents"
	"github.com/trygodson/llamatest/internal/query"
	"github.com/trygodson/llamatest/internal/session"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// isolate points HOME at a temp dir and clears LEXAI_* overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range []string{"LEXAI_BASE_URL", "LEXAI_LOG_LEVEL", "LEXAI_STREAM_IDLE_TIMEOUT",
		"LEXAI_INVALID_UTF8", "LEXAI_PAGE_SIZE", auth.TokenEnv} {
		t.Setenv(env, "")
	}
	return home
}

func newBackend(t *testing.T) (*devserver.Server, string) {
	t.Helper()
	srv := devserver.New(nil, devserver.Options{
		ChunkSize:  4,
		ChunkDelay: -1,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

type result struct {
	out  string
	err  error
	code int
}

// run executes the root command with args and stdin.
func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return result{out: out.String(), err: err, code: GetExitCode(err)}
}

// =============================================================================
// VERSION / ASK
// =============================================================================

func TestVersion(t *testing.T) {
	isolate(t)
	r := run(t, "", "version")
	require.NoError(t, r.err)
	assert.True(t, strings.HasPrefix(r.out, "lexai "+Version), "got %q", r.out)
}

func TestAsk_StreamsAnswer(t *testing.T) {
	isolate(t)
	_, url := newBackend(t)

	r := run(t, "", "--base-url", url, "ask", "What", "is", "estoppel?")
	require.NoError(t, r.err)
	assert.Equal(t, devserver.CannedAnswer("What is estoppel?"), r.out)
}

func TestAsk_FailureShowsApology(t *testing.T) {
	isolate(t)
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	r := run(t, "", "--base-url", url, "ask", "hello")
	require.Error(t, r.err)
	assert.Equal(t, ExitNetworkError, r.code)
	assert.Contains(t, r.out, session.FailureMessage)
	assert.NotContains(t, r.out, "refused")
	assert.NotContains(t, r.err.Error(), "refused")
}

func TestAsk_BlankQuestion(t *testing.T) {
	isolate(t)
	_, url := newBackend(t)

	r := run(t, "", "--base-url", url, "ask", "  ")
	assert.Equal(t, ExitUsage, r.code)
}

func TestInvalidBaseURL(t *testing.T) {
	isolate(t)
	r := run(t, "", "--base-url", "ftp://example.com", "ask", "hi")
	assert.Equal(t, ExitUsage, r.code)
}

// =============================================================================
// AUTH
// =============================================================================

func TestLoginWhoamiLogout(t *testing.T) {
	home := isolate(t)
	srv, url := newBackend(t)
	require.NoError(t, srv.Store().AddUser("alice", "secret1"))

	r := run(t, "secret1\n", "--base-url", url, "login", "-u", "alice", "--password-stdin")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Logged in as alice")

	info, err := os.Stat(filepath.Join(home, ".lexai", "credentials.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	r = run(t, "", "whoami")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "alice")

	r = run(t, "", "logout")
	require.NoError(t, r.err)

	r = run(t, "", "whoami")
	assert.Equal(t, ExitAuthError, r.code)
}

func TestLogin_BadPassword(t *testing.T) {
	isolate(t)
	srv, url := newBackend(t)
	require.NoError(t, srv.Store().AddUser("alice", "secret1"))

	r := run(t, "wrong-pass\n", "--base-url", url, "login", "-u", "alice", "--password-stdin")
	assert.Equal(t, ExitAuthError, r.code)
	assert.Contains(t, r.err.Error(), "invalid username or password")
}

func TestLogin_PasswordStdinNeedsUsername(t *testing.T) {
	isolate(t)
	r := run(t, "secret1\n", "login", "--password-stdin")
	assert.Equal(t, ExitUsage, r.code)
}

func TestSignup(t *testing.T) {
	isolate(t)
	_, url := newBackend(t)

	r := run(t, "secret1\n", "--base-url", url, "signup", "-u", "bob", "--password-stdin")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Please log in")

	r = run(t, "short\n", "--base-url", url, "signup", "-u", "carol", "--password-stdin")
	assert.Equal(t, ExitUsage, r.code)
}

// =============================================================================
// DOCS
// =============================================================================

func loggedIn(t *testing.T) (*devserver.Server, string) {
	t.Helper()
	isolate(t)
	srv, url := newBackend(t)
	require.NoError(t, srv.Store().AddUser("alice", "secret1"))
	r := run(t, "secret1\n", "--base-url", url, "login", "-u", "alice", "--password-stdin")
	require.NoError(t, r.err)
	return srv, url
}

func TestDocsList(t *testing.T) {
	srv, url := loggedIn(t)

	r := run(t, "", "--base-url", url, "docs", "list")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "No documents found")

	srv.Store().AddDocument("alice", documents.Document{Title: "Office lease", Description: "2024 renewal", DocType: documents.DocTypeContract})
	srv.Store().AddDocument("alice", documents.Document{Title: "Appeal brief", Description: "ninth circuit", DocType: documents.DocTypeLegalBrief, Status: documents.StatusProcessing})

	r = run(t, "", "--base-url", url, "docs", "list")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Office lease")
	assert.Contains(t, r.out, "LEGAL BRIEF")
	assert.Contains(t, r.out, "Processing")
	assert.Contains(t, r.out, "Showing 1 to 2 of 2 documents")

	r = run(t, "", "--base-url", url, "docs", "list", "--type", "contract", "-o", "json")
	require.NoError(t, r.err)
	var docs []documents.Document
	require.NoError(t, json.Unmarshal([]byte(r.out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "Office lease", docs[0].Title)

	r = run(t, "", "--base-url", url, "docs", "list", "--all", "--search", "NINTH", "-o", "yaml")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "title: Appeal brief")
}

func TestDocsList_Validation(t *testing.T) {
	_, url := loggedIn(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad type", []string{"docs", "list", "--type", "memo"}},
		{"bad page", []string{"docs", "list", "--page", "0"}},
		{"bad format", []string{"docs", "list", "-o", "xml"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := run(t, "", append([]string{"--base-url", url}, tc.args...)...)
			if r.code != ExitUsage {
				t.Errorf("exit code = %d, want %d (err: %v)", r.code, ExitUsage, r.err)
			}
		})
	}
}

func TestDocs_NotLoggedIn(t *testing.T) {
	isolate(t)
	_, url := newBackend(t)

	r := run(t, "", "--base-url", url, "docs", "list")
	assert.Equal(t, ExitAuthError, r.code)
}

func TestDocsUploadDeleteStats(t *testing.T) {
	srv, url := loggedIn(t)

	path := filepath.Join(t.TempDir(), "brief.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0600))

	r := run(t, "", "--base-url", url, "docs", "upload", path,
		"--title", "Brief", "--description", "test", "--type", "legal_brief")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, `Uploaded "Brief"`)

	page := srv.Store().Page("alice", 1, 10)
	require.Len(t, page.Documents, 1)
	id := page.Documents[0].ID

	r = run(t, "", "--base-url", url, "docs", "stats", "-o", "json")
	require.NoError(t, r.err)
	var s documents.Summary
	require.NoError(t, json.Unmarshal([]byte(r.out), &s))
	assert.Equal(t, 1, s.Total)

	// no terminal, no --yes
	r = run(t, "", "--base-url", url, "docs", "delete", fmt.Sprint(id))
	assert.Equal(t, ExitUsage, r.code)

	r = run(t, "", "--base-url", url, "docs", "delete", fmt.Sprint(id), "--yes")
	require.NoError(t, r.err)
	assert.Empty(t, srv.Store().Page("alice", 1, 10).Documents)
}

func TestDocsUpload_RejectsOtherTypes(t *testing.T) {
	_, url := loggedIn(t)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain notes"), 0600))

	r := run(t, "", "--base-url", url, "docs", "upload", path,
		"--title", "Notes", "--description", "d", "--type", "other")
	assert.Equal(t, ExitUsage, r.code)
	assert.ErrorIs(t, r.err, documents.ErrUnsupportedFile)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfigInitGetSet(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".lexai", "config.toml")

	r := run(t, "", "config", "path")
	require.NoError(t, r.err)
	assert.Equal(t, path, strings.TrimSpace(r.out))

	r = run(t, "", "config", "init")
	require.NoError(t, r.err)
	_, err := os.Stat(path)
	require.NoError(t, err)

	r = run(t, "", "config", "init")
	assert.Equal(t, ExitUsage, r.code, "init refuses to overwrite without --force")

	r = run(t, "", "config", "set", "chat.stream_idle_timeout", "45")
	require.NoError(t, r.err)

	r = run(t, "", "config", "get", "chat.stream_idle_timeout")
	require.NoError(t, r.err)
	assert.Equal(t, "45", strings.TrimSpace(r.out))

	r = run(t, "", "config", "set", "ui.theme", "neon")
	assert.Equal(t, ExitUsage, r.code)

	r = run(t, "", "config", "get", "ui.nothing")
	assert.Equal(t, ExitUsage, r.code)

	r = run(t, "", "config", "show", "-o", "yaml")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "stream_idle_timeout: 45")

	r = run(t, "", "config", "validate")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "is valid")
}

func TestBrokenConfig(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".lexai")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("[chat]\ninvalid_utf8 = \"bogus\"\n"), 0600))

	r := run(t, "", "whoami")
	assert.Equal(t, ExitConfigError, r.code)

	r = run(t, "", "config", "validate")
	assert.Equal(t, ExitConfigError, r.code)
	assert.Contains(t, r.err.Error(), "chat.invalid_utf8")

	r = run(t, "", "config", "show")
	require.NoError(t, r.err, "config commands run on defaults")
	assert.Contains(t, r.out, "invalid_utf8 = \"fail\"")
}

// =============================================================================
// CHAT LOOP
// =============================================================================

type scriptedLines struct {
	lines   []string
	history []string
}

func (s *scriptedLines) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedLines) AppendHistory(item string) { s.history = append(s.history, item) }
func (s *scriptedLines) Close() error              { return nil }

func TestChatLoop(t *testing.T) {
	isolate(t)
	_, url := newBackend(t)

	mgr := session.NewManager(query.NewClientWithConfig(&query.ClientConfig{BaseURL: url}),
		session.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	lines := &scriptedLines{lines: []string{"/help", "", "Is a verbal contract binding?", "/status", "/clear", "/bogus", "/exit", "never read"}}

	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), &out, lines, mgr))

	text := out.String()
	assert.Contains(t, text, session.DefaultGreeting)
	assert.Contains(t, text, "/status")
	assert.Contains(t, text, "You asked: “Is a verbal contract binding?”")
	assert.Contains(t, text, "Started a new conversation")
	assert.Contains(t, text, "unknown command /bogus")
	assert.Equal(t, []string{"/help", "Is a verbal contract binding?", "/status", "/clear", "/bogus", "/exit"}, lines.history)
	assert.Equal(t, []string{"never read"}, lines.lines)
	assert.Equal(t, 1, mgr.Transcript().Len(), "cleared transcript holds only the greeting")
}

func TestChatLoop_CancelledContext(t *testing.T) {
	mgr := session.NewManager(query.NewClient(), session.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lines := &scriptedLines{lines: []string{"hello"}}
	require.NoError(t, chatLoop(ctx, io.Discard, lines, mgr))
	assert.Len(t, lines.lines, 1, "no prompt after cancellation")
}

func TestExportTranscript(t *testing.T) {
	isolate(t)
	_, url := newBackend(t)
	mgr := session.NewManager(query.NewClientWithConfig(&query.ClientConfig{BaseURL: url}),
		session.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	_, err := mgr.Submit(context.Background(), "What is a tort?")
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := exportTranscript(mgr, "", dir)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# What is a tort?")
	assert.Contains(t, string(data), "You asked")

	_, err = exportTranscript(mgr, "pdf", dir)
	assert.Error(t, err)
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"exit error", &ExitError{Code: ExitTimeoutError, Message: "x"}, ExitTimeoutError},
		{"validation", &ValidationError{Field: "f", Reason: "r"}, ExitUsage},
		{"config", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "a", Message: "b"}}), ExitConfigError},
		{"unauthorized", fmt.Errorf("list: %w", documents.ErrUnauthorized), ExitAuthError},
		{"not logged in", fmt.Errorf("list: %w", auth.ErrNotLoggedIn), ExitAuthError},
		{"unsupported file", documents.ErrUnsupportedFile, ExitUsage},
		{"idle stream", session.ErrStreamIdle, ExitTimeoutError},
		{"deadline", context.DeadlineExceeded, ExitTimeoutError},
		{"auth transport", &auth.Error{Op: "login", Message: "request failed", Cause: errors.New("refused")}, ExitNetworkError},
		{"auth status", &auth.Error{Op: "signup", StatusCode: 409, Message: "exists"}, ExitError},
		{"api error", &documents.APIError{Op: "list", StatusCode: 500}, ExitNetworkError},
		{"generic", errors.New("boom"), ExitError},
	}
	for _, tc := range tests {
		if got := GetExitCode(tc.err); got != tc.want {
			t.Errorf("GetExitCode(%s) = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, &ExitError{Code: ExitNetworkError, Message: "no answer received", Cause: errors.New("dial tcp: refused")})
	assert.Equal(t, "[ERROR] no answer received\n", buf.String())

	buf.Reset()
	DisplayError(&buf, nil)
	assert.Empty(t, buf.String())
}
