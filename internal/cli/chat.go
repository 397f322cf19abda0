// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/trygodson/llamatest/internal/config"
	"github.com/trygodson/llamatest/internal/export"
	"github.com/trygodson/llamatest/internal/session"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads one line of user input at a time.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// historyLiner is a liner state that keeps its history in a file.
type historyLiner struct {
	*liner.State
	historyFile string
}

func newHistoryLiner() *historyLiner {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	h := &historyLiner{State: line, historyFile: filepath.Join(configDir, "chat_history")}

	if f, err := os.Open(h.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return h
}

// Close saves history with owner-only permissions and restores the terminal.
func (h *historyLiner) Close() error {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(h.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = h.WriteHistory(f)
			f.Close()
		}
	}
	return h.State.Close()
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat line by line without the full screen",
		Long: "Start a line-based chat session. Answers stream as they arrive.\n\n" +
			"Commands: /help, /clear, /export, /status, /exit",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader := newHistoryLiner()
			defer reader.Close()
			return chatLoop(cmd.Context(), cmd.OutOrStdout(), reader, a.newManager())
		},
	}
}

// chatLoop reads questions from reader until the user exits, input ends or
// ctx is cancelled.
func chatLoop(ctx context.Context, out io.Writer, reader lineReader, mgr *session.Manager) error {
	printGreeting(out, mgr)

	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := reader.Prompt("lexai> ")
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or closed input
			fmt.Fprintln(out)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		reader.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if !handleSlashCommand(out, mgr, input) {
				return nil
			}
			continue
		}

		err = runAsk(ctx, out, out, mgr, input, false)
		var exitErr *ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return err
		}
		fmt.Fprintln(out)
	}
}

func printGreeting(out io.Writer, mgr *session.Manager) {
	if first, ok := mgr.Transcript().Last(); ok {
		fmt.Fprintln(out, TitleStyle.Render(first.Role.DisplayName()+":"), first.Content)
		fmt.Fprintln(out)
	}
}

// handleSlashCommand runs a chat command. Returns false when the chat
// should end.
func handleSlashCommand(out io.Writer, mgr *session.Manager, input string) bool {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	switch name {
	case "/exit", "/quit", "/q":
		return false
	case "/clear", "/new":
		if err := mgr.Reset(); err != nil {
			fmt.Fprintln(out, WarningStyle.Render("[!]"), err)
			return true
		}
		fmt.Fprintln(out, SuccessStyle.Render("[OK]"), "Started a new conversation")
		printGreeting(out, mgr)
	case "/status":
		st := mgr.GetStatus()
		fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("Session:"), st.SessionID)
		fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("Duration:"), session.FormatDuration(st.Duration))
		fmt.Fprintf(out, "%s %d\n", LabelStyle.Render("Questions:"), st.Exchanges)
		fmt.Fprintf(out, "%s %d\n", LabelStyle.Render("Failed:"), st.Failures)
	case "/export":
		format := ""
		if len(fields) > 1 {
			format = fields[1]
		}
		path, err := exportTranscript(mgr, format, ".")
		if err != nil {
			fmt.Fprintln(out, WarningStyle.Render("[!]"), err)
			return true
		}
		fmt.Fprintln(out, SuccessStyle.Render("[OK]"), "Saved", path)
	case "/help", "/?":
		fmt.Fprintln(out, "  /clear          start a new conversation")
		fmt.Fprintln(out, "  /export [json]  save the conversation (markdown by default)")
		fmt.Fprintln(out, "  /status         show session details")
		fmt.Fprintln(out, "  /exit           leave the chat")
	default:
		fmt.Fprintf(out, "%s unknown command %s (try /help)\n", WarningStyle.Render("[!]"), name)
	}
	return true
}

// exportTranscript writes the current conversation into dir.
func exportTranscript(mgr *session.Manager, format, dir string) (string, error) {
	opts := &export.Options{OutputDir: dir, IncludeTimestamps: true}
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return "", err
	}
	st := mgr.GetStatus()
	return export.ToFile(export.FromTranscript(st.SessionID, st.StartTime, mgr.Transcript()), exporter, opts)
}
