// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/trygodson/llamatest/internal/session"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderMarkdown renders content for a terminal of the given width.
// Returns the original content if rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// ASK COMMAND
// =============================================================================

func newAskCmd(a *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question",
		Long: "Ask one question and print the answer.\n\n" +
			"The answer streams to stdout as it arrives. On a terminal with markdown\n" +
			"enabled the finished answer is rendered instead.",
		Example: `  lexai ask "What is adverse possession?"
  lexai ask --raw "Summarize the elements of negligence" > answer.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			render := !raw && a.cfg.UI.Markdown && isTerminalWriter(cmd.OutOrStdout())
			return runAsk(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), a.newManager(), strings.Join(args, " "), render)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "stream plain text, never render markdown")
	return cmd
}

// runAsk runs one exchange on mgr. Fragments are written to out as they
// arrive unless render is set, in which case the finished answer is
// rendered as markdown.
func runAsk(ctx context.Context, out, errOut io.Writer, mgr *session.Manager, question string, render bool) error {
	streamed := false
	if !render {
		mgr.SetObserver(func(ev session.Event) {
			if ev.Type == session.EventFragment {
				fmt.Fprint(out, ev.Fragment)
				streamed = true
			}
		})
		defer mgr.SetObserver(nil)
	} else {
		fmt.Fprint(errOut, DimStyle.Render("Thinking...")+"\r")
	}

	ex, err := mgr.Submit(ctx, question)
	if render {
		fmt.Fprint(errOut, "\r\x1b[K")
	}
	if err != nil {
		return NewValidationErrorWithExample("question", "", "question is empty", `lexai ask "What is estoppel?"`)
	}

	entry, _ := mgr.Transcript().Get(ex.AssistantEntryID)
	if ex.Failed() {
		if streamed {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, entry.Content)
		code := ExitNetworkError
		if GetExitCode(ex.Cause) == ExitTimeoutError {
			code = ExitTimeoutError
		}
		return &ExitError{Code: code, Message: "no answer received", Cause: ex.Cause}
	}

	if render {
		fmt.Fprint(out, renderMarkdown(entry.Content, GetTerminalWidth()))
		return nil
	}
	if !strings.HasSuffix(entry.Content, "\n") {
		fmt.Fprintln(out)
	}
	return nil
}
