// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trygodson/llamatest/internal/session"
	"github.com/trygodson/llamatest/internal/ui/chat"
	"github.com/trygodson/llamatest/internal/ui/styles"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCmd builds the lexai command tree. Running it without a
// subcommand starts the chat screen.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "lexai",
		Short: "LexAI legal assistant for the terminal",
		Long: "LexAI answers legal research questions and manages your document library.\n\n" +
			"Run without arguments to open the chat screen.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   map[string]string{annotationLogToFile: "true"},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, a)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.lexai/config.toml)")
	pf.StringVar(&a.baseURL, "base-url", "", "backend base URL, overrides server.base_url")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newTUICmd(a),
		newAskCmd(a),
		newChatCmd(a),
		newLoginCmd(a),
		newSignupCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newDocsCmd(a),
		newConfigCmd(a),
		newDevServerCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		DisplayError(cmd.ErrOrStderr(), err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// =============================================================================
// TUI
// =============================================================================

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "tui",
		Short:       "Open the chat screen (default)",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationLogToFile: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, a)
		},
	}
}

func runTUI(cmd *cobra.Command, a *app) error {
	gate := session.NewGate(a.newManager())

	watchPath, err := a.activeConfigPath()
	if err != nil {
		watchPath = ""
	}
	if _, err := os.Stat(watchPath); err != nil {
		watchPath = ""
	}

	a.logger.Info("chat screen starting", "session_id", gate.Manager().SessionID(), "base_url", a.cfg.Server.BaseURL)
	return chat.Run(cmd.Context(), gate, watchPath, chat.Options{
		Theme:    styles.NewTheme(a.cfg.UI.Theme),
		Markdown: a.cfg.UI.Markdown,
		WordWrap: a.cfg.UI.WordWrap,
		Logger:   a.logger,
	})
}

// =============================================================================
// VERSION
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// no config or logging needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lexai %s (commit: %s, built: %s, %s/%s)\n",
				Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
		},
	}
}
