// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trygodson/llamatest/internal/devserver"
)

func newDevServerCmd(a *app) *cobra.Command {
	var (
		addr       string
		token      string
		user       string
		password   string
		chunkSize  int
		chunkDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run an in-memory development backend",
		Long: "Run a local stand-in for the LexAI backend. It streams a canned answer\n" +
			"in small chunks and keeps accounts and documents in memory.",
		Example: `  lexai dev-server
  lexai dev-server --addr 127.0.0.1:9000 --user alice --password secret1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := devserver.NewStore()
			if user != "" {
				if err := store.AddUser(user, password); err != nil {
					return NewCommandError("dev-server", "seed", "could not create user "+user, err)
				}
			}

			srv := devserver.New(store, devserver.Options{
				ChunkSize:      chunkSize,
				ChunkDelay:     chunkDelay,
				StaticToken:    token,
				MaxUploadBytes: a.cfg.MaxUploadBytes(),
				Logger:         a.logger,
			})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Dev backend on %s (Ctrl+C to stop)\n", SuccessStyle.Render("[OK]"), addr)
			if token != "" {
				fmt.Fprintln(out, DimStyle.Render("  static token accepted for user "+devserver.StaticUser))
			}
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":8000", "listen address")
	f.StringVar(&token, "token", "", "accept this bearer token without login")
	f.StringVar(&user, "user", "", "create this account at startup")
	f.StringVar(&password, "password", "", "password for --user")
	f.IntVar(&chunkSize, "chunk-size", 5, "bytes per streamed write")
	f.DurationVar(&chunkDelay, "chunk-delay", 15*time.Millisecond, "pause between streamed writes")
	return cmd
}
