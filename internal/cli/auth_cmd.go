// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trygodson/llamatest/internal/auth"
)

// credentialFlags are shared by login and signup.
type credentialFlags struct {
	username      string
	passwordStdin bool
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "account username")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from stdin")
}

// read collects the username and password, prompting for what is missing.
func (f *credentialFlags) read(cmd *cobra.Command) (username, password string, err error) {
	p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

	username = strings.TrimSpace(f.username)
	if username == "" {
		if f.passwordStdin {
			return "", "", NewValidationErrorWithExample("username", "", "required with --password-stdin",
				"echo $PASS | lexai login -u alice --password-stdin")
		}
		if username, err = p.Line(PromptStyle.Render("Username: ")); err != nil {
			return "", "", err
		}
		username = strings.TrimSpace(username)
	}
	if username == "" {
		return "", "", NewValidationErrorWithExample("username", "", "username is required", "lexai login -u alice")
	}

	if f.passwordStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		return username, strings.TrimRight(string(data), "\r\n"), nil
	}
	password, err = p.Secret(PromptStyle.Render("Password: "))
	return username, password, err
}

// =============================================================================
// LOGIN / SIGNUP
// =============================================================================

func newLoginCmd(a *app) *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		Example: `  lexai login
  lexai login -u alice
  echo "$PASSWORD" | lexai login -u alice --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, password, err := creds.read(cmd)
			if err != nil {
				return err
			}
			if password == "" {
				return NewValidationErrorWithExample("password", "", "password is required", "lexai login -u alice")
			}

			tok, err := a.authClient().Login(cmd.Context(), username, password)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidCredentials) {
					return &ExitError{Code: ExitAuthError, Message: "Login failed: invalid username or password", Cause: err}
				}
				return err
			}

			store, err := a.tokenStore()
			if err != nil {
				return err
			}
			if err := store.Save(tok); err != nil {
				return NewCommandError("login", "save", "could not store the access token", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Logged in as %s\n", SuccessStyle.Render("[OK]"), tok.Username)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}

func newSignupCmd(a *app) *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Long:  "Create an account. Signup does not log in; run lexai login afterwards.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, password, err := creds.read(cmd)
			if err != nil {
				return err
			}
			confirm := password
			if !creds.passwordStdin {
				p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
				if confirm, err = p.Secret(PromptStyle.Render("Confirm password: ")); err != nil {
					return err
				}
			}
			if err := auth.ValidateSignup(username, password, confirm); err != nil {
				return &ValidationError{Field: "signup", Reason: err.Error()}
			}

			if err := a.authClient().Signup(cmd.Context(), username, password); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Account created. Please log in.\n", SuccessStyle.Render("[OK]"))
			fmt.Fprintln(out, DimStyle.Render("  lexai login -u "+username))
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}

// =============================================================================
// LOGOUT / WHOAMI
// =============================================================================

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.tokenStore()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Logged out\n", SuccessStyle.Render("[OK]"))
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.tokenStore()
			if err != nil {
				return err
			}
			tok, err := store.Load()
			if err != nil {
				if errors.Is(err, auth.ErrNotLoggedIn) {
					return &ExitError{Code: ExitAuthError, Message: "not logged in (run lexai login)", Cause: err}
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("User:"), tok.Username)
			if !tok.SavedAt.IsZero() {
				fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("Logged in:"), tok.SavedAt.Local().Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("Server:"), a.cfg.Server.BaseURL)
			return nil
		},
	}
}
