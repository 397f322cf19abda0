// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trygodson/llamatest/internal/auth"
	"github.com/trygodson/llamatest/internal/config"
	"github.com/trygodson/llamatest/internal/documents"
	"github.com/trygodson/llamatest/internal/logging"
	"github.com/trygodson/llamatest/internal/query"
	"github.com/trygodson/llamatest/internal/session"
	"github.com/trygodson/llamatest/internal/stream"
)

// Command annotations read by app.init.
const (
	// annotationLenientConfig lets a command run on defaults when the
	// config file is broken, so it can report or repair it.
	annotationLenientConfig = "lexai/lenient-config"
	// annotationLogToFile sends logs to the log file instead of stderr.
	annotationLogToFile = "lexai/log-to-file"
)

// app holds the state shared by every command: flags, the loaded config
// and the logger.
type app struct {
	// Global flags
	configPath string
	baseURL    string
	logLevel   string

	cfg       *config.Config
	cfgErr    error // load error when running lenient
	logger    *slog.Logger
	logCloser io.Closer
}

// init loads the config and sets up logging for cmd.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := a.loadConfig()
	switch {
	case cfg != nil && err != nil:
		// unreadable file, running on defaults
		a.cfgErr = err
	case err != nil:
		if !annotated(cmd, annotationLenientConfig) {
			return &ExitError{Code: ExitConfigError, Message: err.Error(), Cause: err}
		}
		a.cfgErr = err
		cfg = config.Default()
	}

	if a.baseURL != "" {
		cfg.Server.BaseURL = strings.TrimRight(a.baseURL, "/")
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.baseURL != "" || a.logLevel != "" {
		if err := cfg.Validate(); err != nil {
			return &ExitError{Code: ExitUsage, Message: err.Error(), Cause: err}
		}
	}
	a.cfg = cfg
	config.SetGlobal(cfg)

	logCfg := cfg.Log
	if cmd.Annotations[annotationLogToFile] != "" && logCfg.File == "" {
		if path, err := logging.DefaultFile(); err == nil {
			logCfg.File = path
		}
	}
	logger, closer, err := logging.Setup(logCfg, cmd.ErrOrStderr())
	if err != nil {
		return &ExitError{Code: ExitConfigError, Message: "cannot open log file: " + err.Error(), Cause: err}
	}
	a.logger, a.logCloser = logger, closer
	if a.cfgErr != nil {
		logger.Warn("config file not used", "error", a.cfgErr)
	}
	return nil
}

// annotated reports whether cmd or one of its parents carries key.
func annotated(cmd *cobra.Command, key string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[key] != "" {
			return true
		}
	}
	return false
}

// loadConfig reads --config when given, otherwise the default locations.
func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath == "" {
		return config.Load()
	}
	path, err := config.ExpandHome(a.configPath)
	if err != nil {
		return nil, err
	}
	return config.LoadFromPath(path)
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}

// activeConfigPath is the file config commands read and write.
func (a *app) activeConfigPath() (string, error) {
	if a.configPath != "" {
		return config.ExpandHome(a.configPath)
	}
	return config.ActivePath()
}

// =============================================================================
// CLIENT CONSTRUCTION
// =============================================================================

func (a *app) queryClient() *query.Client {
	return query.NewClientWithConfig(&query.ClientConfig{
		BaseURL:   a.cfg.Server.BaseURL,
		QueryPath: a.cfg.Server.QueryPath,
		Logger:    a.logger,
	})
}

// newManager creates a session manager for one chat session.
func (a *app) newManager() *session.Manager {
	// Validate already rejected unknown modes.
	mode, _ := stream.ParseMode(a.cfg.Chat.InvalidUTF8)
	return session.NewManager(a.queryClient(), session.Config{
		Greeting:          a.cfg.Chat.Greeting,
		StreamIdleTimeout: a.cfg.StreamIdleTimeout(),
		DecodeMode:        mode,
		Logger:            a.logger,
	})
}

func (a *app) authClient() *auth.Client {
	return auth.NewClient(&auth.ClientConfig{
		BaseURL:    a.cfg.Server.BaseURL,
		LoginPath:  a.cfg.Server.LoginPath,
		SignupPath: a.cfg.Server.SignupPath,
		Timeout:    a.cfg.ServerTimeout(),
		Logger:     a.logger,
	})
}

func (a *app) tokenStore() (*auth.Store, error) {
	path, err := a.cfg.TokenFilePath()
	if err != nil {
		return nil, err
	}
	return auth.NewStore(path), nil
}

func (a *app) documentsClient() (*documents.Client, error) {
	store, err := a.tokenStore()
	if err != nil {
		return nil, err
	}
	return documents.NewClient(&documents.ClientConfig{
		BaseURL:           a.cfg.Server.BaseURL,
		DocumentsPath:     a.cfg.Server.DocumentsPath,
		UploadPath:        a.cfg.Server.UploadPath,
		DeletePath:        a.cfg.Server.DeletePath,
		Timeout:           a.cfg.ServerTimeout(),
		RequestsPerSecond: a.cfg.Documents.RequestsPerSecond,
		MaxUploadBytes:    a.cfg.MaxUploadBytes(),
		Logger:            a.logger,
	}, store), nil
}
