// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for lexai.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Backend base URL and endpoint paths
//   - ChatConfig: Stream idle timeout, UTF-8 policy and greeting
//   - DocumentsConfig: Paging, rate limit and upload size
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (LEXAI_*)
//   - ~/.lexai/config.toml
//   - ~/.lexai/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Follow edits while the TUI runs:
//
//	go config.Watch(ctx, path, func(c *config.Config) {
//	    mgr.SetStreamIdleTimeout(c.StreamIdleTimeout())
//	})
package config
