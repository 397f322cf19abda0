// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/trygodson/llamatest/internal/config"
)

// newConfigCmd groups the config subcommands. They run on defaults when the
// file is broken so it can be inspected and repaired.
func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Show and edit configuration",
		Annotations: map[string]string{annotationLenientConfig: "true"},
	}
	cmd.AddCommand(
		newConfigShowCmd(a),
		newConfigPathCmd(a),
		newConfigInitCmd(a),
		newConfigValidateCmd(a),
		newConfigGetCmd(a),
		newConfigSetCmd(a),
	)
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatTOML, formatJSON, formatYAML); err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), format, a.cfg)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTOML, "output format: toml, json, yaml")
	return cmd
}

// writeConfig encodes cfg. YAML goes through JSON so keys keep their
// snake_case names.
func writeConfig(w io.Writer, format string, cfg *config.Config) error {
	switch format {
	case formatTOML:
		return toml.NewEncoder(w).Encode(cfg)
	case formatYAML:
		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		var tree map[string]any
		if err := json.Unmarshal(data, &tree); err != nil {
			return err
		}
		return writeStructured(w, formatYAML, tree)
	default:
		return writeStructured(w, format, cfg)
	}
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.activeConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.activeConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return &ExitError{Code: ExitUsage, Message: "config file already exists: " + path + " (use --force to overwrite)"}
			}
			if err := saveConfig(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfigValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfgErr != nil {
				return &ExitError{Code: ExitConfigError, Message: a.cfgErr.Error(), Cause: a.cfgErr}
			}
			path, err := a.activeConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s No config file, using defaults\n", WarningStyle.Render("[!]"))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", SuccessStyle.Render("[OK]"), path)
			return nil
		},
	}
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Long:  "Print one setting. Keys:\n  " + strings.Join(config.Keys(), "\n  "),
		Example: `  lexai config get server.base_url
  lexai config get chat.stream_idle_timeout`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return NewValidationErrorWithExample("key", args[0], err.Error(), "server.base_url")
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newConfigSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the config file",
		Example: `  lexai config set server.base_url https://lexai.example.com
  lexai config set ui.markdown false`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.activeConfigPath()
			if err != nil {
				return err
			}
			cfg, err := readConfigFile(path)
			if err != nil {
				return &ExitError{Code: ExitConfigError, Message: err.Error(), Cause: err}
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return NewValidationErrorWithExample("key", args[0], err.Error(), "lexai config set ui.theme dark")
			}
			if err := cfg.Validate(); err != nil {
				return &ValidationError{Field: args[0], Value: args[1], Reason: err.Error()}
			}
			if err := saveConfig(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", SuccessStyle.Render("[OK]"), args[0], args[1])
			return nil
		},
	}
}

// readConfigFile decodes path over the defaults without env overrides, so
// set writes back only what the file holds. A missing file yields defaults.
func readConfigFile(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	load := config.LoadTOML
	if strings.HasSuffix(path, ".json") {
		load = config.LoadJSON
	}
	if err := load(cfg, path); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return cfg, nil
}

func saveConfig(cfg *config.Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}
