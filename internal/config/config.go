// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/trygodson/llamatest/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete LexAI configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Server    ServerConfig    `toml:"server" json:"server"`
	Chat      ChatConfig      `toml:"chat" json:"chat"`
	Documents DocumentsConfig `toml:"documents" json:"documents"`
	Auth      AuthConfig      `toml:"auth" json:"auth"`
	UI        UIConfig        `toml:"ui" json:"ui"`
	Log       LogConfig       `toml:"log" json:"log"`
}

// ServerConfig locates the LexAI backend and its endpoints.
type ServerConfig struct {
	// BaseURL is the scheme and host of the backend, without a trailing slash.
	BaseURL       string `toml:"base_url" json:"base_url"`
	QueryPath     string `toml:"query_path" json:"query_path"`
	DocumentsPath string `toml:"documents_path" json:"documents_path"`
	UploadPath    string `toml:"upload_path" json:"upload_path"`
	DeletePath    string `toml:"delete_path" json:"delete_path"`
	LoginPath     string `toml:"login_path" json:"login_path"`
	SignupPath    string `toml:"signup_path" json:"signup_path"`
	// Timeout bounds non-streaming requests, in seconds.
	Timeout int `toml:"timeout" json:"timeout"`
}

// ChatConfig controls chat exchanges.
type ChatConfig struct {
	// StreamIdleTimeout fails an exchange after this many seconds without
	// a byte from the answer stream.
	StreamIdleTimeout int `toml:"stream_idle_timeout" json:"stream_idle_timeout"`
	// InvalidUTF8 is "fail" or "replace".
	InvalidUTF8 string `toml:"invalid_utf8" json:"invalid_utf8"`
	// Greeting seeds new transcripts. Empty uses the built-in greeting.
	Greeting string `toml:"greeting" json:"greeting"`
}

// DocumentsConfig controls the document library client.
type DocumentsConfig struct {
	PageSize int `toml:"page_size" json:"page_size"`
	// RequestsPerSecond limits document API calls. 0 is unlimited.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	MaxUploadMB       int     `toml:"max_upload_mb" json:"max_upload_mb"`
}

// AuthConfig controls credential storage.
type AuthConfig struct {
	TokenFile string `toml:"token_file" json:"token_file"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	// Theme is "auto", "dark" or "light".
	Theme    string `toml:"theme" json:"theme"`
	Markdown bool   `toml:"markdown" json:"markdown"`
	WordWrap int    `toml:"word_wrap" json:"word_wrap"`
}

// LogConfig contains structured logging settings.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	// File is the log destination. Empty means stderr for line commands and
	// ~/.lexai/lexai.log for the TUI.
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Server: ServerConfig{
			BaseURL:       "http://localhost:8000",
			QueryPath:     "/llama/query",
			DocumentsPath: "/llama/documents",
			UploadPath:    "/llama/upload",
			DeletePath:    "/deleteDocument",
			LoginPath:     "/auth/login",
			SignupPath:    "/auth/signup",
			Timeout:       30,
		},
		Chat: ChatConfig{
			StreamIdleTimeout: 120,
			InvalidUTF8:       "fail",
		},
		Documents: DocumentsConfig{
			PageSize:          10,
			RequestsPerSecond: 0,
			MaxUploadMB:       50,
		},
		Auth: AuthConfig{
			TokenFile: "~/.lexai/credentials.json",
		},
		UI: UIConfig{
			Theme:    "auto",
			Markdown: true,
			WordWrap: 80,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ServerTimeout returns Server.Timeout as a duration.
func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.Timeout) * time.Second
}

// StreamIdleTimeout returns Chat.StreamIdleTimeout as a duration.
func (c *Config) StreamIdleTimeout() time.Duration {
	return time.Duration(c.Chat.StreamIdleTimeout) * time.Second
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Documents.MaxUploadMB) << 20
}

// TokenFilePath returns Auth.TokenFile with a leading "~" expanded.
func (c *Config) TokenFilePath() (string, error) {
	return ExpandHome(c.Auth.TokenFile)
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns ~/.lexai.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".lexai"), nil
}

// ConfigPathTOML returns the path of config.toml.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path of config.json.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ActivePath returns the config file Load would read, or the TOML path
// when neither file exists.
func ActivePath() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// EnsureConfigDir creates ~/.lexai with owner-only permissions.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandHome replaces a leading "~" in path with the home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads config.toml, falling back to config.json and then to the
// defaults. Environment overrides are applied last. A file that fails to
// decode is reported alongside the defaults.
func Load() (*Config, error) {
	var loadErr error

	for _, candidate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := candidate()
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		if errors.As(err, new(ValidateErrors)) {
			return nil, err
		}
		loadErr = err
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes path into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes path into cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads one file over the defaults, choosing the decoder by
// extension, then applies env overrides and validates.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values a file may have blanked out.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = d.Server.BaseURL
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Server.QueryPath == "" {
		c.Server.QueryPath = d.Server.QueryPath
	}
	if c.Server.DocumentsPath == "" {
		c.Server.DocumentsPath = d.Server.DocumentsPath
	}
	if c.Server.UploadPath == "" {
		c.Server.UploadPath = d.Server.UploadPath
	}
	if c.Server.DeletePath == "" {
		c.Server.DeletePath = d.Server.DeletePath
	}
	if c.Server.LoginPath == "" {
		c.Server.LoginPath = d.Server.LoginPath
	}
	if c.Server.SignupPath == "" {
		c.Server.SignupPath = d.Server.SignupPath
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = d.Server.Timeout
	}
	if c.Chat.StreamIdleTimeout == 0 {
		c.Chat.StreamIdleTimeout = d.Chat.StreamIdleTimeout
	}
	if c.Chat.InvalidUTF8 == "" {
		c.Chat.InvalidUTF8 = d.Chat.InvalidUTF8
	}
	if c.Documents.PageSize == 0 {
		c.Documents.PageSize = d.Documents.PageSize
	}
	if c.Documents.MaxUploadMB == 0 {
		c.Documents.MaxUploadMB = d.Documents.MaxUploadMB
	}
	if c.Auth.TokenFile == "" {
		c.Auth.TokenFile = d.Auth.TokenFile
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.WordWrap == 0 {
		c.UI.WordWrap = d.UI.WordWrap
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to config.toml.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with a header comment. The file is owner-only.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# LexAI configuration file\n")
	b.WriteString("# Generated by lexai - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns ValidateErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	u, err := url.Parse(c.Server.BaseURL)
	switch {
	case err != nil:
		add("server.base_url", "invalid URL: %v", err)
	case u.Scheme != "http" && u.Scheme != "https":
		add("server.base_url", "scheme must be http or https, got '%s'", u.Scheme)
	case u.Host == "":
		add("server.base_url", "missing host")
	}

	paths := map[string]string{
		"server.query_path":     c.Server.QueryPath,
		"server.documents_path": c.Server.DocumentsPath,
		"server.upload_path":    c.Server.UploadPath,
		"server.delete_path":    c.Server.DeletePath,
		"server.login_path":     c.Server.LoginPath,
		"server.signup_path":    c.Server.SignupPath,
	}
	for _, field := range slices.Sorted(maps.Keys(paths)) {
		if !strings.HasPrefix(paths[field], "/") {
			add(field, "must start with '/', got '%s'", paths[field])
		}
	}

	if c.Server.Timeout < 1 || c.Server.Timeout > 3600 {
		add("server.timeout", "must be between 1 and 3600 seconds, got %d", c.Server.Timeout)
	}
	if c.Chat.StreamIdleTimeout < 1 || c.Chat.StreamIdleTimeout > 3600 {
		add("chat.stream_idle_timeout", "must be between 1 and 3600 seconds, got %d", c.Chat.StreamIdleTimeout)
	}
	switch strings.ToLower(c.Chat.InvalidUTF8) {
	case "fail", "replace":
	default:
		add("chat.invalid_utf8", "invalid mode '%s', must be one of: fail, replace", c.Chat.InvalidUTF8)
	}

	if c.Documents.PageSize < 1 || c.Documents.PageSize > 100 {
		add("documents.page_size", "must be between 1 and 100, got %d", c.Documents.PageSize)
	}
	if c.Documents.RequestsPerSecond < 0 {
		add("documents.requests_per_second", "must not be negative, got %g", c.Documents.RequestsPerSecond)
	}
	if c.Documents.MaxUploadMB < 1 || c.Documents.MaxUploadMB > 1024 {
		add("documents.max_upload_mb", "must be between 1 and 1024, got %d", c.Documents.MaxUploadMB)
	}

	switch strings.ToLower(c.UI.Theme) {
	case "auto", "dark", "light":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme)
	}
	if c.UI.WordWrap < 20 || c.UI.WordWrap > 400 {
		add("ui.word_wrap", "must be between 20 and 400, got %d", c.UI.WordWrap)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies LEXAI_* variables. Unparseable numbers are
// ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LEXAI_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("LEXAI_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LEXAI_STREAM_IDLE_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chat.StreamIdleTimeout = n
		}
	}
	if v := os.Getenv("LEXAI_INVALID_UTF8"); v != "" {
		c.Chat.InvalidUTF8 = v
	}
	if v := os.Getenv("LEXAI_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Documents.PageSize = n
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value using dot notation, e.g. "chat.stream_idle_timeout".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value using dot notation. String values are converted to
// the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		name := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(n string) bool {
			return strings.EqualFold(n, name)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case or kebab-case to a Go field name.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var b strings.Builder
	for _, part := range parts {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(strings.ToLower(part[1:]))
	}
	return b.String()
}

func setFieldValue(field reflect.Value, value any) error {
	if s, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(n)
			return nil
		case reflect.Float64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(f)
			return nil
		case reflect.Bool:
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(b)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every settable key in dot notation, in declaration order.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		name := strings.Split(section.Tag.Get("toml"), ",")[0]
		if section.Type.Kind() != reflect.Struct {
			keys = append(keys, name)
			continue
		}
		for j := 0; j < section.Type.NumField(); j++ {
			f := section.Type.Field(j)
			keys = append(keys, name+"."+strings.Split(f.Tag.Get("toml"), ",")[0])
		}
	}
	return keys
}

// Clone returns a copy of c. Config holds no reference types.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first use.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			if cfg == nil {
				cfg = Default()
				cfg.SetDefaults()
			}
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal replaces the global configuration.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between tests.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
