// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

// Error is a failed login or signup. Message is safe to show the user.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Op + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Op + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

var (
	// ErrInvalidCredentials is returned by Login for a rejected username or
	// password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNoAccessToken is returned by Login when a 2xx response carries no token.
	ErrNoAccessToken = errors.New("no access token received")
	// ErrNotLoggedIn is returned by Store.Token when no token is stored.
	ErrNotLoggedIn = errors.New("not logged in")
)

// =============================================================================
// CLIENT
// =============================================================================

// ClientConfig holds the auth endpoint locations.
type ClientConfig struct {
	BaseURL    string
	LoginPath  string
	SignupPath string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:    "http://localhost:8000",
		LoginPath:  "/auth/login",
		SignupPath: "/auth/signup",
		Timeout:    30 * time.Second,
	}
}

// Client talks to the login and signup endpoints.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an auth client. Zero fields take their defaults.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.LoginPath == "" {
		config.LoginPath = defaults.LoginPath
	}
	if config.SignupPath == "" {
		config.SignupPath = defaults.SignupPath
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// serverError is the error body shape the backend uses. FastAPI style
// backends put the text in detail.
type serverError struct {
	Message string `json:"message"`
	Detail  any    `json:"detail"`
}

func (e serverError) text() string {
	if e.Message != "" {
		return e.Message
	}
	if s, ok := e.Detail.(string); ok {
		return s
	}
	return ""
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	resp, err := c.post(ctx, c.config.LoginPath, credentials{username, password})
	if err != nil {
		return nil, &Error{Op: "login", Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.logger.Info("login rejected", "username", username, "status", resp.StatusCode)
		return nil, &Error{Op: "login", StatusCode: resp.StatusCode, Message: "Login failed", Cause: ErrInvalidCredentials}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Op: "login", StatusCode: resp.StatusCode, Message: errorText(resp.Body, "Login failed")}
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, &Error{Op: "login", StatusCode: resp.StatusCode, Message: "malformed response", Cause: err}
	}
	if lr.AccessToken == "" {
		return nil, &Error{Op: "login", StatusCode: resp.StatusCode, Message: "Login failed", Cause: ErrNoAccessToken}
	}

	c.logger.Info("logged in", "username", username)
	return &Token{AccessToken: lr.AccessToken, Username: username, SavedAt: time.Now().UTC()}, nil
}

// Signup creates an account. It does not log in.
func (c *Client) Signup(ctx context.Context, username, password string) error {
	resp, err := c.post(ctx, c.config.SignupPath, credentials{username, password})
	if err != nil {
		return &Error{Op: "signup", Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: "signup", StatusCode: resp.StatusCode, Message: errorText(resp.Body, "Signup failed")}
	}
	io.Copy(io.Discard, resp.Body)
	c.logger.Info("account created", "username", username)
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func errorText(r io.Reader, fallback string) string {
	var se serverError
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&se); err != nil {
		return fallback
	}
	if t := se.text(); t != "" {
		return t
	}
	return fallback
}

// =============================================================================
// VALIDATION
// =============================================================================

// MinPasswordLength is the shortest password signup accepts.
const MinPasswordLength = 6

// ValidateSignup checks the signup form before it is sent.
func ValidateSignup(username, password, confirm string) error {
	switch {
	case strings.TrimSpace(username) == "":
		return errors.New("username is required")
	case len([]rune(password)) < MinPasswordLength:
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	case password != confirm:
		return errors.New("passwords do not match")
	}
	return nil
}
