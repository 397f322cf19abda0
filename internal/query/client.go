// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package query provides the HTTP client for the streaming question endpoint.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the query client.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeStatus
	ErrTypeInvalidRequest
	ErrTypeCanceled
)

// String returns the error type name used in logs.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeStatus:
		return "status"
	case ErrTypeInvalidRequest:
		return "invalid_request"
	case ErrTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrUnreachable   = &ClientError{Type: ErrTypeConnection, Message: "query service is unreachable"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrCanceled      = &ClientError{Type: ErrTypeCanceled, Message: "request canceled"}
	ErrEmptyQuestion = &ClientError{Type: ErrTypeInvalidRequest, Message: "question is empty"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the query client.
type ClientConfig struct {
	// BaseURL is the backend base URL (default: http://localhost:8000)
	BaseURL string

	// QueryPath is the streaming question endpoint (default: /llama/query)
	QueryPath string

	// DialTimeout bounds connection setup (default: 10s)
	DialTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for the status line (default: 60s).
	// The body itself is unbounded; idle detection belongs to the caller.
	ResponseHeaderTimeout time.Duration

	// UserAgent is sent with every request
	UserAgent string

	// Logger receives debug request logs (default: slog.Default())
	Logger *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:               "http://localhost:8000",
		QueryPath:             "/llama/query",
		DialTimeout:           10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		UserAgent:             "lexai-cli",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends questions to the query endpoint and returns the streamed answer.
// The endpoint is unauthenticated.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client := query.NewClient()
//	resp, err := client.Ask(ctx, "What is adverse possession?")
//	if err != nil {
//	    return err
//	}
//	defer resp.Body.Close()
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new query client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new query client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.QueryPath == "" {
		config.QueryPath = defaults.QueryPath
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.ResponseHeaderTimeout == 0 {
		config.ResponseHeaderTimeout = defaults.ResponseHeaderTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// No overall client timeout: answers stream for as long as they need.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: config.DialTimeout}).DialContext
	transport.ResponseHeaderTimeout = config.ResponseHeaderTimeout

	return &Client{
		config:     config,
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// Endpoint returns the full query URL.
func (c *Client) Endpoint() string {
	return c.config.BaseURL + c.config.QueryPath
}

// =============================================================================
// ASK
// =============================================================================

// Request is the JSON body of a query.
type Request struct {
	Question string `json:"question"`
}

// Response is an accepted query. The caller must close Body.
type Response struct {
	Body       io.ReadCloser
	StatusCode int
	RequestID  string
	Header     http.Header
}

// Ask posts the question and returns the open answer stream.
//
// A non-2xx status is returned as a *ClientError of type ErrTypeStatus and
// the response body is closed without being read.
func (c *Client) Ask(ctx context.Context, question string) (*Response, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	body, err := json.Marshal(Request{Question: question})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("query request failed",
			"request_id", requestID,
			"duration", time.Since(start),
			"error", err)
		return nil, classifyTransportError(err)
	}

	c.logger.Debug("query response",
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &ClientError{
			Type:       ErrTypeStatus,
			Message:    "query failed: " + resp.Status,
			StatusCode: resp.StatusCode,
		}
	}

	return &Response{
		Body:       resp.Body,
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
		Header:     resp.Header,
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func classifyTransportError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return &ClientError{Type: ErrTypeCanceled, Message: ErrCanceled.Message, Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	return &ClientError{Type: ErrTypeConnection, Message: ErrUnreachable.Message, Cause: err}
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// IsUnreachable checks if an error means the backend could not be reached.
func IsUnreachable(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeConnection
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

// Describe returns a short operator-facing summary of err for logs.
func Describe(err error) string {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return err.Error()
	}
	if clientErr.StatusCode != 0 {
		return clientErr.Type.String() + " " + strconv.Itoa(clientErr.StatusCode)
	}
	return clientErr.Type.String()
}
