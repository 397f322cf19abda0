// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnauthorized means the backend rejected the token. The stored token
	// has been cleared by the time the caller sees it.
	ErrUnauthorized = errors.New("session expired, please log in again")
	// ErrUnsupportedFile rejects uploads that are neither PDF nor CSV.
	ErrUnsupportedFile = errors.New("Please select only PDF or CSV files")
	// ErrMissingFields rejects an incomplete upload form.
	ErrMissingFields = errors.New("Please fill in all fields")
	// ErrFileTooLarge rejects uploads over the configured limit.
	ErrFileTooLarge = errors.New("file exceeds the upload size limit")
)

// APIError is a non-2xx response other than 401.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed: %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %d", e.Op, e.StatusCode)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// TokenProvider supplies the bearer token and forgets it when the backend
// rejects it.
type TokenProvider interface {
	Token() (string, error)
	Clear() error
}

// ClientConfig holds configuration options for the documents client.
type ClientConfig struct {
	BaseURL       string
	DocumentsPath string
	UploadPath    string
	DeletePath    string

	// Timeout bounds each request (default: 30s). Uploads get four times as long.
	Timeout time.Duration

	// RequestsPerSecond limits outgoing calls. 0 is unlimited.
	RequestsPerSecond float64

	// MaxUploadBytes caps upload size (default: 50 MiB).
	MaxUploadBytes int64

	Logger *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "http://localhost:8000",
		DocumentsPath:  "/llama/documents",
		UploadPath:     "/llama/upload",
		DeletePath:     "/deleteDocument",
		Timeout:        30 * time.Second,
		MaxUploadBytes: 50 << 20,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client manages the authenticated document library.
//
// The Client is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	tokens     TokenProvider
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a documents client. Zero config fields take defaults.
func NewClient(config *ClientConfig, tokens TokenProvider) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.DocumentsPath == "" {
		config.DocumentsPath = defaults.DocumentsPath
	}
	if config.UploadPath == "" {
		config.UploadPath = defaults.UploadPath
	}
	if config.DeletePath == "" {
		config.DeletePath = defaults.DeletePath
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = defaults.MaxUploadBytes
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:     config,
		tokens:     tokens,
		httpClient: &http.Client{},
		limiter:    limiter,
		logger:     logger,
	}
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// List fetches one page of the library. page is 1-based.
func (c *Client) List(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.do(ctx, "list", http.MethodGet, c.config.BaseURL+c.config.DocumentsPath+"?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var p Page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("list: malformed response: %w", err)
	}
	if p.Documents == nil {
		p.Documents = []Document{}
	}
	if p.Page == 0 {
		p.Page = page
	}
	if p.PageSize == 0 {
		p.PageSize = pageSize
	}
	return &p, nil
}

// ListAll walks every page and returns the whole library.
func (c *Client) ListAll(ctx context.Context, pageSize int) ([]Document, error) {
	var all []Document
	for page := 1; ; page++ {
		p, err := c.List(ctx, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Documents...)
		if !p.HasNext() || len(p.Documents) == 0 {
			return all, nil
		}
	}
}

// Upload sends a PDF or CSV file with its metadata.
func (c *Client) Upload(ctx context.Context, req UploadRequest) error {
	if err := ValidateUpload(req); err != nil {
		return err
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if info.Size() > c.config.MaxUploadBytes {
		return fmt.Errorf("%w (%s > %s)", ErrFileTooLarge, FormatFileSize(info.Size()), FormatFileSize(c.config.MaxUploadBytes))
	}

	// The form is streamed through a pipe so large files are never buffered.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, f, req))
	}()

	ctx, cancel := context.WithTimeout(ctx, 4*c.config.Timeout)
	defer cancel()

	resp, err := c.do(ctx, "upload", http.MethodPost, c.config.BaseURL+c.config.UploadPath, pr, mw.FormDataContentType())
	if err != nil {
		pr.CloseWithError(err)
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	c.logger.Info("document uploaded", "title", req.Title, "doc_type", string(req.DocType), "bytes", info.Size())
	return nil
}

func writeUploadForm(mw *multipart.Writer, f io.Reader, req UploadRequest) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(req.Path)))
	h.Set("Content-Type", DetectType(req.Path))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	for _, field := range [][2]string{
		{"title", req.Title},
		{"description", req.Description},
		{"doc_type", string(req.DocType)},
	} {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return err
		}
	}
	return mw.Close()
}

// Delete removes a document. Deleting an unknown ID succeeds.
func (c *Client) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	endpoint := c.config.BaseURL + strings.TrimRight(c.config.DeletePath, "/") + "/" + strconv.FormatInt(id, 10)
	resp, err := c.do(ctx, "delete", http.MethodDelete, endpoint, nil, "")
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		c.logger.Debug("document already gone", "id", id)
		return nil
	}
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Info("document deleted", "id", id)
	return nil
}

// do sends an authenticated request and maps failures. On success the
// caller owns resp.Body.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("documents request failed", "op", op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("documents response", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		if err := c.tokens.Clear(); err != nil {
			c.logger.Warn("failed to clear rejected token", "error", err)
		}
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		defer resp.Body.Close()
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorText(resp.Body)}
	}
	return resp, nil
}

func errorText(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
		Detail  any    `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	if s, ok := body.Detail.(string); ok {
		return s
	}
	return ""
}

// =============================================================================
// UPLOAD VALIDATION
// =============================================================================

// DetectType returns the MIME type of path from its extension, falling back
// to sniffing the first 512 bytes.
func DetectType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	}
	f, err := os.Open(path)
	if err != nil {
		if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
			return t
		}
		return "application/octet-stream"
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := io.ReadFull(f, buf)
	return http.DetectContentType(buf[:n])
}

// AcceptedType reports whether contentType is PDF or CSV.
func AcceptedType(contentType string) bool {
	mt, _, _ := mime.ParseMediaType(contentType)
	return mt == "application/pdf" || mt == "text/csv"
}

// ValidateUpload checks the form before any bytes are sent.
func ValidateUpload(req UploadRequest) error {
	if strings.TrimSpace(req.Path) == "" ||
		strings.TrimSpace(req.Title) == "" ||
		strings.TrimSpace(req.Description) == "" ||
		req.DocType == "" {
		return ErrMissingFields
	}
	if !AcceptedType(DetectType(req.Path)) {
		return ErrUnsupportedFile
	}
	if !req.DocType.Valid() {
		return fmt.Errorf("unknown document type %q", req.DocType)
	}
	return nil
}
