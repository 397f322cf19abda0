// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trygodson/llamatest/internal/documents"
)

// StaticUser owns the library reached through Options.StaticToken.
const StaticUser = "dev"

// ============================================================================
// OPTIONS
// ============================================================================

// AnswerFunc produces the full answer text for a question.
type AnswerFunc func(question string) string

// Options configures the dev backend.
type Options struct {
	// ChunkSize is the number of bytes per streamed write (default: 5).
	// Small chunks split multi-byte characters across writes.
	ChunkSize int

	// ChunkDelay is the pause between streamed writes (default: 15ms).
	// Negative disables it.
	ChunkDelay time.Duration

	// Answer builds answers (default: CannedAnswer).
	Answer AnswerFunc

	// StaticToken, when set, is accepted as a bearer token for StaticUser.
	StaticToken string

	// MaxUploadBytes caps multipart bodies (default: 50 MiB).
	MaxUploadBytes int64

	Logger *slog.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		ChunkSize:      5,
		ChunkDelay:     15 * time.Millisecond,
		Answer:         CannedAnswer,
		MaxUploadBytes: 50 << 20,
	}
}

// CannedAnswer is the default answer. It is markdown and contains
// multi-byte characters.
func CannedAnswer(question string) string {
	return "**Short answer:** it depends on the jurisdiction.\n\n" +
		"You asked: “" + strings.TrimSpace(question) + "”\n\n" +
		"1. Check the governing statute (e.g. § 1983).\n" +
		"2. Review controlling case law — précis attached.\n" +
		"3. Confirm deadlines: 30 días for filings abroad.\n\n" +
		"_This is the LexAI development backend._ ⚖️\n"
}

// ============================================================================
// SERVER
// ============================================================================

// Server is an in-memory stand-in for the LexAI backend.
type Server struct {
	router *chi.Mux
	store  *Store
	opts   Options
	logger *slog.Logger
	server *http.Server
}

// New creates a dev backend. Zero option fields take their defaults.
func New(store *Store, opts Options) *Server {
	d := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = d.ChunkSize
	}
	switch {
	case opts.ChunkDelay == 0:
		opts.ChunkDelay = d.ChunkDelay
	case opts.ChunkDelay < 0:
		opts.ChunkDelay = 0
	}
	if opts.Answer == nil {
		opts.Answer = d.Answer
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = d.MaxUploadBytes
	}
	if store == nil {
		store = NewStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		opts:   opts,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(recoverer(s.logger))
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.handleHealth)
	r.Post("/auth/signup", s.handleSignup)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/llama/query", s.handleQuery)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Get("/llama/documents", s.handleListDocuments)
		r.Post("/llama/upload", s.handleUpload)
		r.Delete("/deleteDocument/{id}", s.handleDelete)
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("dev backend listening", "addr", ln.Addr().String())
		errc <- s.server.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("dev backend shutting down")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ============================================================================
// AUTH HANDLERS
// ============================================================================

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(c.Username) == "" || len(c.Password) < 6 {
		writeError(w, http.StatusBadRequest, "Username and a password of at least 6 characters are required")
		return
	}
	if err := s.store.AddUser(c.Username, c.Password); err != nil {
		if errors.Is(err, errUserExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Signup failed")
		return
	}
	s.logger.Info("account created", "username", c.Username)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User created successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	token, err := s.store.Login(c.Username, c.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

// ============================================================================
// QUERY HANDLER
// ============================================================================

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	answer := []byte(s.opts.Answer(req.Question))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for len(answer) > 0 {
		n := min(s.opts.ChunkSize, len(answer))
		if _, err := w.Write(answer[:n]); err != nil {
			return
		}
		flusher.Flush()
		answer = answer[n:]

		if s.opts.ChunkDelay > 0 && len(answer) > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(s.opts.ChunkDelay):
			}
		}
	}
}

// ============================================================================
// DOCUMENT HANDLERS
// ============================================================================

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)
	if page < 1 || pageSize < 1 || pageSize > 100 {
		writeError(w, http.StatusBadRequest, "invalid paging parameters")
		return
	}
	writeJSON(w, http.StatusOK, s.store.Page(userFrom(r.Context()), page, pageSize))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	size, err := io.Copy(io.Discard, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	title := r.FormValue("title")
	description := r.FormValue("description")
	docType := documents.DocType(r.FormValue("doc_type"))
	if title == "" || description == "" || docType == "" {
		writeError(w, http.StatusBadRequest, "title, description and doc_type are required")
		return
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".pdf", ".csv":
	default:
		writeError(w, http.StatusBadRequest, "only PDF or CSV files are accepted")
		return
	}

	doc := s.store.AddDocument(userFrom(r.Context()), documents.Document{
		Title:       title,
		Description: description,
		DocType:     docType,
		FileName:    header.Filename,
		FileSize:    size,
	})
	s.logger.Info("document stored", "id", doc.ID, "file", doc.FileName, "bytes", size)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	if err := s.store.DeleteDocument(userFrom(r.Context()), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
