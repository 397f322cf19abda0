// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package documents_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trygodson/llamatest/internal/devserver"
	"github.com/trygodson/llamatest/internal/documents"
)

// memTokens is a TokenProvider held in memory.
type memTokens struct {
	token   string
	cleared atomic.Int32
}

func (m *memTokens) Token() (string, error) {
	if m.token == "" {
		return "", errors.New("not logged in")
	}
	return m.token, nil
}

func (m *memTokens) Clear() error {
	m.cleared.Add(1)
	m.token = ""
	return nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// backend starts a dev backend with one logged-in user.
func backend(t *testing.T) (*documents.Client, *memTokens, *httptest.Server) {
	t.Helper()
	srv := devserver.New(nil, devserver.Options{ChunkDelay: -1, Logger: quiet()})
	require.NoError(t, srv.Store().AddUser("alice", "secret1"))
	token, err := srv.Store().Login("alice", "secret1")
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	tokens := &memTokens{token: token}
	c := documents.NewClient(&documents.ClientConfig{BaseURL: ts.URL, Logger: quiet()}, tokens)
	return c, tokens, ts
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func upload(t *testing.T, c *documents.Client, title string) {
	t.Helper()
	require.NoError(t, c.Upload(context.Background(), documents.UploadRequest{
		Path:        writeTemp(t, "file.pdf", "%PDF-1.4\n"+title),
		Title:       title,
		Description: "about " + title,
		DocType:     documents.DocTypeContract,
	}))
}

func TestClient_UploadAndList(t *testing.T) {
	c, _, _ := backend(t)
	ctx := context.Background()

	p, err := c.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, p.Documents)
	assert.Zero(t, p.Total)

	upload(t, c, "Lease")
	upload(t, c, "NDA")

	p, err = c.List(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, p.Documents, 2)
	assert.Equal(t, "NDA", p.Documents[0].Title)
	assert.Equal(t, "file.pdf", p.Documents[0].FileName)
	assert.Equal(t, documents.DocTypeContract, p.Documents[0].DocType)
	assert.Equal(t, 1, p.Pages)
}

func TestClient_ListAll(t *testing.T) {
	c, _, _ := backend(t)
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		upload(t, c, title)
	}

	all, err := c.ListAll(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "e", all[0].Title)
	assert.Equal(t, "a", all[4].Title)
}

func TestClient_DeleteIsIdempotent(t *testing.T) {
	c, _, _ := backend(t)
	upload(t, c, "Lease")
	ctx := context.Background()

	p, err := c.List(ctx, 1, 10)
	require.NoError(t, err)
	id := p.Documents[0].ID

	require.NoError(t, c.Delete(ctx, id))
	require.NoError(t, c.Delete(ctx, id), "second delete of the same id")

	p, err = c.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, p.Documents)
}

func TestClient_UnauthorizedClearsToken(t *testing.T) {
	c, tokens, _ := backend(t)
	tokens.token = "revoked"

	_, err := c.List(context.Background(), 1, 10)
	assert.ErrorIs(t, err, documents.ErrUnauthorized)
	assert.Equal(t, int32(1), tokens.cleared.Load())

	_, err = c.List(context.Background(), 1, 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, documents.ErrUnauthorized, "no request is sent without a token")
}

func TestClient_UploadValidation(t *testing.T) {
	c, _, _ := backend(t)
	pdf := writeTemp(t, "ok.pdf", "%PDF-1.4")
	txt := writeTemp(t, "notes.txt", "plain notes")
	sniffed := writeTemp(t, "scan", "%PDF-1.7\nbinary")

	tests := []struct {
		name string
		req  documents.UploadRequest
		want error
	}{
		{"missing title", documents.UploadRequest{Path: pdf, Description: "d", DocType: "pdf"}, documents.ErrMissingFields},
		{"missing type", documents.UploadRequest{Path: pdf, Title: "t", Description: "d"}, documents.ErrMissingFields},
		{"wrong file", documents.UploadRequest{Path: txt, Title: "t", Description: "d", DocType: "other"}, documents.ErrUnsupportedFile},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, c.Upload(context.Background(), tc.req), tc.want)
		})
	}

	assert.Equal(t, "Please select only PDF or CSV files", documents.ErrUnsupportedFile.Error())
	assert.NoError(t, documents.ValidateUpload(documents.UploadRequest{Path: sniffed, Title: "t", Description: "d", DocType: "pdf"}))
	assert.Error(t, documents.ValidateUpload(documents.UploadRequest{Path: pdf, Title: "t", Description: "d", DocType: "memo"}))
}

func TestClient_UploadSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	c := documents.NewClient(&documents.ClientConfig{BaseURL: srv.URL, MaxUploadBytes: 8, Logger: quiet()}, &memTokens{token: "x"})
	err := c.Upload(context.Background(), documents.UploadRequest{
		Path:        writeTemp(t, "big.csv", "a,b,c\n1,2,3\n"),
		Title:       "t",
		Description: "d",
		DocType:     documents.DocTypeCSV,
	})
	assert.ErrorIs(t, err, documents.ErrFileTooLarge)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "25", r.URL.Query().Get("page_size"))
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"index offline"}`)
	}))
	defer srv.Close()

	c := documents.NewClient(&documents.ClientConfig{BaseURL: srv.URL, Logger: quiet()}, &memTokens{token: "tok"})
	_, err := c.List(context.Background(), 3, 25)

	var apiErr *documents.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "index offline", apiErr.Message)
	assert.Equal(t, "list", apiErr.Op)
}

func TestClient_RateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, `{"documents":[],"total":0,"page":1,"page_size":10,"pages":0}`)
	}))
	defer srv.Close()

	c := documents.NewClient(&documents.ClientConfig{BaseURL: srv.URL, RequestsPerSecond: 20, Logger: quiet()}, &memTokens{token: "tok"})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.List(context.Background(), 1, 10)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), hits.Load())
}
