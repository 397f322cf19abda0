// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&ClientConfig{
		BaseURL: srv.URL + "/",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// =============================================================================
// LOGIN / SIGNUP
// =============================================================================

func TestLogin_Success(t *testing.T) {
	var got credentials
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123", "token_type": "bearer"})
	})

	tok, err := c.Login(context.Background(), "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, credentials{"alice", "secret1"}, got)
	assert.Equal(t, "tok-123", tok.AccessToken)
	assert.Equal(t, "alice", tok.Username)
	assert.False(t, tok.SavedAt.IsZero())
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantIs  error
		wantMsg string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail":"Incorrect username or password"}`, ErrInvalidCredentials, "Login failed"},
		{"server message", http.StatusBadRequest, `{"message":"Account locked"}`, nil, "Account locked"},
		{"detail string", http.StatusUnprocessableEntity, `{"detail":"username required"}`, nil, "username required"},
		{"opaque body", http.StatusInternalServerError, `oops`, nil, "Login failed"},
		{"missing token", http.StatusOK, `{}`, ErrNoAccessToken, "Login failed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})

			tok, err := c.Login(context.Background(), "alice", "wrong!")
			require.Error(t, err)
			assert.Nil(t, tok)

			var ae *Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, "login", ae.Op)
			assert.Equal(t, tc.wantMsg, ae.Message)
			if tc.wantIs != nil {
				assert.ErrorIs(t, err, tc.wantIs)
			}
		})
	}
}

func TestLogin_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(&ClientConfig{BaseURL: url, Timeout: time.Second})
	_, err := c.Login(context.Background(), "a", "b")
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "request failed", ae.Message)
	assert.Zero(t, ae.StatusCode)
}

func TestSignup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/signup", r.URL.Path)
		var cr credentials
		json.NewDecoder(r.Body).Decode(&cr)
		if cr.Username == "taken" {
			w.WriteHeader(http.StatusConflict)
			io.WriteString(w, `{"message":"Username already exists"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":1}`)
	})

	require.NoError(t, c.Signup(context.Background(), "bob", "abcdef"))

	err := c.Signup(context.Background(), "taken", "abcdef")
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusConflict, ae.StatusCode)
	assert.Equal(t, "Username already exists", ae.Message)
}

func TestSignup_FallbackMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	err := c.Signup(context.Background(), "bob", "abcdef")
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "Signup failed", ae.Message)
}

func TestValidateSignup(t *testing.T) {
	tests := []struct {
		name, user, pass, confirm string
		wantErr                   bool
	}{
		{"valid", "alice", "secret", "secret", false},
		{"blank user", "  ", "secret", "secret", true},
		{"short password", "alice", "abc", "abc", true},
		{"mismatch", "alice", "secret1", "secret2", true},
		{"multibyte counts runes", "alice", "пароль", "пароль", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSignup(tc.user, tc.pass, tc.confirm)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateSignup() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

// =============================================================================
// STORE
// =============================================================================

func TestStore_RoundTrip(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	s := NewStore(path)

	_, err := s.Token()
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	saved := &Token{AccessToken: "abc", Username: "alice", SavedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, s.Save(saved))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	// A fresh store reads the file.
	tok, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, *saved, *tok)

	value, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", value)

	require.NoError(t, s.Clear())
	_, err = s.Token()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.NoError(t, s.Clear(), "clearing twice is fine")
}

func TestStore_EnvOverride(t *testing.T) {
	t.Setenv(TokenEnv, "from-env")
	s := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	value, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)
}

func TestStore_CorruptFile(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewStore(path).Token()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotLoggedIn)
}

func TestStore_EmptyTokenIsLoggedOut(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":""}`), 0600))

	_, err := NewStore(path).Token()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}
