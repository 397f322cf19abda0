// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package query

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClientWithConfig_FillsDefaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://example.test/"})
	cfg := c.GetConfig()

	if cfg.BaseURL != "http://example.test" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.QueryPath != "/llama/query" {
		t.Errorf("QueryPath = %q, want /llama/query", cfg.QueryPath)
	}
	if cfg.DialTimeout != 10*time.Second {
		t.Errorf("DialTimeout = %v, want 10s", cfg.DialTimeout)
	}
	if c.Endpoint() != "http://example.test/llama/query" {
		t.Errorf("Endpoint() = %q", c.Endpoint())
	}
	if NewClientWithConfig(nil).GetConfig().BaseURL != "http://localhost:8000" {
		t.Error("nil config should use defaults")
	}
}

// =============================================================================
// ASK TESTS
// =============================================================================

func TestAsk_SendsQuestionJSON(t *testing.T) {
	var gotBody Request
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/llama/query" {
			t.Errorf("request = %s %s, want POST /llama/query", r.Method, r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: server.URL})
	resp, err := c.Ask(context.Background(), "Is a verbal contract binding?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if string(data) != "ok" {
		t.Errorf("body = %q, want ok", data)
	}
	if gotBody.Question != "Is a verbal contract binding?" {
		t.Errorf("question = %q", gotBody.Question)
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get("Authorization") != "" {
		t.Error("query endpoint must not carry credentials")
	}
	if gotHeaders.Get("X-Request-ID") == "" || gotHeaders.Get("X-Request-ID") != resp.RequestID {
		t.Errorf("X-Request-ID = %q, RequestID = %q", gotHeaders.Get("X-Request-ID"), resp.RequestID)
	}
}

func TestAsk_NonSuccessStatusClosesBodyUnread(t *testing.T) {
	tests := []int{
		http.StatusBadRequest,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusMultipleChoices,
	}

	for _, code := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			io.WriteString(w, "error page")
		}))

		c := NewClientWithConfig(&ClientConfig{BaseURL: server.URL})
		resp, err := c.Ask(context.Background(), "q")
		server.Close()

		if resp != nil {
			t.Errorf("status %d: got response, want nil", code)
		}
		var ce *ClientError
		if !errors.As(err, &ce) || ce.Type != ErrTypeStatus {
			t.Fatalf("status %d: err = %v, want ErrTypeStatus", code, err)
		}
		if StatusCode(err) != code {
			t.Errorf("StatusCode() = %d, want %d", StatusCode(err), code)
		}
		if !strings.Contains(Describe(err), "status") {
			t.Errorf("Describe() = %q", Describe(err))
		}
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: server.URL})
	if _, err := c.Ask(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("empty question should not reach the server")
	}
}

func TestAsk_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: url})
	_, err := c.Ask(context.Background(), "q")
	if !IsUnreachable(err) {
		t.Errorf("err = %v, want unreachable", err)
	}
}

func TestAsk_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Ask(ctx, "q")
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Type != ErrTypeCanceled {
		t.Errorf("err = %v, want ErrTypeCanceled", err)
	}
}

func TestAsk_HeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := NewClientWithConfig(&ClientConfig{
		BaseURL:               server.URL,
		ResponseHeaderTimeout: 50 * time.Millisecond,
	})
	_, err := c.Ask(context.Background(), "q")
	if !IsTimeout(err) {
		t.Errorf("err = %v, want timeout", err)
	}
}
