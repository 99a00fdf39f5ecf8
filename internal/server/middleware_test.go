// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSMiddleware(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"http://localhost:3000", "*.example.com"}
	h := CORSMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantAllow  string
		wantStatus int
	}{
		{"exact origin", http.MethodGet, "http://localhost:3000", "http://localhost:3000", http.StatusTeapot},
		{"wildcard subdomain", http.MethodGet, "https://app.example.com", "https://app.example.com", http.StatusTeapot},
		{"unknown origin", http.MethodGet, "http://evil.test", "", http.StatusTeapot},
		{"preflight", http.MethodOptions, "http://localhost:3000", "http://localhost:3000", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/messages", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSMiddleware_AnyOrigin(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"*"}
	assert.Equal(t, "*", cfg.allowedOrigin(""))
	assert.Equal(t, "*", cfg.allowedOrigin("http://anything"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "limits are per client")
}

func TestRateLimitMiddleware_OnPostRoutes(t *testing.T) {
	conv := &fakeConversation{}
	s := newTestServer(t, conv, Config{SendsPerMinute: 1})

	assert.Equal(t, http.StatusNoContent, do(s, http.MethodPost, "/api/stop", "").Code)
	w := do(s, http.MethodPost, "/api/stop", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// Reads are never limited.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/status", "").Code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	s := newTestServer(t, &fakeConversation{}, Config{})
	w := do(s, http.MethodGet, "/api/status", "")

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(quiet())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestResponseWriter_CapturesStatusAndFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.Flush()

	assert.Equal(t, http.StatusAccepted, rw.statusCode)
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, rw.Unwrap())
}
