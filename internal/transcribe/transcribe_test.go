// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mashchat/internal/audio"
)

func testArtifact() *audio.Artifact {
	return &audio.Artifact{
		ID:       "rec-1",
		MIMEType: audio.MIMEWAV,
		Format:   audio.DefaultFormat,
		Data:     audio.EncodeWAV(audio.DefaultFormat, [][]byte{make([]byte, 3200)}),
	}
}

type upload struct {
	model    string
	language string
	filename string
	size     int
	auth     string
}

func whisperServer(t *testing.T, status int, body string) (*httptest.Server, chan upload) {
	t.Helper()
	got := make(chan upload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		got <- upload{
			model:    r.FormValue("model"),
			language: r.FormValue("language"),
			filename: hdr.Filename,
			size:     len(data),
			auth:     r.Header.Get("Authorization"),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestWhisperClient_Transcribe(t *testing.T) {
	srv, got := whisperServer(t, http.StatusOK, `{"text": "  what does it cost?  "}`)

	c := NewWhisperClient(Config{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Language: "en"}, nil)
	text, err := c.Transcribe(context.Background(), testArtifact())
	require.NoError(t, err)
	assert.Equal(t, "what does it cost?", text)

	u := <-got
	assert.Equal(t, "whisper-1", u.model)
	assert.Equal(t, "en", u.language)
	assert.Equal(t, "rec-1.wav", u.filename)
	assert.Equal(t, 44+3200, u.size)
	assert.Equal(t, "Bearer sk-test", u.auth)
}

func TestWhisperClient_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantErr    error
	}{
		{
			name:       "api error",
			status:     http.StatusUnauthorized,
			body:       `{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unparseable error body",
			status:     http.StatusInternalServerError,
			body:       `boom`,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:    "empty text",
			status:  http.StatusOK,
			body:    `{"text": "   "}`,
			wantErr: ErrNoSpeech,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := whisperServer(t, tt.status, tt.body)
			c := NewWhisperClient(Config{BaseURL: srv.URL + "/v1"}, nil)

			text, err := c.Transcribe(context.Background(), testArtifact())
			assert.Empty(t, text)

			var te *TranscriptionError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, "rec-1", te.ArtifactID)
			assert.Equal(t, tt.wantStatus, te.StatusCode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestWhisperClient_EmptyArtifact(t *testing.T) {
	c := NewWhisperClient(Config{BaseURL: "http://127.0.0.1:1/v1"}, nil)

	for _, a := range []*audio.Artifact{nil, {ID: "x", Data: audio.EncodeWAV(audio.DefaultFormat, nil)}} {
		_, err := c.Transcribe(context.Background(), a)
		var te *TranscriptionError
		require.ErrorAs(t, err, &te)
		assert.ErrorIs(t, err, ErrEmptyAudio)
	}
}

func TestWhisperClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewWhisperClient(Config{BaseURL: url + "/v1"}, nil)
	_, err := c.Transcribe(context.Background(), testArtifact())

	var te *TranscriptionError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable.Transcribe(context.Background(), testArtifact())
	var te *TranscriptionError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "rec-1")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "whisper-1", cfg.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
	assert.Positive(t, cfg.Timeout)
}
