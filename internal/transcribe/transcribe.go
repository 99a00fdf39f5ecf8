// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/mashchat/internal/audio"
)

// =============================================================================
// INTERFACE
// =============================================================================

// Transcriber converts one artifact to text.
type Transcriber interface {
	Transcribe(ctx context.Context, a *audio.Artifact) (string, error)
}

// Func adapts a function to a Transcriber.
type Func func(ctx context.Context, a *audio.Artifact) (string, error)

// Transcribe calls f(ctx, a).
func (f Func) Transcribe(ctx context.Context, a *audio.Artifact) (string, error) {
	return f(ctx, a)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnavailable is returned when no transcription backend is configured.
	ErrUnavailable = errors.New("no transcription backend configured")

	// ErrEmptyAudio is returned for a missing or empty recording.
	ErrEmptyAudio = errors.New("recording is empty")

	// ErrNoSpeech is returned when the backend produced no text.
	ErrNoSpeech = errors.New("no speech recognized")
)

// TranscriptionError is the single failure type of this package.
type TranscriptionError struct {
	ArtifactID string

	// StatusCode is the HTTP status of a rejected request, or 0.
	StatusCode int

	Err error
}

func (e *TranscriptionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transcribe %s: status %d: %v", e.ArtifactID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transcribe %s: %v", e.ArtifactID, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// Unavailable always fails with ErrUnavailable.
var Unavailable Transcriber = Func(func(_ context.Context, a *audio.Artifact) (string, error) {
	return "", &TranscriptionError{ArtifactID: artifactID(a), Err: ErrUnavailable}
})

// =============================================================================
// WHISPER CLIENT
// =============================================================================

// Config holds WhisperClient settings.
type Config struct {
	// BaseURL of the OpenAI-compatible API, including the version prefix.
	BaseURL string

	// APIKey is sent as a bearer token. Local servers usually ignore it.
	APIKey string

	// Model is the transcription model (default "whisper-1").
	Model string

	// Language is an optional ISO-639-1 hint.
	Language string

	// Timeout bounds one upload (default 60s).
	Timeout time.Duration
}

// DefaultConfig returns the default transcription configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.openai.com/v1",
		Model:   goopenai.Whisper1,
		Timeout: 60 * time.Second,
	}
}

// WhisperClient transcribes through the go-openai audio API.
type WhisperClient struct {
	client   *goopenai.Client
	model    string
	language string
	logger   *slog.Logger
}

// NewWhisperClient creates a client for cfg.
func NewWhisperClient(cfg Config, logger *slog.Logger) *WhisperClient {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	oc := goopenai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &WhisperClient{
		client:   goopenai.NewClientWithConfig(oc),
		model:    cfg.Model,
		language: cfg.Language,
		logger:   logger.With(slog.String("module", "transcribe")),
	}
}

// Transcribe uploads the artifact and returns the trimmed text.
func (w *WhisperClient) Transcribe(ctx context.Context, a *audio.Artifact) (string, error) {
	id := artifactID(a)
	if a == nil || len(a.Data) <= 44 {
		return "", &TranscriptionError{ArtifactID: id, Err: ErrEmptyAudio}
	}

	start := time.Now()
	resp, err := w.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    w.model,
		FilePath: a.Filename(),
		Reader:   a.Reader(),
		Language: w.language,
	})
	if err != nil {
		w.logger.Warn("transcription failed",
			slog.String("artifact_id", id),
			slog.String("error", err.Error()))
		return "", wrap(id, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", &TranscriptionError{ArtifactID: id, Err: ErrNoSpeech}
	}

	w.logger.Debug("transcribed",
		slog.String("artifact_id", id),
		slog.Duration("took", time.Since(start)),
		slog.Int("chars", len(text)))
	return text, nil
}

func wrap(id string, err error) error {
	te := &TranscriptionError{ArtifactID: id, Err: err}

	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		te.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		te.StatusCode = reqErr.HTTPStatusCode
	}
	return te
}

func artifactID(a *audio.Artifact) string {
	if a == nil {
		return ""
	}
	return a.ID
}
