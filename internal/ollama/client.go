// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
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

// Is matches sentinel errors by type.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Cause == nil && t.Type == e.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
	ErrTypeBackend
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotRunning:
		return "not_running"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeModelNotFound:
		return "model_not_found"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrConnection    = &ClientError{Type: ErrTypeConnection, Message: "connection to Ollama lost"}
	ErrIncomplete    = &ClientError{Type: ErrTypeConnection, Message: "stream ended before done"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6 resolution issues on Windows
	BaseURL string

	// Timeout for non-streaming requests such as the health probe (default: 3s).
	// Streaming requests have no timeout and end only on done, error or cancel.
	Timeout time.Duration

	// DefaultModel to use if none specified (default: "llama2:7b")
	DefaultModel string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      "http://127.0.0.1:11434",
		Timeout:      3 * time.Second,
		DefaultModel: "llama2:7b",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config *ClientConfig
	stream *api.Client
	short  *api.Client
}

// NewClientWithConfig creates a new Ollama client. A nil config uses
// DefaultConfig.
func NewClientWithConfig(config *ClientConfig) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.DefaultModel == "" {
		config.DefaultModel = def.DefaultModel
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}

	return &Client{
		config: config,
		stream: api.NewClient(base, &http.Client{}),
		short:  api.NewClient(base, &http.Client{Timeout: config.Timeout}),
	}, nil
}

// GetConfig returns the current client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// GetDefaultModel returns the model used when a request names none.
func (c *Client) GetDefaultModel() string {
	return c.config.DefaultModel
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	return classify(c.short.Heartbeat(ctx))
}

// Probe implements connection.Prober.
func (c *Client) Probe(ctx context.Context) error {
	return c.CheckRunning(ctx)
}

// Version returns the server version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	v, err := c.short.Version(ctx)
	if err != nil {
		return "", classify(err)
	}
	return v, nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all available models from Ollama.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.short.List(ctx)
	if err != nil {
		return nil, classify(err)
	}

	models := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, ModelInfo{
			Name:       m.Name,
			Size:       m.Size,
			ModifiedAt: m.ModifiedAt,
			Family:     m.Details.Family,
			Parameters: m.Details.ParameterSize,
		})
	}
	return models, nil
}

// ModelExists reports whether the model is installed. A name without a tag
// matches its ":latest" variant.
func (c *Client) ModelExists(ctx context.Context, model string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.Name == model || (!strings.Contains(model, ":") && m.Name == model+":latest") {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

var errStopped = errors.New("consumer stopped")

// ChatStream sends a streaming chat request and yields each content delta in
// the order received. The sequence ends after the done chunk. A failure is
// yielded once as the final element. Cancelling ctx ends the sequence
// without an error; breaking out of the loop aborts the request.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model := req.Model
		if model == "" {
			model = c.config.DefaultModel
		}

		stream := true
		apiReq := &api.ChatRequest{
			Model:    model,
			Messages: toAPIMessages(req.Messages),
			Stream:   &stream,
			Options:  req.Options.toMap(),
		}

		done := false
		err := c.stream.Chat(ctx, apiReq, func(res api.ChatResponse) error {
			if res.Message.Content != "" {
				if !yield(res.Message.Content, nil) {
					return errStopped
				}
			}
			if res.Done {
				done = true
			}
			return nil
		})

		switch {
		case errors.Is(err, errStopped):
			return
		case errors.Is(ctx.Err(), context.Canceled):
			return
		case err != nil:
			yield("", classify(err))
		case !done:
			yield("", ErrIncomplete)
		}
	}
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// classify maps transport and API failures onto ClientError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		if statusErr.StatusCode == http.StatusNotFound {
			return &ClientError{Type: ErrTypeModelNotFound, Message: msg}
		}
		return &ClientError{Type: ErrTypeBackend, Message: msg}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
		}
		return &ClientError{Type: ErrTypeConnection, Message: ErrConnection.Message, Cause: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ClientError{Type: ErrTypeConnection, Message: ErrConnection.Message, Cause: err}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "malformed stream chunk", Cause: err}
	}

	// In-stream {"error": "..."} lines arrive as plain errors.
	if strings.Contains(err.Error(), "not found") {
		return &ClientError{Type: ErrTypeModelNotFound, Message: err.Error()}
	}
	return &ClientError{Type: ErrTypeBackend, Message: err.Error()}
}

// IsModelNotFound checks if an error indicates a model was not found.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}

// IsNotRunning checks if an error indicates Ollama is not running.
func IsNotRunning(err error) bool {
	return errors.Is(err, ErrNotRunning)
}

// IsTimeout checks if an error indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsConnectivity reports whether err means the backend could not be
// reached or the connection to it broke.
func IsConnectivity(err error) bool {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Type {
	case ErrTypeNotRunning, ErrTypeTimeout, ErrTypeConnection:
		return true
	}
	return false
}
