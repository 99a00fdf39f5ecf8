// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/jeranaias/mashchat/internal/event"
	"github.com/jeranaias/mashchat/internal/model"
	"github.com/jeranaias/mashchat/internal/ollama"
)

// DefaultSystemPrompt is prepended to every request.
const DefaultSystemPrompt = "You are a helpful AI assistant named MASH-BOT. You are assisting users on the MASH-AI website."

// ErrActive is returned by Start while a previous exchange is still running.
var ErrActive = errors.New("a generation is already active")

// =============================================================================
// CONFIG
// =============================================================================

// Generator produces the delta sequence for one chat request.
// *ollama.Client satisfies it.
type Generator interface {
	ChatStream(ctx context.Context, req ollama.ChatRequest) iter.Seq2[string, error]
}

// Config holds session settings.
type Config struct {
	// SystemPrompt is the fixed instruction sent first.
	SystemPrompt string

	// HistoryLimit is the number of prior messages sent with each turn.
	HistoryLimit int

	// Model used when a request names none.
	Model string

	// Temperature for generation (0 leaves the backend default).
	Temperature float64
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		SystemPrompt: DefaultSystemPrompt,
		HistoryLimit: model.DefaultHistoryLimit,
		Temperature:  0.7,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// TransportError reports a failed exchange. Delivered counts the chunks
// handed to the sink before the failure.
type TransportError struct {
	Err       error
	Delivered int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream failed after %d chunks: %v", e.Delivered, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BeforeContent reports whether the failure happened before any chunk.
func (e *TransportError) BeforeContent() bool {
	return e.Delivered == 0
}

// Connectivity reports whether the backend was unreachable or the link broke.
func (e *TransportError) Connectivity() bool {
	return ollama.IsConnectivity(e.Err)
}

// =============================================================================
// SESSION
// =============================================================================

// Request is one generation turn.
type Request struct {
	// MessageID is the assistant message the deltas belong to.
	MessageID string

	// History holds the messages preceding the new user turn.
	History []model.Message

	UserText string
	Model    string
}

// Session manages live-generation exchanges, one at a time.
type Session struct {
	gen    Generator
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	active *event.Handle
}

// NewSession creates a session over gen.
func NewSession(gen Generator, cfg Config, logger *slog.Logger) *Session {
	def := DefaultConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		gen:    gen,
		config: cfg,
		logger: logger.With(slog.String("module", "stream")),
	}
}

// Start opens the stream for req and returns its cancellation handle.
// Callbacks on sink arrive from a single goroutine in receipt order.
func (s *Session) Start(ctx context.Context, req Request, sink event.Sink) (*event.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		select {
		case <-s.active.Done():
		default:
			return nil, ErrActive
		}
	}

	h, hctx := event.NewHandle(ctx)
	s.active = h

	chatReq := ollama.ChatRequest{
		Model:    req.Model,
		Messages: s.BuildMessages(req.History, req.UserText),
	}
	if chatReq.Model == "" {
		chatReq.Model = s.config.Model
	}
	if s.config.Temperature != 0 {
		chatReq.Options = &ollama.Options{Temperature: s.config.Temperature}
	}

	s.logger.Debug("stream started",
		slog.String("message_id", req.MessageID),
		slog.Int("messages", len(chatReq.Messages)))

	go s.run(hctx, h, req.MessageID, chatReq, sink)
	return h, nil
}

func (s *Session) run(ctx context.Context, h *event.Handle, id string, req ollama.ChatRequest, sink event.Sink) {
	defer h.Finish()

	delivered := 0
	for delta, err := range s.gen.ChatStream(ctx, req) {
		if h.Cancelled() {
			break
		}
		if err != nil {
			s.logger.Warn("stream failed",
				slog.String("message_id", id),
				slog.Int("delivered", delivered),
				slog.String("error", err.Error()))
			s.release(h)
			sink.OnError(id, &TransportError{Err: err, Delivered: delivered})
			return
		}
		sink.OnChunk(id, delta)
		delivered++
	}

	s.logger.Debug("stream finished",
		slog.String("message_id", id),
		slog.Int("delivered", delivered),
		slog.Bool("cancelled", h.Cancelled()))
	s.release(h)
	sink.OnComplete(id)
}

// release frees the active slot ahead of the terminal callback, so a turn
// started from that callback, or right after it, is not refused.
func (s *Session) release(h *event.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == h {
		s.active = nil
	}
}

// BuildMessages assembles the request transcript: the system prompt, the
// canonical history and the new user turn.
func (s *Session) BuildMessages(history []model.Message, userText string) []ollama.Message {
	prior := model.Transcript(history, s.config.HistoryLimit)

	msgs := make([]ollama.Message, 0, len(prior)+2)
	msgs = append(msgs, ollama.NewSystemMessage(s.config.SystemPrompt))
	for _, m := range prior {
		if m.Sender == model.SenderUser {
			msgs = append(msgs, ollama.NewUserMessage(m.Content))
		} else {
			msgs = append(msgs, ollama.NewAssistantMessage(m.Content))
		}
	}
	return append(msgs, ollama.NewUserMessage(userText))
}
