// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/tmaxmax/go-sse"

	"github.com/jeranaias/mashchat/internal/audio"
	"github.com/jeranaias/mashchat/internal/chat"
	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/event"
	"github.com/jeranaias/mashchat/internal/export"
	"github.com/jeranaias/mashchat/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// MaxRequestBodySize bounds JSON request bodies (64KB).
	MaxRequestBodySize = 64 * 1024

	// MaxMessageLength is the maximum rune count of one user message.
	MaxMessageLength = 8000
)

// ============================================================================
// CONVERSATION
// ============================================================================

// Conversation is the part of the chat controller the bridge drives.
// *chat.Controller implements it.
type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
	Stop()
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	Messages() []model.Message
	Busy() bool
	Connection() connection.State
	Recording() event.Recording
	Artifact(id string) (*audio.Artifact, bool)
	Subscribe(l event.Listener) func()
}

// ============================================================================
// CONFIG
// ============================================================================

// Config holds server settings.
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:8080).
	Addr string

	// Model is reported by the status endpoint.
	Model string

	// Version is reported by the status endpoint.
	Version string

	// AllowedOrigins enables CORS for browser clients. Empty disables it.
	AllowedOrigins []string

	// SendsPerMinute limits POST requests per client. Zero disables the limit.
	SendsPerMinute int
}

// ============================================================================
// SERVER
// ============================================================================

// Server exposes a Conversation over JSON endpoints and an SSE event stream.
type Server struct {
	conv   Conversation
	config Config
	logger *slog.Logger

	events      *sse.Server
	bridge      *bridge
	router      chi.Router
	unsubscribe func()

	server *http.Server
}

// New creates a server and subscribes it to the conversation.
func New(conv Conversation, cfg Config, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("module", "server"))

	s := &Server{
		conv:   conv,
		config: cfg,
		logger: logger,
		events: &sse.Server{
			OnSession: func(sess *sse.Session) (sse.Subscription, bool) {
				logger.Debug("event stream opened", slog.String("remote", sess.Req.RemoteAddr))
				return sse.Subscription{
					Client:      sess,
					LastEventID: sess.LastEventID,
					Topics:      []string{sse.DefaultTopic},
				}, true
			},
		},
	}
	s.bridge = newBridge(sseHub{s.events}, logger)
	s.unsubscribe = conv.Subscribe(s.bridge)
	s.setupRoutes()
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.config.Addr
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware())
	if len(s.config.AllowedOrigins) > 0 {
		cors := DefaultCORSConfig()
		cors.AllowedOrigins = s.config.AllowedOrigins
		r.Use(CORSMiddleware(cors))
	}
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Handle("/events", s.events)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/messages", s.handleMessages)
		r.Get("/audio/{id}", s.handleAudio)
		r.Get("/export", s.handleExport)

		r.Group(func(r chi.Router) {
			if s.config.SendsPerMinute > 0 {
				r.Use(RateLimitMiddleware(NewRateLimiter(s.config.SendsPerMinute, time.Minute)))
			}
			r.Post("/messages", s.handleSend)
			r.Post("/stop", s.handleStop)
			r.Post("/recording/start", s.handleRecordingStart)
			r.Post("/recording/stop", s.handleRecordingStop)
		})
	})

	s.router = r
}

// ============================================================================
// HANDLERS
// ============================================================================

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Connection string          `json:"connection"`
	Live       bool            `json:"live"`
	Busy       bool            `json:"busy"`
	Recording  event.Recording `json:"recording"`
	Model      string          `json:"model,omitempty"`
	Version    string          `json:"version,omitempty"`
	Messages   int             `json:"messages"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.conv.Connection()
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Connection: state.String(),
		Live:       state == connection.Connected,
		Busy:       s.conv.Busy(),
		Recording:  s.conv.Recording(),
		Model:      s.config.Model,
		Version:    s.config.Version,
		Messages:   len(s.conv.Messages()),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"messages": s.conv.Messages(),
	})
}

// SendRequest is the body of POST /api/messages.
type SendRequest struct {
	Text string `json:"text"`
}

// SendResponse is returned when a turn is accepted.
type SendResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", MaxRequestBodySize))
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid request format")
		return
	}
	if n := len([]rune(req.Text)); n > MaxMessageLength {
		s.writeError(w, http.StatusBadRequest, "message exceeds maximum length of "+strconv.Itoa(MaxMessageLength))
		return
	}

	id, err := s.conv.Send(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, SendResponse{ID: id})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.conv.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.StartRecording(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.conv.Recording())
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.StopRecording(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.conv.Recording())
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	a, ok := s.conv.Artifact(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "recording not found")
		return
	}
	w.Header().Set("Content-Type", a.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Content-Disposition", `inline; filename="`+a.Filename()+`"`)
	if _, err := io.Copy(w, a.Reader()); err != nil {
		s.logger.Debug("audio write failed", slog.String("error", err.Error()))
	}
}

// handleExport serves the conversation as a transcript download.
// The format query parameter selects md (default) or json.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	exp, err := export.New(format, nil)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs := s.conv.Messages()
	data, err := exp.Export(msgs, export.Meta{Model: s.config.Model})
	if errors.Is(err, export.ErrEmpty) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", exp.MimeType()+"; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="mashchat`+exp.FileExtension()+`"`)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("export write failed", slog.String("error", err.Error()))
	}
}

// statusFor maps conversation errors onto HTTP status codes.
func statusFor(err error) int {
	var perm *audio.PermissionError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrBusy), errors.Is(err, audio.ErrDeviceBusy):
		return http.StatusConflict
	case errors.Is(err, chat.ErrClosed), errors.Is(err, audio.ErrNoDevice):
		return http.StatusServiceUnavailable
	case errors.As(err, &perm):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start listens on the configured address and blocks until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	if !connection.IsLocalhost(s.config.Addr) {
		s.logger.Warn("listening on a non-loopback address; the API has no authentication",
			slog.String("addr", s.config.Addr))
	}

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("server listening", slog.String("addr", s.config.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown closes event streams, then stops accepting requests and waits
// for active ones until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	s.logger.Info("server shutting down")
	s.bridge.close()

	err := s.events.Shutdown(ctx)
	if s.server != nil {
		err = errors.Join(err, s.server.Shutdown(ctx))
	}
	return err
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response write failed", slog.String("error", err.Error()))
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
