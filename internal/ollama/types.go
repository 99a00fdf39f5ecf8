// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
package ollama

import (
	"fmt"
	"time"

	"github.com/ollama/ollama/api"
)

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// Roles accepted by /api/chat.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message in the Ollama format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatRequest is a streaming request to /api/chat.
type ChatRequest struct {
	Model    string
	Messages []Message
	Options  *Options
}

// Options contains model generation parameters. Zero fields are not sent.
type Options struct {
	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative)
	Temperature float64

	// TopP is nucleus sampling threshold
	TopP float64

	// NumCtx is the context window size
	NumCtx int

	// NumPredict is max tokens to generate (-1 = unlimited)
	NumPredict int

	// Seed for reproducible outputs
	Seed int
}

func (o *Options) toMap() map[string]any {
	if o == nil {
		return nil
	}
	m := make(map[string]any, 5)
	if o.Temperature != 0 {
		m["temperature"] = o.Temperature
	}
	if o.TopP != 0 {
		m["top_p"] = o.TopP
	}
	if o.NumCtx != 0 {
		m["num_ctx"] = o.NumCtx
	}
	if o.NumPredict != 0 {
		m["num_predict"] = o.NumPredict
	}
	if o.Seed != 0 {
		m["seed"] = o.Seed
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func toAPIMessages(msgs []Message) []api.Message {
	out := make([]api.Message, len(msgs))
	for i, m := range msgs {
		out[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo describes a locally installed model.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Family     string    `json:"family,omitempty"`
	Parameters string    `json:"parameter_size,omitempty"`
}

// FormatSize returns a human-readable size string.
func (m *ModelInfo) FormatSize() string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case m.Size >= GB:
		return fmt.Sprintf("%.1f GB", float64(m.Size)/GB)
	case m.Size >= MB:
		return fmt.Sprintf("%.1f MB", float64(m.Size)/MB)
	case m.Size >= KB:
		return fmt.Sprintf("%.1f KB", float64(m.Size)/KB)
	default:
		return fmt.Sprintf("%d B", m.Size)
	}
}
