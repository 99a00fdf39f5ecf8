// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SENDER / KIND / STATUS
// =============================================================================

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderAssistant:
		return "MASH-BOT"
	default:
		return string(s)
	}
}

// Kind is the payload type of a message.
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

// Status is the public lifecycle status of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// =============================================================================
// STATE VARIANTS
// =============================================================================

// State is the lifecycle state of a message. Each variant carries only the
// fields that are valid for it.
type State interface {
	Status() Status
	isState()
}

// Pending is an assistant message waiting for its first chunk.
type Pending struct{}

// Streaming is a message receiving deltas.
type Streaming struct {
	Since time.Time
}

// Complete is a finished message. Cancelled is set when the user stopped
// generation and the content is partial.
type Complete struct {
	At        time.Time
	Cancelled bool
}

// Failed is a message whose generation broke mid-flight.
type Failed struct {
	At     time.Time
	Reason string
}

// AudioPending is a recorded user message awaiting transcription.
type AudioPending struct{}

// AudioFailed is a recorded user message that could not be transcribed.
type AudioFailed struct {
	At     time.Time
	Reason string
}

func (Pending) Status() Status      { return StatusPending }
func (Streaming) Status() Status    { return StatusStreaming }
func (Complete) Status() Status     { return StatusComplete }
func (Failed) Status() Status       { return StatusError }
func (AudioPending) Status() Status { return StatusPending }
func (AudioFailed) Status() Status  { return StatusError }

func (Pending) isState()      {}
func (Streaming) isState()    {}
func (Complete) isState()     {}
func (Failed) isState()       {}
func (AudioPending) isState() {}
func (AudioFailed) isState()  {}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Playback references a captured audio artifact.
type Playback struct {
	ArtifactID string        `json:"artifact_id"`
	MIMEType   string        `json:"mime_type"`
	Duration   time.Duration `json:"duration_ns"`
}

// Message is a single entry of a conversation. Values returned by the Store
// are snapshots; mutate only through Store methods.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	State     State     `json:"-"`

	// Playback is set only for KindAudio.
	Playback *Playback `json:"playback,omitempty"`
}

// NewUserMessage creates a complete user text message.
func NewUserMessage(content string) Message {
	now := time.Now()
	return Message{
		ID:        generateID(),
		Sender:    SenderUser,
		Kind:      KindText,
		Content:   content,
		CreatedAt: now,
		State:     Complete{At: now},
	}
}

// NewAssistantMessage creates an empty pending assistant message.
func NewAssistantMessage() Message {
	return Message{
		ID:        generateID(),
		Sender:    SenderAssistant,
		Kind:      KindText,
		CreatedAt: time.Now(),
		State:     Pending{},
	}
}

// NewAudioMessage creates a user audio message awaiting transcription.
func NewAudioMessage(playback Playback) Message {
	return Message{
		ID:        generateID(),
		Sender:    SenderUser,
		Kind:      KindAudio,
		CreatedAt: time.Now(),
		State:     AudioPending{},
		Playback:  &playback,
	}
}

// Status returns the projected lifecycle status.
func (m Message) Status() Status {
	if m.State == nil {
		return StatusPending
	}
	return m.State.Status()
}

// IsTerminal returns true once the message can no longer change.
func (m Message) IsTerminal() bool {
	return m.Status().Terminal()
}

// ErrorReason returns the failure reason for failed messages.
func (m Message) ErrorReason() string {
	switch s := m.State.(type) {
	case Failed:
		return s.Reason
	case AudioFailed:
		return s.Reason
	}
	return ""
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// MarshalJSON flattens the state variant into status and error fields.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	return json.Marshal(struct {
		plain
		Status Status `json:"status"`
		Error  string `json:"error,omitempty"`
	}{
		plain:  plain(m),
		Status: m.Status(),
		Error:  m.ErrorReason(),
	})
}

func generateID() string {
	return uuid.NewString()
}
