// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package event

import (
	"time"

	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/model"
)

// =============================================================================
// PRODUCER SIDE
// =============================================================================

// Sink receives the output of one generation producer.
type Sink interface {
	// OnChunk delivers the next delta in receipt order.
	OnChunk(id, delta string)

	// OnComplete is called at end of stream or after cancellation.
	OnComplete(id string)

	// OnError is called when generation fails. Chunks already delivered stand.
	OnError(id string, err error)
}

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	Chunk    func(id, delta string)
	Complete func(id string)
	Error    func(id string, err error)
}

func (f SinkFuncs) OnChunk(id, delta string) {
	if f.Chunk != nil {
		f.Chunk(id, delta)
	}
}

func (f SinkFuncs) OnComplete(id string) {
	if f.Complete != nil {
		f.Complete(id)
	}
}

func (f SinkFuncs) OnError(id string, err error) {
	if f.Error != nil {
		f.Error(id, err)
	}
}

// =============================================================================
// UI SIDE
// =============================================================================

// NoticeKind classifies inline notices shown next to the conversation.
type NoticeKind string

const (
	NoticePermission    NoticeKind = "permission"
	NoticeTranscription NoticeKind = "transcription"
	NoticeTransport     NoticeKind = "transport"
	NoticeBusy          NoticeKind = "busy"
)

// Notice is a user-visible inline message that is not part of the conversation.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

// Recording describes the capture state shown by the UI.
type Recording struct {
	Active  bool          `json:"active"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Seconds returns the elapsed time in whole seconds.
func (r Recording) Seconds() int {
	return int(r.Elapsed / time.Second)
}

// Listener observes the conversation. Calls arrive from controller and
// producer goroutines; implementations must not block.
type Listener interface {
	// OnMessage is called when a message is appended or reaches a terminal state.
	OnMessage(msg model.Message)
	OnChunk(id, delta string)
	OnComplete(id string)
	OnError(id, reason string)
	OnConnectionChange(state connection.State)
	OnRecording(rec Recording)
	OnNotice(n Notice)
}

// Nop implements Listener with no-ops. Embed it to implement a subset.
type Nop struct{}

func (Nop) OnMessage(model.Message)             {}
func (Nop) OnChunk(string, string)              {}
func (Nop) OnComplete(string)                   {}
func (Nop) OnError(string, string)              {}
func (Nop) OnConnectionChange(connection.State) {}
func (Nop) OnRecording(Recording)               {}
func (Nop) OnNotice(Notice)                     {}
