// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"log/slog"

	"github.com/tmaxmax/go-sse"

	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/event"
	"github.com/jeranaias/mashchat/internal/model"
)

// Event types sent on /events. Every event carries a JSON object.
const (
	EventMessage    = "message"
	EventChunk      = "chunk"
	EventComplete   = "complete"
	EventError      = "error"
	EventConnection = "connection"
	EventRecording  = "recording"
	EventNotice     = "notice"
	EventClose      = "close"
)

// hub publishes one encoded event to every open stream.
type hub interface {
	publish(kind string, data []byte) error
}

type sseHub struct {
	srv *sse.Server
}

func (h sseHub) publish(kind string, data []byte) error {
	msg := &sse.Message{Type: sse.Type(kind)}
	msg.AppendData(string(data))
	return h.srv.Publish(msg)
}

// bridge forwards conversation events to the hub.
type bridge struct {
	hub    hub
	logger *slog.Logger
}

var _ event.Listener = (*bridge)(nil)

func newBridge(h hub, logger *slog.Logger) *bridge {
	return &bridge{hub: h, logger: logger}
}

type chunkPayload struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type idPayload struct {
	ID string `json:"id"`
}

type errorPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type connectionPayload struct {
	State string `json:"state"`
	Live  bool   `json:"live"`
}

func (b *bridge) send(kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("encode event", slog.String("type", kind), slog.String("error", err.Error()))
		return
	}
	if err := b.hub.publish(kind, data); err != nil {
		b.logger.Debug("publish event", slog.String("type", kind), slog.String("error", err.Error()))
	}
}

func (b *bridge) OnMessage(msg model.Message) { b.send(EventMessage, msg) }

func (b *bridge) OnChunk(id, delta string) {
	b.send(EventChunk, chunkPayload{ID: id, Delta: delta})
}

func (b *bridge) OnComplete(id string) { b.send(EventComplete, idPayload{ID: id}) }

func (b *bridge) OnError(id, reason string) {
	b.send(EventError, errorPayload{ID: id, Reason: reason})
}

func (b *bridge) OnConnectionChange(state connection.State) {
	b.send(EventConnection, connectionPayload{State: state.String(), Live: state == connection.Connected})
}

func (b *bridge) OnRecording(rec event.Recording) { b.send(EventRecording, rec) }

func (b *bridge) OnNotice(n event.Notice) { b.send(EventNotice, n) }

func (b *bridge) close() { b.send(EventClose, struct{}{}) }
