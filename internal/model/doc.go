// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the conversation log and the lifecycle of a single
// message. Every message moves through Pending, Streaming and then exactly
// one terminal state. Illegal moves are reported as *TransitionError.
//
// # Key Types
//
//   - Message: one entry with sender, kind, content and a State variant
//   - State: sealed variant (Pending, Streaming, Complete, Failed, AudioPending, AudioFailed)
//   - Store: ordered, append-only log; only the in-flight tail may change
//
// # Usage
//
//	store := model.NewStore()
//	_ = store.Append(model.NewUserMessage("Hello!"))
//	reply := model.NewAssistantMessage()
//	_ = store.Append(reply)
//	_ = store.MarkStreaming(reply.ID)
//	_ = store.AppendDelta(reply.ID, "Hi there")
//	_ = store.MarkComplete(reply.ID)
//
// Build the history sent with the next turn:
//
//	history := model.Transcript(store.Messages(), model.DefaultHistoryLimit)
package model
