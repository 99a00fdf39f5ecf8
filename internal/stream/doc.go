// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream runs one cancellable live-generation exchange.
//
// A Session turns conversation history plus a new user turn into a chat
// request, consumes the generator's delta sequence on its own goroutine and
// drives the result into an event.Sink. Every Start ends in exactly one
// terminal callback. Cancelling the returned handle is a successful
// completion with partial content, never an error.
package stream
