// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package event defines the callback contracts between producers, the
// conversation controller and user interfaces.
//
// # Key Types
//
//   - Sink: receives chunk/complete/error callbacks from a generation producer
//   - Listener: receives state changes from the controller (UI side)
//   - Bus: fans one stream of Listener calls out to many subscribers
//   - Handle: the cancellation handle of one in-flight producer
//
// A producer calls exactly one of Sink.OnComplete or Sink.OnError per turn,
// always from the same goroutine that delivered the chunks.
package event
