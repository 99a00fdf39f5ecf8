// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the conversation controller.
//
// The Controller owns the message store and routes every turn either to a
// live stream or to the canned fallback, depending on backend reachability.
// Voice turns go through capture and transcription first and then follow
// the same path as typed input. User interfaces observe the conversation by
// subscribing an event.Listener.
package chat
