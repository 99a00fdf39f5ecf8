// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes a chat conversation to browser clients over HTTP.
//
// JSON endpoints drive the conversation and an SSE stream pushes every
// conversation event as it happens.
//
// # Endpoints
//
//   - GET  /events                - SSE event stream
//   - GET  /api/status            - Connection, busy and recording state
//   - GET  /api/messages          - Conversation snapshot
//   - POST /api/messages          - Send {"text": "..."}; 202 with the reply id
//   - POST /api/stop              - Stop the active reply
//   - POST /api/recording/start   - Acquire the microphone
//   - POST /api/recording/stop    - Release it and transcribe
//   - GET  /api/audio/{id}        - WAV playback of a recording
//   - GET  /health                - Liveness
//
// # Events
//
// Event types are message, chunk, complete, error, connection, recording,
// notice and close. Data is always a JSON object. A client should load
// /api/messages after opening the stream and apply events on top of it.
//
// # Errors
//
// Rejections carry {"error": {"message", "code"}}. An empty message is 400,
// a send while a reply is active is 409 and a closed conversation is 503.
package server
