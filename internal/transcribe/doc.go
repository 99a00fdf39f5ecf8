// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcribe turns recorded audio artifacts into text.
//
// WhisperClient talks to any OpenAI-compatible /audio/transcriptions
// endpoint. Every failure is reported as a *TranscriptionError.
package transcribe
