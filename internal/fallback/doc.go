// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fallback synthesizes canned replies when live generation is
// unavailable.
//
// A Responder routes the user's text through an ordered keyword table
// (first match wins, default catch-all) and reveals the chosen reply
// through the same event.Sink a live stream uses, a few runes per tick.
// To the controller a fallback turn looks exactly like a live one.
package fallback
