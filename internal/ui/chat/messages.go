// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/event"
)

// =============================================================================
// CONVERSATION MESSAGES
// =============================================================================

// ConversationMsg signals that the conversation changed. The view re-reads
// the snapshot; ID names the message that changed, if any.
type ConversationMsg struct {
	ID string
}

// ConnectionMsg reports a backend state transition.
type ConnectionMsg struct {
	State connection.State
}

// RecordingMsg reports the capture state and elapsed time.
type RecordingMsg struct {
	Recording event.Recording
}

// NoticeMsg carries an inline notice.
type NoticeMsg struct {
	Notice event.Notice
}

// =============================================================================
// COMMAND RESULTS
// =============================================================================

// sendResultMsg is returned by the send command.
type sendResultMsg struct {
	err error
}

// recordResultMsg is returned by the record toggle command.
type recordResultMsg struct {
	err error
}

// noticeExpiredMsg clears the notice if it is still the one with seq.
type noticeExpiredMsg struct {
	seq int
}
