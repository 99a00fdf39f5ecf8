// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/event"
	"github.com/jeranaias/mashchat/internal/model"
)

// Sender delivers a message to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Listener forwards controller events into the Bubble Tea loop.
type Listener struct {
	sender Sender
}

var _ event.Listener = (*Listener)(nil)

// NewListener creates a listener that sends to s.
func NewListener(s Sender) *Listener {
	return &Listener{sender: s}
}

func (l *Listener) OnMessage(msg model.Message) { l.sender.Send(ConversationMsg{ID: msg.ID}) }
func (l *Listener) OnChunk(id, _ string)        { l.sender.Send(ConversationMsg{ID: id}) }
func (l *Listener) OnComplete(id string)        { l.sender.Send(ConversationMsg{ID: id}) }
func (l *Listener) OnError(id, _ string)        { l.sender.Send(ConversationMsg{ID: id}) }

func (l *Listener) OnConnectionChange(state connection.State) {
	l.sender.Send(ConnectionMsg{State: state})
}

func (l *Listener) OnRecording(rec event.Recording) { l.sender.Send(RecordingMsg{Recording: rec}) }
func (l *Listener) OnNotice(n event.Notice)         { l.sender.Send(NoticeMsg{Notice: n}) }
