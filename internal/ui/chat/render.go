// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/mashchat/internal/model"
	"github.com/jeranaias/mashchat/internal/ui/styles"
)

// renderMessages draws the whole transcript.
func (m *Model) renderMessages() string {
	if len(m.messages) == 0 {
		return m.theme.Timestamp.Render("  No messages yet.")
	}

	width := contentWidth(m.width)
	blocks := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		blocks = append(blocks, m.renderMessage(msg, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg model.Message, width int) string {
	t := m.theme
	label := t.UserLabel.Render(msg.Sender.DisplayName())
	if msg.Sender == model.SenderAssistant {
		label = t.AssistantLabel.Render(msg.Sender.DisplayName())
	}
	header := label + " " + t.Timestamp.Render(msg.CreatedAt.Format("15:04"))

	var body string
	if msg.Kind == model.KindAudio {
		body = m.renderAudio(msg, width)
	} else if msg.Sender == model.SenderAssistant {
		body = m.renderAssistant(msg, width)
	} else {
		body = t.MessageBody.Render(wrap(msg.Content, width))
	}
	return header + "\n" + body
}

func (m *Model) renderAudio(msg model.Message, width int) string {
	t := m.theme
	clip := "(voice)"
	if msg.Playback != nil {
		clip = "(voice " + FormatElapsed(msg.Playback.Duration) + ")"
	}
	lines := []string{t.AudioBody.Render(clip)}

	switch s := msg.State.(type) {
	case model.AudioPending:
		lines = append(lines, t.AudioBody.Render("transcribing..."))
	case model.AudioFailed:
		lines = append(lines, t.ErrorText.Render(styles.StatusIndicators.Error+" "+s.Reason))
	default:
		if msg.Content != "" {
			lines = append(lines, t.MessageBody.Render(wrap(msg.Content, width)))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderAssistant(msg model.Message, width int) string {
	t := m.theme
	switch s := msg.State.(type) {
	case model.Pending:
		return t.MessageBody.Render(m.spinner.View())

	case model.Streaming:
		return t.MessageBody.Render(wrap(msg.Content, width) + t.Cursor.Render("_"))

	case model.Failed:
		var lines []string
		if msg.Content != "" {
			lines = append(lines, t.MessageBody.Render(wrap(msg.Content, width)))
		}
		lines = append(lines, t.ErrorText.Render(styles.StatusIndicators.Error+" "+s.Reason))
		return strings.Join(lines, "\n")

	case model.Complete:
		body := m.renderFinished(msg, width)
		if s.Cancelled {
			body += "\n" + t.MessageBody.Render(t.Cancelled.Render(styles.StatusIndicators.Cancelled))
		}
		return body
	}
	return t.MessageBody.Render(wrap(msg.Content, width))
}

// renderFinished renders a complete reply as markdown. Output is cached by
// message id since finished messages never change.
func (m *Model) renderFinished(msg model.Message, width int) string {
	if m.renderer == nil {
		return m.theme.MessageBody.Render(wrap(msg.Content, width))
	}
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out, err := m.renderer.Render(msg.Content)
	if err != nil {
		return m.theme.MessageBody.Render(wrap(msg.Content, width))
	}
	out = strings.TrimRight(out, "\n")
	m.rendered[msg.ID] = out
	return out
}

func wrap(s string, width int) string {
	return runewidth.Wrap(s, width)
}
