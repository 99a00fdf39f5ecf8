// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mashchat/internal/audio"
	convo "github.com/jeranaias/mashchat/internal/chat"
	"github.com/jeranaias/mashchat/internal/event"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConversationMsg:
		m.refresh()
		m.updateViewport()
		return m, nil

	case ConnectionMsg:
		m.connection = msg.State
		m.layout()
		m.updateViewport()
		return m, nil

	case RecordingMsg:
		m.recording = msg.Recording
		return m, nil

	case NoticeMsg:
		return m, m.showNotice(msg.Notice)

	case sendResultMsg:
		m.refresh()
		m.updateViewport()
		return m, m.handleSendResult(msg.err)

	case recordResultMsg:
		m.recording = m.conv.Recording()
		if msg.err != nil && !isPermission(msg.err) {
			// Permission failures arrive as a controller notice.
			return m, m.showNotice(event.Notice{Kind: event.NoticePermission, Text: msg.err.Error()})
		}
		return m, nil

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = nil
			m.layout()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.busy {
			m.updateViewport()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Stop):
		if m.busy {
			m.conv.Stop()
		}
		return m, nil

	case key.Matches(msg, m.keys.Record):
		return m, m.toggleRecording()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input. The text stays in the box when the controller
// is busy so nothing typed is lost.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.busy {
		return m, m.showNotice(event.Notice{Kind: event.NoticeBusy, Text: convo.BusyNotice})
	}

	m.input.Reset()
	m.busy = true
	conv, ctx := m.conv, m.ctx
	return m, func() tea.Msg {
		_, err := conv.Send(ctx, text)
		return sendResultMsg{err: err}
	}
}

func (m *Model) handleSendResult(err error) tea.Cmd {
	switch {
	case err == nil, errors.Is(err, convo.ErrEmptyMessage):
		return nil
	case errors.Is(err, convo.ErrBusy):
		return m.showNotice(event.Notice{Kind: event.NoticeBusy, Text: convo.BusyNotice})
	default:
		return m.showNotice(event.Notice{Kind: event.NoticeTransport, Text: err.Error()})
	}
}

func (m Model) toggleRecording() tea.Cmd {
	conv, ctx := m.conv, m.ctx
	if m.recording.Active {
		return func() tea.Msg {
			return recordResultMsg{err: conv.StopRecording(ctx)}
		}
	}
	return func() tea.Msg {
		return recordResultMsg{err: conv.StartRecording(ctx)}
	}
}

func isPermission(err error) bool {
	var perm *audio.PermissionError
	return errors.As(err, &perm)
}

// =============================================================================
// NOTICES
// =============================================================================

// showNotice displays n and schedules its removal.
func (m *Model) showNotice(n event.Notice) tea.Cmd {
	m.noticeSeq++
	m.notice = &n
	m.layout()

	seq := m.noticeSeq
	return tea.Tick(NoticeDuration, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)
	m.help.Width = msg.Width
	m.input.SetWidth(max(msg.Width-4, 10))
	m.setRenderer(contentWidth(msg.Width))
	m.ready = true
	m.layout()
	m.updateViewport()
	return m
}

// layout sizes the viewport to what the surrounding chrome leaves over.
// Heights are measured from the rendered pieces.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	chrome := lipgloss.Height(m.renderHeader()) +
		lipgloss.Height(m.renderInput()) +
		lipgloss.Height(m.renderFooter())
	if b := m.renderBanner(); b != "" {
		chrome += lipgloss.Height(b)
	}
	if n := m.renderNotice(); n != "" {
		chrome += lipgloss.Height(n)
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chrome, 1)
}

// updateViewport redraws the transcript, following the tail when the user
// has not scrolled up.
func (m *Model) updateViewport() {
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if follow {
		m.viewport.GotoBottom()
	}
}

func contentWidth(width int) int {
	return max(width-4, 20)
}
