// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	convo "github.com/jeranaias/mashchat/internal/chat"
	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/ui/styles"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}

	parts := []string{m.renderHeader()}
	if b := m.renderBanner(); b != "" {
		parts = append(parts, b)
	}
	parts = append(parts, m.viewport.View())
	if n := m.renderNotice(); n != "" {
		parts = append(parts, n)
	}
	parts = append(parts, m.renderInput(), m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// =============================================================================
// HEADER
// =============================================================================

// renderHeader draws the brand, model name, connection badge and, while
// recording, the capture timer.
func (m Model) renderHeader() string {
	t := m.theme
	left := t.HeaderBrand.Render("MASH")

	var right []string
	if m.recording.Active {
		right = append(right, t.Recording.Render(styles.StatusIndicators.Recording+" "+FormatElapsed(m.recording.Elapsed)))
	}
	right = append(right, m.badge())
	rightStr := strings.Join(right, " ")

	// The model name gets whatever room is left.
	if m.modelName != "" {
		room := m.width - lipgloss.Width(left) - lipgloss.Width(rightStr) - 6
		if room > 3 {
			left += " " + t.HeaderModel.Render(runewidth.Truncate(m.modelName, room, "..."))
		}
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(rightStr)-2, 1)
	return t.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + rightStr)
}

func (m Model) badge() string {
	label := m.connection.Indicator()
	switch m.connection {
	case connection.Connected:
		return m.theme.LiveBadge.Render(label)
	case connection.Disconnected:
		return m.theme.Offline.Render(label)
	default:
		return m.theme.Unknown.Render(label)
	}
}

// renderBanner explains offline mode while the backend is unreachable.
func (m Model) renderBanner() string {
	if m.connection != connection.Disconnected {
		return ""
	}
	return m.theme.Banner.Width(m.width).Render(styles.StatusIndicators.Warning + " " + convo.OfflineBanner)
}

// renderNotice draws the current inline notice.
func (m Model) renderNotice() string {
	if m.notice == nil {
		return ""
	}
	return m.theme.Notice.Width(m.width).Render(styles.StatusIndicators.Warning + " " + m.notice.Text)
}

// =============================================================================
// INPUT / FOOTER
// =============================================================================

func (m Model) renderInput() string {
	return m.theme.InputContainer.Render(m.input.View())
}

func (m Model) renderFooter() string {
	status := ""
	if m.busy {
		status = m.spinner.View() + " generating  "
	}
	return m.theme.Footer.Render(status + m.help.View(m.keys))
}

// =============================================================================
// HELPERS
// =============================================================================

// FormatElapsed formats a duration as mm:ss. Minutes keep counting past 59.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
