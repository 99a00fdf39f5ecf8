// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTheme_LayoutMode(t *testing.T) {
	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutNarrow},
		{59, LayoutNarrow},
		{60, LayoutMedium},
		{99, LayoutMedium},
		{100, LayoutWide},
		{200, LayoutWide},
	}

	th := NewTheme()
	for _, tt := range tests {
		th.SetSize(tt.width, 30)
		assert.Equal(t, tt.want, th.GetLayoutMode(), "width %d", tt.width)
	}
}

func TestTheme_StylesRenderText(t *testing.T) {
	th := NewTheme()
	for name, s := range map[string]string{
		"live":    th.LiveBadge.Render("[LIVE]"),
		"offline": th.Offline.Render("[OFFLINE]"),
		"notice":  th.Notice.Render("heads up"),
		"error":   th.ErrorText.Render("boom"),
	} {
		assert.NotEmpty(t, strings.TrimSpace(s), name)
	}
	assert.Contains(t, th.LiveBadge.Render("[LIVE]"), "[LIVE]")
}

func TestStatusIndicators_AreASCII(t *testing.T) {
	for _, s := range []string{
		StatusIndicators.Success,
		StatusIndicators.Error,
		StatusIndicators.Warning,
		StatusIndicators.Recording,
		StatusIndicators.Cancelled,
	} {
		for _, r := range s {
			assert.Less(t, r, rune(128), s)
		}
	}
}
