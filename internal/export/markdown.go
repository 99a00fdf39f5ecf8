// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/mashchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown format.
func (e *MarkdownExporter) Export(msgs []model.Message, meta Meta) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, ErrEmpty
	}
	if meta.Title == "" {
		meta.Title = TitleFor(msgs)
	}
	if meta.ExportedAt.IsZero() {
		meta.ExportedAt = time.Now()
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(meta.Title))
		if meta.Model != "" {
			fmt.Fprintf(&sb, "model: %s\n", escapeYAML(meta.Model))
		}
		fmt.Fprintf(&sb, "date: %s\n", msgs[0].CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(msgs))
		fmt.Fprintf(&sb, "exported: %s\n", meta.ExportedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "generator: %s\n", Generator)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(meta.Title))

	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		if meta.Model != "" {
			fmt.Fprintf(&sb, "- **Model**: %s\n", meta.Model)
		}
		fmt.Fprintf(&sb, "- **Started**: %s\n", formatTimestamp(msgs[0].CreatedAt))
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(msgs))
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")
	for i, msg := range msgs {
		label := msg.Sender.DisplayName()
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(e.formatMessage(msg))
		sb.WriteString("\n\n")

		if i < len(msgs)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from %s on %s*\n", Generator,
		meta.ExportedAt.Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// formatMessage renders the body of one message, including its outcome.
func (e *MarkdownExporter) formatMessage(msg model.Message) string {
	var parts []string

	if msg.Kind == model.KindAudio {
		clip := "*(voice)*"
		if msg.Playback != nil {
			clip = fmt.Sprintf("*(voice %s)*", formatClip(msg.Playback.Duration))
		}
		parts = append(parts, clip)
	}

	if content := strings.TrimSpace(msg.Content); content != "" {
		parts = append(parts, content)
	}

	switch s := msg.State.(type) {
	case model.Pending, model.Streaming, model.AudioPending:
		parts = append(parts, "*(in progress)*")
	case model.Complete:
		if s.Cancelled {
			parts = append(parts, "*[stopped]*")
		}
	case model.Failed:
		parts = append(parts, "> **Error**: "+s.Reason)
	case model.AudioFailed:
		parts = append(parts, "> **Error**: "+s.Reason)
	}

	return strings.Join(parts, "\n\n")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("#", `\#`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}

// escapeYAML quotes s when it holds characters YAML would interpret.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
		return `"` + r.Replace(s) + `"`
	}
	return s
}
