// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/mashchat/internal/model"
	"github.com/jeranaias/mashchat/internal/util"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("conversation has no messages")

// Generator is recorded in every transcript header.
const Generator = "mashchat"

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a conversation snapshot to one format.
type Exporter interface {
	// Export renders msgs and returns the content.
	Export(msgs []model.Message, meta Meta) ([]byte, error)

	// FileExtension returns the file extension, including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Meta describes the conversation being exported.
type Meta struct {
	Title      string    `json:"title"`
	Model      string    `json:"model,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts "md", "markdown" and "json", case-insensitively.
// An empty string selects Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (use md or json)", s)
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds a YAML frontmatter and a session section.
	IncludeMetadata bool

	// IncludeTimestamps adds a time to every message heading.
	IncludeTimestamps bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

// New returns the exporter for format.
func New(format Format, opts *Options) (Exporter, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(), nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile renders msgs with exporter into dir and returns the path
// of the written file. The file name is derived from meta.Title and the
// export time.
func ExportToFile(msgs []model.Message, meta Meta, exporter Exporter, dir string) (string, error) {
	if meta.ExportedAt.IsZero() {
		meta.ExportedAt = time.Now()
	}
	content, err := exporter.Export(msgs, meta)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if dir == "" {
		dir = "."
	}
	filename := fmt.Sprintf("mashchat_%s_%s%s",
		sanitizeFilename(meta.Title),
		meta.ExportedAt.Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// TitleFor picks a transcript title: the first user text, trimmed to 50
// runes, or "conversation".
func TitleFor(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Sender == model.SenderUser && strings.TrimSpace(m.Content) != "" {
			return firstLine(m.Preview(50))
		}
	}
	return "conversation"
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	result := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "conversation"
	}
	return string(result)
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// formatClip formats a recording length as mm:ss.
func formatClip(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
