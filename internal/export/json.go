// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/mashchat/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter writes the full snapshot, using the same message encoding
// as the HTTP bridge.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Document is the top-level JSON transcript.
type Document struct {
	Meta
	Generator string          `json:"generator"`
	Messages  []model.Message `json:"messages"`
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(msgs []model.Message, meta Meta) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, ErrEmpty
	}
	if meta.Title == "" {
		meta.Title = TitleFor(msgs)
	}
	if meta.ExportedAt.IsZero() {
		meta.ExportedAt = time.Now()
	}
	return json.MarshalIndent(Document{
		Meta:      meta,
		Generator: Generator,
		Messages:  msgs,
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
