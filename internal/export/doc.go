// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation snapshot as a Markdown or JSON
// transcript.
//
// # Key Types
//
//   - Exporter: renders messages into one format
//   - Meta: title and model recorded in the transcript header
//   - Options: metadata and timestamp toggles
//
// # Usage
//
//	exp, err := export.New(export.FormatMarkdown, nil)
//	path, err := export.ExportToFile(ctrl.Messages(), meta, exp, ".")
//
// Transcripts are write-only. Nothing in mashchat reads them back.
package export
