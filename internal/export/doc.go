// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved threads and live conversations to files.
//
// # Supported Formats
//
//   - Markdown: Human-readable, with YAML frontmatter
//   - JSON: The on-disk thread format
//   - YAML: Structured, with literal blocks for long replies
//
// System notices such as "Connected to ... model." are left out unless
// Options.IncludeSystem is set; error entries are always kept.
//
// # Usage
//
//	path, err := export.ExportConversation(conv, export.FormatMarkdown, export.DefaultOptions())
//
// Export a stored thread to stdout:
//
//	err := export.Write(os.Stdout, thread, export.FormatYAML, nil)
package export
