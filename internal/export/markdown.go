// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports threads to Markdown with YAML frontmatter.
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

// frontMatter is the metadata block at the top of the document.
type frontMatter struct {
	Title     string `yaml:"title"`
	ThreadID  string `yaml:"thread_id,omitempty"`
	Model     string `yaml:"model"`
	Created   string `yaml:"created,omitempty"`
	Updated   string `yaml:"updated,omitempty"`
	Messages  int    `yaml:"messages"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export converts a thread to Markdown.
func (e *MarkdownExporter) Export(t *storage.Thread) ([]byte, error) {
	if err := check(t); err != nil {
		return nil, err
	}

	messages := e.options.messages(t)
	exported := e.options.now()

	var sb strings.Builder

	if e.options.IncludeMetadata {
		// yaml.v3 quotes titles that would break the block
		meta, err := yaml.Marshal(frontMatter{
			Title:     t.Name,
			ThreadID:  t.ID,
			Model:     t.Model,
			Created:   t.CreatedAt,
			Updated:   t.UpdatedAt,
			Messages:  len(messages),
			Exported:  exported.Format(time.RFC3339),
			Generator: "threadchat",
		})
		if err != nil {
			return nil, fmt.Errorf("encode frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(meta)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(singleLine(t.Name)))

	if e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "- **Model**: %s\n", t.Model)
		if t.CreatedAt != "" {
			fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(t.CreatedAt))
		}
		if t.UpdatedAt != "" {
			fmt.Fprintf(&sb, "- **Last Updated**: %s\n", formatTimestamp(t.UpdatedAt))
		}
		fmt.Fprintf(&sb, "- **Messages**: %d\n\n---\n\n", len(messages))
	}

	for i, msg := range messages {
		label := roleLabel(msg)
		if e.options.IncludeTimestamps && msg.Timestamp != "" {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		content := strings.TrimSpace(msg.Content)
		if msg.IsError {
			content = quote(content)
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if i < len(messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "---\n\n*Exported from threadchat on %s*\n",
		exported.Format("January 2, 2006 at 3:04 PM"))

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

func roleLabel(msg model.Message) string {
	switch {
	case msg.IsError:
		return "Error"
	case msg.Role == model.RoleAssistant && msg.Model != "":
		return fmt.Sprintf("Assistant (%s)", msg.Model)
	case msg.Role == "":
		return "Unknown"
	}
	return msg.Role.DisplayName()
}

// quote turns text into a Markdown blockquote.
func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// singleLine collapses line breaks so a heading stays one line.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// escapeMarkdown escapes characters that would break formatting in headings.
func escapeMarkdown(s string) string {
	return strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	).Replace(s)
}
