// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/storage"
	"github.com/jeranaias/threadchat/internal/util"
)

// ErrEmptyThread is returned when there is nothing to export.
var ErrEmptyThread = errors.New("thread has no messages")

// =============================================================================
// FORMATS
// =============================================================================

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatMarkdown, FormatJSON, FormatYAML}

// ParseFormat accepts a format name or its usual file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "markdown", "md", "":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a thread into one format.
type Exporter interface {
	// Export converts a thread to the target format and returns the content.
	Export(t *storage.Thread) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".md").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// New returns the exporter for format.
func New(format Format, opts *Options) (Exporter, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	case FormatYAML:
		return NewYAMLExporter(opts), nil
	}
	return nil, fmt.Errorf("unsupported export format: %s", format)
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files will be saved.
	// Default: current working directory
	OutputDir string

	// OpenAfterExport opens the file in the default application.
	OpenAfterExport bool

	// IncludeMetadata includes the metadata header (model, dates, counts).
	IncludeMetadata bool

	// IncludeTimestamps includes per-message timestamps.
	IncludeTimestamps bool

	// IncludeSystem keeps system entries such as connection notices.
	IncludeSystem bool

	// Now stamps the export; nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// messages returns the entries an export shows.
func (o *Options) messages(t *storage.Thread) []model.Message {
	if o.IncludeSystem {
		return t.Messages
	}
	out := make([]model.Message, 0, len(t.Messages))
	for _, m := range t.Messages {
		if m.Role == model.RoleSystem && !m.IsError {
			continue
		}
		out = append(out, m)
	}
	return out
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// Write exports a thread to w.
func Write(w io.Writer, t *storage.Thread, format Format, opts *Options) error {
	exporter, err := New(format, opts)
	if err != nil {
		return err
	}
	content, err := exporter.Export(t)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	_, err = w.Write(content)
	return err
}

// ExportToFile exports a thread to a new file in opts.OutputDir and returns
// its path.
func ExportToFile(t *storage.Thread, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("thread_%s_%s%s",
		sanitizeFilename(t.Name),
		opts.now().Format("20060102_150405"),
		exporter.FileExtension(),
	)

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	outputPath := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	if opts.OpenAfterExport {
		// the file exists either way
		_ = openFile(outputPath)
	}
	return outputPath, nil
}

// ExportConversation exports the live conversation, saved or not.
func ExportConversation(conv *model.Conversation, format Format, opts *Options) (string, error) {
	t := FromConversation(conv)
	if t == nil {
		return "", fmt.Errorf("conversation is nil")
	}
	exporter, err := New(format, opts)
	if err != nil {
		return "", err
	}
	return ExportToFile(t, exporter, opts)
}

// FromConversation converts the live conversation into a thread record.
func FromConversation(conv *model.Conversation) *storage.Thread {
	if conv == nil {
		return nil
	}

	t := &storage.Thread{
		Name:     conv.Title,
		Model:    conv.Model,
		Messages: conv.CloneMessages(),
	}
	if !conv.IsNew() {
		t.ID = conv.ThreadID
	}
	if t.Model == "" {
		t.Model = storage.UnknownModel
	}
	if first, ok := conv.FirstUserMessage(); ok {
		t.CreatedAt = first.Timestamp
	}
	if last, ok := conv.LastMessage(); ok {
		t.UpdatedAt = last.Timestamp
	}
	return t
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	const maxLen = 50
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}

	result := make([]rune, 0, len(s))
	for _, r := range s {
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
		return "thread"
	}
	return string(result)
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

// formatTimestamp renders a stored timestamp for people, in local time.
func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("Jan 2, 2006 at 3:04 PM")
}

// formatShortTimestamp renders a stored timestamp as a clock time.
func formatShortTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("15:04:05")
}

// check rejects threads with nothing to export.
func check(t *storage.Thread) error {
	if t == nil {
		return fmt.Errorf("thread is nil")
	}
	if len(t.Messages) == 0 {
		return ErrEmptyThread
	}
	return nil
}
