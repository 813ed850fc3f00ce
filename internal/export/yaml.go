// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/threadchat/internal/storage"
)

// =============================================================================
// YAML EXPORTER
// =============================================================================

// YAMLExporter exports threads as YAML documents.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &YAMLExporter{options: opts}
}

type yamlThread struct {
	ID        string        `yaml:"id,omitempty"`
	Name      string        `yaml:"name"`
	Model     string        `yaml:"model"`
	CreatedAt string        `yaml:"created_at,omitempty"`
	UpdatedAt string        `yaml:"updated_at,omitempty"`
	Exported  string        `yaml:"exported,omitempty"`
	Messages  []yamlMessage `yaml:"messages"`
}

type yamlMessage struct {
	Role      string `yaml:"role"`
	Model     string `yaml:"model,omitempty"`
	Timestamp string `yaml:"timestamp,omitempty"`
	Error     bool   `yaml:"error,omitempty"`
	Content   string `yaml:"content"`
}

// Export converts a thread to YAML. Multi-line content is written as a
// literal block.
func (e *YAMLExporter) Export(t *storage.Thread) ([]byte, error) {
	if err := check(t); err != nil {
		return nil, err
	}

	doc := yamlThread{
		ID:    t.ID,
		Name:  t.Name,
		Model: t.Model,
	}
	if e.options.IncludeMetadata {
		doc.CreatedAt = t.CreatedAt
		doc.UpdatedAt = t.UpdatedAt
		doc.Exported = e.options.now().Format(time.RFC3339)
	}
	for _, m := range e.options.messages(t) {
		ym := yamlMessage{
			Role:    string(m.Role),
			Model:   m.Model,
			Error:   m.IsError,
			Content: m.Content,
		}
		if e.options.IncludeTimestamps {
			ym.Timestamp = m.Timestamp
		}
		doc.Messages = append(doc.Messages, ym)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
