// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/storage"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func sampleThread() *storage.Thread {
	return &storage.Thread{
		ID:        "1740830400",
		Name:      "Go channels",
		CreatedAt: "2025-03-01T12:00:00.000Z",
		UpdatedAt: "2025-03-01T12:00:05.000Z",
		Model:     "deepseek-r1:1.5b",
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "Connected to deepseek-r1:1.5b model.", IsConnection: true, Timestamp: "2025-03-01T12:00:00.000Z"},
			{Role: model.RoleUser, Content: "How do channels work?", Timestamp: "2025-03-01T12:00:01.000Z"},
			{Role: model.RoleAssistant, Content: "A channel connects goroutines.\n\n```go\nch := make(chan int)\n```", Model: "deepseek-r1:1.5b", Timestamp: "2025-03-01T12:00:04.000Z"},
			{Role: model.RoleSystem, Content: "Save failed:\nbackend unreachable", IsError: true, Timestamp: "2025-03-01T12:00:05.000Z"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"markdown", FormatMarkdown, false},
		{".md", FormatMarkdown, false},
		{"", FormatMarkdown, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"html", "", true},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestMarkdownExport(t *testing.T) {
	out, err := NewMarkdownExporter(testOptions()).Export(sampleThread())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	result := string(out)

	for _, want := range []string{
		"# Go channels\n",
		"### You <sub>",
		"### Assistant (deepseek-r1:1.5b) <sub>",
		"```go\nch := make(chan int)\n```",
		"### Error <sub>",
		"> Save failed:\n> backend unreachable",
		"*Exported from threadchat on March 1, 2025 at 12:00 PM*",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("markdown missing %q\n%s", want, result)
		}
	}
	if strings.Contains(result, "Connected to") {
		t.Error("connection notices should be left out by default")
	}
}

func TestMarkdownExport_IncludeSystem(t *testing.T) {
	opts := testOptions()
	opts.IncludeSystem = true
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(sampleThread())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(out), "### System\n\nConnected to deepseek-r1:1.5b model.") {
		t.Errorf("expected the connection notice without timestamp:\n%s", out)
	}
}

// TestMarkdownFrontMatterInjection checks that a hostile title cannot add
// keys to the frontmatter or break the heading.
func TestMarkdownFrontMatterInjection(t *testing.T) {
	thread := sampleThread()
	thread.Name = "Test\nInjection: malicious"

	out, err := NewMarkdownExporter(testOptions()).Export(thread)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	result := string(out)

	if !strings.HasPrefix(result, "---\n") {
		t.Fatal("expected frontmatter")
	}
	end := strings.Index(result[4:], "\n---\n")
	if end < 0 {
		t.Fatal("unterminated frontmatter")
	}

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(result[4:4+end]), &meta); err != nil {
		t.Fatalf("frontmatter is not valid YAML: %v", err)
	}
	if _, injected := meta["Injection"]; injected {
		t.Error("title newline injected a frontmatter key")
	}
	if meta["title"] != thread.Name {
		t.Errorf("title = %q, want %q", meta["title"], thread.Name)
	}
	if meta["messages"] != 3 {
		t.Errorf("messages = %v, want 3", meta["messages"])
	}
	if !strings.Contains(result, "# Test Injection: malicious\n") {
		t.Error("heading should be a single line")
	}
}

func TestJSONExport_MatchesThreadFormat(t *testing.T) {
	thread := sampleThread()
	out, err := NewJSONExporter(nil).Export(thread)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var back storage.Thread
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != thread.ID || back.Name != thread.Name || len(back.Messages) != len(thread.Messages) {
		t.Errorf("round trip lost data: %+v", back)
	}
	if !back.Messages[0].IsConnection {
		t.Error("JSON export keeps every message with its flags")
	}
}

func TestYAMLExport(t *testing.T) {
	out, err := NewYAMLExporter(testOptions()).Export(sampleThread())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var doc yamlThread
	if err := yaml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if doc.ID != "1740830400" || doc.Exported != "2025-03-01T12:00:00Z" {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(doc.Messages))
	}
	if doc.Messages[1].Content != sampleThread().Messages[2].Content {
		t.Errorf("multi-line content changed: %q", doc.Messages[1].Content)
	}
	if !doc.Messages[2].Error {
		t.Error("error flag should be kept")
	}
	if !strings.Contains(string(out), "content: |-") {
		t.Error("multi-line content should be a literal block")
	}
}

func TestExport_EmptyThread(t *testing.T) {
	empty := &storage.Thread{Name: "Empty"}
	for _, f := range Formats {
		var buf bytes.Buffer
		err := Write(&buf, empty, f, nil)
		if !errors.Is(err, ErrEmptyThread) {
			t.Errorf("%s: error = %v, want ErrEmptyThread", f, err)
		}
	}
	if _, err := NewJSONExporter(nil).Export(nil); err == nil {
		t.Error("nil thread should fail")
	}
}

func TestExportToFile(t *testing.T) {
	opts := testOptions()
	opts.OutputDir = filepath.Join(t.TempDir(), "out")

	thread := sampleThread()
	thread.Name = "Notes: a/b"

	exporter, err := New(FormatYAML, opts)
	if err != nil {
		t.Fatal(err)
	}
	path, err := ExportToFile(thread, exporter, opts)
	if err != nil {
		t.Fatalf("ExportToFile failed: %v", err)
	}

	if want := filepath.Join(opts.OutputDir, "thread_Notes-_a-b_20250301_120000.yaml"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("exported file missing: %v", err)
	}
}

func TestFromConversation(t *testing.T) {
	conv := model.NewConversation("deepseek-r1:8b")
	conv.AddConnectionMessage("deepseek-r1:8b")
	conv.AddUserMessage("hello")
	conv.AddAssistantMessage("hi there")

	thread := FromConversation(conv)
	if thread.ID != "" {
		t.Errorf("unsaved conversation should have no id, got %q", thread.ID)
	}
	if thread.Name != model.UntitledTitle || thread.Model != "deepseek-r1:8b" {
		t.Errorf("thread = %+v", thread)
	}
	if len(thread.Messages) != 3 || thread.CreatedAt != conv.Messages[1].Timestamp {
		t.Errorf("messages = %d, created = %q", len(thread.Messages), thread.CreatedAt)
	}

	thread.Messages[1].Content = "changed"
	if conv.Messages[1].Content != "hello" {
		t.Error("export must not share the live transcript")
	}

	conv.Load("1700000000", "Greeting", "deepseek-r1:8b", conv.Messages)
	if got := FromConversation(conv).ID; got != "1700000000" {
		t.Errorf("id = %q", got)
	}
	if FromConversation(nil) != nil {
		t.Error("nil conversation should convert to nil")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"simple", "simple"},
		{"with space", "with_space"},
		{`a/b\c:d*e?f"g<h>i|j`, "a-b-c-d-e-f-g-h-i-j"},
		{"tab\tnew\nline", "tab_new_line"},
		{"", "thread"},
		{strings.Repeat("é", 60), strings.Repeat("é", 50)},
	}
	for _, tc := range tests {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
