// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"warning", log.WarnLevel},
		{" error ", log.ErrorLevel},
		{"nonsense", log.InfoLevel},
		{"", log.InfoLevel},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestConfigure_EnvPrecedence(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")

	closer, err := Configure("", "")
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	defer closer.Close()
	if Logger.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want debug from env", Logger.GetLevel())
	}

	closer2, err := Configure("error", "")
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	defer closer2.Close()
	if Logger.GetLevel() != log.ErrorLevel {
		t.Errorf("level = %v, want error from flag", Logger.GetLevel())
	}
}

func TestConfigure_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "threadchat.log")

	closer, err := Configure("info", path)
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	Component("test").Info("hello", "k", "v")
	closer.Close()
	defer Configure("info", "")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "hello") || !strings.Contains(string(data), "k=v") {
		t.Errorf("log file = %q, want message and key", data)
	}
}
