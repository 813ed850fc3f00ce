// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/threadchat/internal/session"
)

// isolate points the home directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, name := range []string{"HOST", "PORT", "THREADS_DIR", "STORAGE", "OLLAMA_URL",
		"BACKEND_URL", "MODEL", "STREAM_SPEED", "AUTOSAVE", "THEME", "LOG_FILE"} {
		t.Setenv(EnvPrefix+name, "")
	}
	t.Setenv("OLLAMA_HOST", "")
	return home
}

// TestConfig_ConcurrentAccess tests that Global() and SetGlobal() can be
// called concurrently. Run with: go test -race ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			c := Default()
			c.Version = "test"
			SetGlobal(c)
		}()

		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

// TestConfig_ConcurrentReload tests concurrent ReloadGlobal and Global calls.
func TestConfig_ConcurrentReload(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	_ = Global()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ReloadGlobal()
		}()
	}
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

// TestConfig_SetGlobalOverwrites tests that SetGlobal replaces the loaded config.
func TestConfig_SetGlobalOverwrites(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	if Global().Client.Model == "" {
		t.Fatal("global config should carry a default model")
	}

	custom := Default()
	custom.Client.Model = "custom-model"
	SetGlobal(custom)

	if got := Global().Client.Model; got != "custom-model" {
		t.Errorf("Expected model 'custom-model', got '%s'", got)
	}
}

// TestConfig_Default tests that Default() returns a valid config.
func TestConfig_Default(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should validate, got %v", err)
	}
	if cfg.Addr() != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
	if cfg.Client.Model != "deepseek-r1:1.5b" {
		t.Errorf("default model = %q", cfg.Client.Model)
	}
	if cfg.SessionConfig() != session.DefaultConfig() {
		t.Errorf("SessionConfig() = %+v, want session defaults", cfg.SessionConfig())
	}
}

// TestConfig_Validate tests configuration validation.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		field   string
		wantErr bool
	}{
		{name: "valid default config", mutate: func(c *Config) {}},
		{name: "sqlite storage", mutate: func(c *Config) { c.Server.Storage = "sqlite" }},
		{name: "zero temperature", mutate: func(c *Config) { c.Client.Temperature = 0 }},
		{name: "rate limit disabled", mutate: func(c *Config) { c.Server.RateLimit = 0; c.Server.RateBurst = 0 }},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, field: "server.port", wantErr: true},
		{name: "bad storage", mutate: func(c *Config) { c.Server.Storage = "redis" }, field: "server.storage", wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.Server.RateLimit = -1 }, field: "server.rate_limit", wantErr: true},
		{name: "rate without burst", mutate: func(c *Config) { c.Server.RateBurst = 0 }, field: "server.rate_burst", wantErr: true},
		{name: "ollama url scheme", mutate: func(c *Config) { c.Ollama.URL = "ftp://host" }, field: "ollama.url", wantErr: true},
		{name: "backend url host", mutate: func(c *Config) { c.Client.BackendURL = "http://" }, field: "client.backend_url", wantErr: true},
		{name: "hot temperature", mutate: func(c *Config) { c.Client.Temperature = 2.5 }, field: "client.temperature", wantErr: true},
		{name: "no tokens", mutate: func(c *Config) { c.Client.MaxTokens = 0 }, field: "client.max_tokens", wantErr: true},
		{name: "bad speed", mutate: func(c *Config) { c.Client.StreamSpeed = "warp" }, field: "client.stream_speed", wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.AutoSave.IntervalSecs = 0 }, field: "autosave.interval_secs", wantErr: true},
		{name: "invalid theme", mutate: func(c *Config) { c.UI.Theme = "neon" }, field: "ui.theme", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error type = %T, want ValidateErrors", err)
			}
			if verrs[0].Field != tt.field {
				t.Errorf("field = %q, want %q", verrs[0].Field, tt.field)
			}
		})
	}
}

func TestConfig_ValidateErrorsSorted(t *testing.T) {
	c := Default()
	c.UI.Theme = "neon"
	c.Server.Port = 0
	c.Client.StreamSpeed = "warp"

	err := c.Validate()
	verrs, ok := err.(ValidateErrors)
	if !ok || len(verrs) != 3 {
		t.Fatalf("Validate() = %v", err)
	}
	want := "client.stream_speed; server.port; ui.theme"
	var got []string
	for _, e := range verrs {
		got = append(got, e.Field)
	}
	if strings.Join(got, "; ") != want {
		t.Errorf("fields = %v, want %s", got, want)
	}
}

func TestLoadDir_TOML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	content := `
[server]
port = 9000
storage = "SQLite"
allowed_origins = ["http://localhost:5173"]

[client]
model = "deepseek-r1:8b"
stream_speed = "Fast"

[autosave]
enabled = false
interval_secs = 30
`
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	if cfg.Server.Port != 9000 || cfg.Server.Storage != "sqlite" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("unset host should keep its default, got %q", cfg.Server.Host)
	}
	if cfg.Client.Model != "deepseek-r1:8b" || cfg.Client.StreamSpeed != "fast" {
		t.Errorf("client = %+v", cfg.Client)
	}
	if cfg.AutoSave.Enabled || cfg.AutoSave.IntervalSecs != 30 || cfg.AutoSave.InactivityDelaySecs != 10 {
		t.Errorf("autosave = %+v", cfg.AutoSave)
	}
	if got := cfg.ServerConfig().AllowedOrigins; len(got) != 1 || got[0] != "http://localhost:5173" {
		t.Errorf("origins = %v", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 && os.PathSeparator == '/' {
		t.Errorf("config permissions = %o, want 0600", perm)
	}
}

func TestLoadDir_JSONFallback(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"client":{"model":"gemma:2b"}}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.Client.Model != "gemma:2b" {
		t.Errorf("model = %q", cfg.Client.Model)
	}
}

func TestLoadDir_BrokenFileKeepsDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[server\nport ="), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDir(dir)
	if err == nil {
		t.Fatal("expected a load error")
	}
	if cfg == nil || cfg.Server.Port != 8000 {
		t.Errorf("broken file should fall back to defaults, got %+v", cfg)
	}
}

func TestLoadDir_InvalidValues(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[ui]\ntheme = \"neon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadDir(dir); err == nil || !strings.Contains(err.Error(), "ui.theme") {
		t.Errorf("LoadDir() error = %v, want ui.theme validation error", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("THREADCHAT_PORT", "8100")
	t.Setenv("THREADCHAT_MODEL", "phi:mini")
	t.Setenv("THREADCHAT_AUTOSAVE", "off")
	t.Setenv("OLLAMA_HOST", "0.0.0.0:11500")

	cfg, err := LoadDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	if cfg.Server.Port != 8100 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Client.Model != "phi:mini" {
		t.Errorf("model = %q", cfg.Client.Model)
	}
	if cfg.AutoSave.Enabled {
		t.Error("autosave should be disabled")
	}
	if cfg.Ollama.URL != "http://0.0.0.0:11500" {
		t.Errorf("ollama url = %q", cfg.Ollama.URL)
	}
}

func TestLoadDir_DotEnv(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	t.Setenv("THREADCHAT_THEME", "")
	os.Unsetenv("THREADCHAT_THEME")
	t.Cleanup(func() { os.Unsetenv("THREADCHAT_THEME") })

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("THREADCHAT_THEME=light\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("theme = %q, want value from .env", cfg.UI.Theme)
	}
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	isolate(t)
	dir := filepath.Join(t.TempDir(), "nested")
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.Client.Model = "deepseek-r1:14b"
	cfg.Server.StartOllama = true
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# threadchat configuration file") {
		t.Error("saved file should start with the header comment")
	}
	if info, _ := os.Stat(path); os.PathSeparator == '/' && info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %o, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if loaded.Client.Model != "deepseek-r1:14b" || !loaded.Server.StartOllama {
		t.Errorf("loaded = %+v", loaded)
	}
}

// TestConfig_GetSet tests Get and Set with dot notation.
func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	val, err := cfg.Get("client.stream_speed")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != "medium" {
		t.Errorf("Get('client.stream_speed') = %v, want 'medium'", val)
	}

	tests := []struct {
		key   string
		value string
		check func() bool
	}{
		{"client.model", "gemma:2b", func() bool { return cfg.Client.Model == "gemma:2b" }},
		{"server.port", "9001", func() bool { return cfg.Server.Port == 9001 }},
		{"client.temperature", "0.2", func() bool { return cfg.Client.Temperature == 0.2 }},
		{"autosave.enabled", "false", func() bool { return !cfg.AutoSave.Enabled }},
		{"server.allowed_origins", "http://a, http://b", func() bool {
			return len(cfg.Server.AllowedOrigins) == 2 && cfg.Server.AllowedOrigins[1] == "http://b"
		}},
	}
	for _, tc := range tests {
		if err := cfg.Set(tc.key, tc.value); err != nil {
			t.Errorf("Set(%q) error = %v", tc.key, err)
			continue
		}
		if !tc.check() {
			t.Errorf("Set(%q, %q) did not apply", tc.key, tc.value)
		}
	}

	for _, bad := range []string{"", "invalid.key", "client", "client.model.extra"} {
		if _, err := cfg.Get(bad); err == nil {
			t.Errorf("Get(%q) should fail", bad)
		}
	}
	if err := cfg.Set("server.port", "eighty"); err == nil {
		t.Error("Set with a non-numeric port should fail")
	}
}

func TestGetAllKeys(t *testing.T) {
	cfg := Default()
	keys := GetAllKeys()

	for _, want := range []string{"version", "server.threads_dir", "client.max_tokens", "autosave.list_refresh_secs", "ui.log_file"} {
		found := false
		for _, k := range keys {
			if k == want {
				found = true
			}
		}
		if !found {
			t.Errorf("GetAllKeys() missing %q", want)
		}
	}
	for _, k := range keys {
		if _, err := cfg.Get(k); err != nil {
			t.Errorf("Get(%q) error = %v", k, err)
		}
	}
}

// TestConfig_Clone tests that Clone creates an independent copy.
func TestConfig_Clone(t *testing.T) {
	original := Default()
	clone := original.Clone()

	clone.Client.Model = "cloned"
	clone.Server.AllowedOrigins[0] = "http://changed"

	if original.Client.Model == "cloned" {
		t.Error("Clone should create an independent copy")
	}
	if original.Server.AllowedOrigins[0] != "*" {
		t.Error("Clone should copy the origin list")
	}
}

func TestComponentConfigs(t *testing.T) {
	home := isolate(t)
	cfg := Default()
	cfg.Ollama.TimeoutSecs = 12
	cfg.Server.MaxBodyMB = 2
	cfg.Client.TimeoutSecs = 7

	if got := cfg.OllamaClientConfig().Timeout; got != 12*time.Second {
		t.Errorf("ollama timeout = %v", got)
	}
	if got := cfg.ServerConfig().MaxBodyBytes; got != 2<<20 {
		t.Errorf("max body = %d", got)
	}
	if got := cfg.BackendClientConfig(); got.Timeout != 7*time.Second || got.BaseURL != "http://127.0.0.1:8000" {
		t.Errorf("backend config = %+v", got)
	}

	req := cfg.GenerateRequest("", "hi")
	if req.Model != cfg.Client.Model || req.Temperature != 0.7 || req.MaxTokens != 2000 || req.StreamSpeed != "medium" {
		t.Errorf("GenerateRequest() = %+v", req)
	}

	threads, err := cfg.ThreadsPath()
	if err != nil || threads != filepath.Join(home, ".threadchat", "threads") {
		t.Errorf("ThreadsPath() = %q, %v", threads, err)
	}
	cfg.UI.LogFile = "~/logs/tc.log"
	logFile, err := cfg.LogFilePath()
	if err != nil || logFile != filepath.Join(home, "logs", "tc.log") {
		t.Errorf("LogFilePath() = %q, %v", logFile, err)
	}
}
