// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/threadchat/internal/backend"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/ollama"
	"github.com/jeranaias/threadchat/internal/server"
	"github.com/jeranaias/threadchat/internal/session"
	"github.com/jeranaias/threadchat/internal/storage"
	"github.com/jeranaias/threadchat/internal/util"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "THREADCHAT_"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete threadchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Backend server (threadchat serve)
	Server ServerConfig `toml:"server" json:"server"`

	// Ollama connection used by the server
	Ollama OllamaConfig `toml:"ollama" json:"ollama"`

	// Chat client settings
	Client ClientConfig `toml:"client" json:"client"`

	// Auto-save timings
	AutoSave AutoSaveConfig `toml:"autosave" json:"autosave"`

	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig contains backend server configuration.
type ServerConfig struct {
	// Host is the listen address (default 127.0.0.1)
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`
	// ThreadsDir holds saved threads (empty = ~/.threadchat/threads)
	ThreadsDir string `toml:"threads_dir" json:"threads_dir"`
	// Storage is the thread store: "file" or "sqlite"
	Storage string `toml:"storage" json:"storage"`
	// RateLimit is requests per second per client IP (0 = unlimited)
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`
	// AllowedOrigins lists CORS origins; "*" allows all
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
	MaxBodyMB      int      `toml:"max_body_mb" json:"max_body_mb"`
	// StartOllama launches `ollama serve` when it is not running
	StartOllama bool `toml:"start_ollama" json:"start_ollama"`
}

// OllamaConfig contains the Ollama connection settings.
type OllamaConfig struct {
	URL               string `toml:"url" json:"url"`
	TimeoutSecs       int    `toml:"timeout_secs" json:"timeout_secs"`
	HealthTimeoutSecs int    `toml:"health_timeout_secs" json:"health_timeout_secs"`
}

// ClientConfig contains chat client settings.
type ClientConfig struct {
	BackendURL  string  `toml:"backend_url" json:"backend_url"`
	Model       string  `toml:"model" json:"model"`
	Temperature float64 `toml:"temperature" json:"temperature"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens"`
	// StreamSpeed is "slow", "medium" or "fast"
	StreamSpeed string `toml:"stream_speed" json:"stream_speed"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// AutoSaveConfig contains the automatic save triggers.
type AutoSaveConfig struct {
	Enabled               bool `toml:"enabled" json:"enabled"`
	IntervalSecs          int  `toml:"interval_secs" json:"interval_secs"`
	FirstMessageDelaySecs int  `toml:"first_message_delay_secs" json:"first_message_delay_secs"`
	InactivityDelaySecs   int  `toml:"inactivity_delay_secs" json:"inactivity_delay_secs"`
	PostExchangeDelaySecs int  `toml:"post_exchange_delay_secs" json:"post_exchange_delay_secs"`
	ListRefreshSecs       int  `toml:"list_refresh_secs" json:"list_refresh_secs"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant replies with glamour
	Markdown bool `toml:"markdown" json:"markdown"`
	// LogFile receives logs while the TUI owns the terminal
	// (empty = ~/.threadchat/threadchat.log)
	LogFile string `toml:"log_file" json:"log_file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	autosave := session.DefaultConfig()

	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			Storage:        string(storage.KindFile),
			RateLimit:      20,
			RateBurst:      60,
			AllowedOrigins: []string{"*"},
			MaxBodyMB:      8,
		},

		Ollama: OllamaConfig{
			URL:               ollama.DefaultBaseURL,
			TimeoutSecs:       30,
			HealthTimeoutSecs: 5,
		},

		Client: ClientConfig{
			BackendURL:  backend.DefaultBaseURL,
			Model:       model.DefaultModel,
			Temperature: server.DefaultTemperature,
			MaxTokens:   server.DefaultMaxTokens,
			StreamSpeed: backend.SpeedMedium,
			TimeoutSecs: 30,
		},

		AutoSave: AutoSaveConfig{
			Enabled:               autosave.Enabled,
			IntervalSecs:          int(autosave.Interval / time.Second),
			FirstMessageDelaySecs: int(autosave.FirstMessageDelay / time.Second),
			InactivityDelaySecs:   int(autosave.InactivityDelay / time.Second),
			PostExchangeDelaySecs: int(autosave.PostExchangeDelay / time.Second),
			ListRefreshSecs:       int(autosave.ListRefreshInterval / time.Second),
		},

		UI: UIConfig{
			Theme:    "dark",
			Markdown: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the threadchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".threadchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.threadchat.
// Tries config.toml first, then config.json, and falls back to defaults.
// .env files and environment overrides are applied last.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, err
	}
	return LoadDir(dir)
}

// LoadDir loads configuration from the files in dir. A missing file is not
// an error; a broken one yields defaults together with the load error.
func LoadDir(dir string) (*Config, error) {
	cfg := Default()
	var loadErr error

	if err := LoadDotEnv(filepath.Join(dir, ".env"), ".env"); err != nil {
		loadErr = err
	}

	for _, candidate := range []struct {
		path string
		load func(*Config, string) error
	}{
		{filepath.Join(dir, "config.toml"), LoadTOML},
		{filepath.Join(dir, "config.json"), LoadJSON},
	} {
		if _, statErr := os.Stat(candidate.path); statErr != nil {
			continue
		}
		fileCfg := Default()
		if err := candidate.load(fileCfg, candidate.path); err != nil {
			loadErr = fmt.Errorf("failed to load %s: %w", filepath.Base(candidate.path), err)
			continue
		}
		cfg = fileCfg
		loadErr = nil
		break
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies env overrides, migration, defaults and validation.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	if err := c.Migrate(); err != nil {
		return fmt.Errorf("config migration failed: %w", err)
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadDotEnv loads the existing files among paths into the process
// environment. Variables that are already set win.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

const fileHeader = `# threadchat configuration file
# Generated by threadchat - edit with care
#
# Environment variables named THREADCHAT_* override these values.

`

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as commented TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWritePrivate(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWritePrivate(path, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// ==========================================================================
	// Server
	// ==========================================================================

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be 1-65535, got %d", c.Server.Port)
	}
	if _, err := storage.ParseKind(c.Server.Storage); err != nil {
		add("server.storage", "invalid storage '%s', must be one of: file, sqlite", c.Server.Storage)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1 when rate_limit is set, got %d", c.Server.RateBurst)
	}
	if c.Server.MaxBodyMB < 1 || c.Server.MaxBodyMB > 256 {
		add("server.max_body_mb", "must be 1-256, got %d", c.Server.MaxBodyMB)
	}

	// ==========================================================================
	// Ollama and client
	// ==========================================================================

	if err := validateHTTPURL(c.Ollama.URL); err != nil {
		add("ollama.url", "%v", err)
	}
	if c.Ollama.TimeoutSecs < 1 {
		add("ollama.timeout_secs", "must be positive, got %d", c.Ollama.TimeoutSecs)
	}
	if c.Ollama.HealthTimeoutSecs < 1 {
		add("ollama.health_timeout_secs", "must be positive, got %d", c.Ollama.HealthTimeoutSecs)
	}

	if err := validateHTTPURL(c.Client.BackendURL); err != nil {
		add("client.backend_url", "%v", err)
	}
	if strings.TrimSpace(c.Client.Model) == "" {
		add("client.model", "must not be empty")
	}
	if c.Client.Temperature < 0 || c.Client.Temperature > 2 {
		add("client.temperature", "must be between 0.0 and 2.0, got %g", c.Client.Temperature)
	}
	if c.Client.MaxTokens < 1 {
		add("client.max_tokens", "must be positive, got %d", c.Client.MaxTokens)
	}
	switch c.Client.StreamSpeed {
	case backend.SpeedSlow, backend.SpeedMedium, backend.SpeedFast:
	default:
		add("client.stream_speed", "invalid speed '%s', must be one of: slow, medium, fast", c.Client.StreamSpeed)
	}
	if c.Client.TimeoutSecs < 1 {
		add("client.timeout_secs", "must be positive, got %d", c.Client.TimeoutSecs)
	}

	// ==========================================================================
	// Auto-save
	// ==========================================================================

	for field, secs := range map[string]int{
		"autosave.interval_secs":            c.AutoSave.IntervalSecs,
		"autosave.first_message_delay_secs": c.AutoSave.FirstMessageDelaySecs,
		"autosave.inactivity_delay_secs":    c.AutoSave.InactivityDelaySecs,
		"autosave.post_exchange_delay_secs": c.AutoSave.PostExchangeDelaySecs,
		"autosave.list_refresh_secs":        c.AutoSave.ListRefreshSecs,
	} {
		if secs < 1 || secs > 3600 {
			add(field, "must be 1-3600 seconds, got %d", secs)
		}
	}

	// ==========================================================================
	// UI
	// ==========================================================================

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		add("ui.theme", "invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme)
	}

	if len(errs) > 0 {
		// map iteration order is random
		sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL '%s': scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL '%s': missing host", raw)
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.Storage == "" {
		c.Server.Storage = defaults.Server.Storage
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
		c.Server.RateBurst = defaults.Server.RateBurst
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = defaults.Server.AllowedOrigins
	}
	if c.Server.MaxBodyMB == 0 {
		c.Server.MaxBodyMB = defaults.Server.MaxBodyMB
	}

	if c.Ollama.URL == "" {
		c.Ollama.URL = defaults.Ollama.URL
	}
	if c.Ollama.TimeoutSecs == 0 {
		c.Ollama.TimeoutSecs = defaults.Ollama.TimeoutSecs
	}
	if c.Ollama.HealthTimeoutSecs == 0 {
		c.Ollama.HealthTimeoutSecs = defaults.Ollama.HealthTimeoutSecs
	}

	if c.Client.BackendURL == "" {
		c.Client.BackendURL = defaults.Client.BackendURL
	}
	if c.Client.Model == "" {
		c.Client.Model = defaults.Client.Model
	}
	if c.Client.MaxTokens == 0 {
		c.Client.MaxTokens = defaults.Client.MaxTokens
	}
	if c.Client.StreamSpeed == "" {
		c.Client.StreamSpeed = defaults.Client.StreamSpeed
	}
	if c.Client.TimeoutSecs == 0 {
		c.Client.TimeoutSecs = defaults.Client.TimeoutSecs
	}

	if c.AutoSave.IntervalSecs == 0 {
		c.AutoSave.IntervalSecs = defaults.AutoSave.IntervalSecs
	}
	if c.AutoSave.FirstMessageDelaySecs == 0 {
		c.AutoSave.FirstMessageDelaySecs = defaults.AutoSave.FirstMessageDelaySecs
	}
	if c.AutoSave.InactivityDelaySecs == 0 {
		c.AutoSave.InactivityDelaySecs = defaults.AutoSave.InactivityDelaySecs
	}
	if c.AutoSave.PostExchangeDelaySecs == 0 {
		c.AutoSave.PostExchangeDelaySecs = defaults.AutoSave.PostExchangeDelaySecs
	}
	if c.AutoSave.ListRefreshSecs == 0 {
		c.AutoSave.ListRefreshSecs = defaults.AutoSave.ListRefreshSecs
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// Migrate normalizes older or loosely written values.
func (c *Config) Migrate() error {
	c.Server.Storage = strings.ToLower(strings.TrimSpace(c.Server.Storage))
	switch c.Server.Storage {
	case "files", "json":
		c.Server.Storage = string(storage.KindFile)
	case "sqlite3", "db":
		c.Server.Storage = string(storage.KindSQLite)
	}

	c.Client.StreamSpeed = strings.ToLower(strings.TrimSpace(c.Client.StreamSpeed))
	c.Ollama.URL = strings.TrimRight(c.Ollama.URL, "/")
	c.Client.BackendURL = strings.TrimRight(c.Client.BackendURL, "/")

	// OLLAMA_HOST style values carry no scheme
	if c.Ollama.URL != "" && !strings.Contains(c.Ollama.URL, "://") {
		c.Ollama.URL = "http://" + c.Ollama.URL
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - THREADCHAT_HOST, THREADCHAT_PORT: server listen address
//   - THREADCHAT_THREADS_DIR: server.threads_dir
//   - THREADCHAT_STORAGE: server.storage
//   - THREADCHAT_OLLAMA_URL (or OLLAMA_HOST): ollama.url
//   - THREADCHAT_BACKEND_URL: client.backend_url
//   - THREADCHAT_MODEL: client.model
//   - THREADCHAT_STREAM_SPEED: client.stream_speed
//   - THREADCHAT_AUTOSAVE: "1"/"true" or "0"/"false"
//   - THREADCHAT_THEME: ui.theme
//   - THREADCHAT_LOG_FILE: ui.log_file
func (c *Config) ApplyEnvOverrides() {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Ollama.URL = host
	}

	strVars := map[string]*string{
		"HOST":         &c.Server.Host,
		"THREADS_DIR":  &c.Server.ThreadsDir,
		"STORAGE":      &c.Server.Storage,
		"OLLAMA_URL":   &c.Ollama.URL,
		"BACKEND_URL":  &c.Client.BackendURL,
		"MODEL":        &c.Client.Model,
		"STREAM_SPEED": &c.Client.StreamSpeed,
		"THEME":        &c.UI.Theme,
		"LOG_FILE":     &c.UI.LogFile,
	}
	for name, dst := range strVars {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	if port := os.Getenv(EnvPrefix + "PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}

	if autosave := os.Getenv(EnvPrefix + "AUTOSAVE"); autosave != "" {
		c.AutoSave.Enabled = parseBool(autosave)
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// =============================================================================
// COMPONENT SETTINGS
// =============================================================================

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ThreadsPath returns the thread directory, defaulting to
// ~/.threadchat/threads.
func (c *Config) ThreadsPath() (string, error) {
	if c.Server.ThreadsDir != "" {
		return expandHome(c.Server.ThreadsDir)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "threads"), nil
}

// LogFilePath returns the TUI log file, defaulting to
// ~/.threadchat/threadchat.log.
func (c *Config) LogFilePath() (string, error) {
	if c.UI.LogFile != "" {
		return expandHome(c.UI.LogFile)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "threadchat.log"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ServerConfig returns the HTTP server settings.
func (c *Config) ServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = c.Addr()
	cfg.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	cfg.RateLimit = c.Server.RateLimit
	cfg.RateBurst = c.Server.RateBurst
	cfg.MaxBodyBytes = int64(c.Server.MaxBodyMB) << 20
	return cfg
}

// OllamaClientConfig returns the Ollama client settings.
func (c *Config) OllamaClientConfig() *ollama.ClientConfig {
	return &ollama.ClientConfig{
		BaseURL:       c.Ollama.URL,
		Timeout:       time.Duration(c.Ollama.TimeoutSecs) * time.Second,
		HealthTimeout: time.Duration(c.Ollama.HealthTimeoutSecs) * time.Second,
	}
}

// BackendClientConfig returns the backend client settings.
func (c *Config) BackendClientConfig() *backend.ClientConfig {
	cfg := backend.DefaultConfig()
	cfg.BaseURL = c.Client.BackendURL
	cfg.Timeout = time.Duration(c.Client.TimeoutSecs) * time.Second
	return cfg
}

// SessionConfig returns the auto-save timings.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Enabled:             c.AutoSave.Enabled,
		Interval:            time.Duration(c.AutoSave.IntervalSecs) * time.Second,
		FirstMessageDelay:   time.Duration(c.AutoSave.FirstMessageDelaySecs) * time.Second,
		InactivityDelay:     time.Duration(c.AutoSave.InactivityDelaySecs) * time.Second,
		PostExchangeDelay:   time.Duration(c.AutoSave.PostExchangeDelaySecs) * time.Second,
		ListRefreshInterval: time.Duration(c.AutoSave.ListRefreshSecs) * time.Second,
	}
}

// GenerateRequest builds a generation request from the client settings.
func (c *Config) GenerateRequest(modelName, prompt string) backend.GenerateRequest {
	if modelName == "" {
		modelName = c.Client.Model
	}
	return backend.GenerateRequest{
		Model:       modelName,
		Prompt:      prompt,
		Temperature: c.Client.Temperature,
		MaxTokens:   c.Client.MaxTokens,
		StreamSpeed: c.Client.StreamSpeed,
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "client.model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "client.model").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the toml tags of the config structs.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(strings.ToLower(key), ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	return name
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + tomlName(f)
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return &clone
}

// String returns the config as indented JSON for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if cfg == nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return err
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
