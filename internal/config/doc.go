// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// threadchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env files, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Backend listen address, thread store, CORS and rate limit
//   - ClientConfig: Backend URL, model and generation parameters
//   - AutoSaveConfig: Timings of the automatic save triggers
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (THREADCHAT_*, OLLAMA_HOST)
//   - ~/.threadchat/.env and ./.env
//   - ~/.threadchat/config.toml
//   - ~/.threadchat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Warn("config", "err", err)
//	}
//
//	srv := server.New(cfg.ServerConfig(), store,
//	    ollama.NewClientWithConfig(cfg.OllamaClientConfig()))
package config
