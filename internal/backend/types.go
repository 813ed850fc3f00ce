// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the threadchat backend API.
package backend

import (
	"github.com/jeranaias/threadchat/internal/model"
)

// Stream pacing names accepted by the paced generate endpoint.
const (
	SpeedSlow   = "slow"
	SpeedMedium = "medium"
	SpeedFast   = "fast"
)

// =============================================================================
// GENERATION
// =============================================================================

// GenerateRequest is the body of the generation endpoints.
type GenerateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	StreamSpeed string  `json:"stream_speed,omitempty"`

	// AdditionalParams are merged into the Ollama payload.
	AdditionalParams map[string]any `json:"additional_params,omitempty"`
}

// =============================================================================
// MODELS
// =============================================================================

// ModelRequest names a model for check and install calls.
type ModelRequest struct {
	Model string `json:"model"`
}

// CheckModelResponse reports whether a model is installed. Warning carries
// a server version notice for installed models.
type CheckModelResponse struct {
	Exists  bool   `json:"exists"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// InstallModelResponse is returned when an install was started.
type InstallModelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorDetail is the failure body of install and model-list calls.
type ErrorDetail struct {
	Detail string `json:"detail"`
}

// SmallModel is a lightweight model suggestion.
type SmallModel struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Size        string `json:"size"`
	Installed   bool   `json:"installed"`
}

// SmallModelsResponse lists small model suggestions.
type SmallModelsResponse struct {
	Models []SmallModel `json:"models"`
}

// ModelStatus is one catalogue entry with its install state.
type ModelStatus struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
}

// AllModelsResponse lists every catalogue model.
type AllModelsResponse struct {
	Models []ModelStatus `json:"models"`
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// DNSCheck is the resolution result for one host.
type DNSCheck struct {
	Resolved  bool   `json:"resolved"`
	IPAddress string `json:"ip_address,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DNSReport is the result of the DNS diagnostics endpoint.
type DNSReport struct {
	Checks    map[string]DNSCheck `json:"dns_checks"`
	SystemDNS []string            `json:"system_dns"`
	System    string              `json:"system"`
}

// HealthResponse reports backend and Ollama state.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Ollama        bool   `json:"ollama"`
	OllamaVersion string `json:"ollama_version,omitempty"`
}

// =============================================================================
// THREADS
// =============================================================================

// SaveThreadRequest is the body of a save. ID is omitted for threads that
// were never saved.
type SaveThreadRequest struct {
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name"`
	Data    []model.Message `json:"data"`
	SavedAt string          `json:"saved_at,omitempty"`
	Model   string          `json:"model,omitempty"`
}

// SaveThreadResponse carries the id assigned to the thread.
type SaveThreadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ThreadSummary is one entry of the thread list.
type ThreadSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// Thread is a persisted thread record.
type Thread struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	Model     string          `json:"model"`
	Messages  []model.Message `json:"messages"`
}

// GetThreadResponse wraps a loaded thread.
type GetThreadResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	Thread  *Thread `json:"thread,omitempty"`
}

// DeleteThreadResponse confirms a delete.
type DeleteThreadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}
