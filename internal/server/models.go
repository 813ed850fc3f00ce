// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/ollama"
)

// Failure details of the model endpoints.
const (
	msgOllamaUnreachable   = "Cannot connect to Ollama service. Please ensure it's running."
	msgOllamaNotResponding = "Ollama service is not responding. Make sure it's running."
	msgDNSFailed           = "Network error: DNS resolution failed. Check your internet connection and DNS settings."
	msgFetchModelsFailed   = "Failed to fetch models from Ollama"
)

// ============================================================================
// REQUEST AND RESPONSE TYPES
// ============================================================================

// ModelRequest names a model.
type ModelRequest struct {
	Model string `json:"model"`
}

// CheckModelResponse reports whether a model is installed. Warning is set
// when the model is installed but the Ollama server is older than the model
// family needs.
type CheckModelResponse struct {
	Exists  bool   `json:"exists"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// InstallResponse confirms an install was started.
type InstallResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ModelStatus is a catalogue model with its install state.
type ModelStatus struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
}

// SmallModelStatus is a small-model suggestion with its install state.
type SmallModelStatus struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Size        string `json:"size"`
	Installed   bool   `json:"installed"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Ollama        bool   `json:"ollama"`
	OllamaVersion string `json:"ollama_version,omitempty"`
}

// ============================================================================
// HANDLERS
// ============================================================================

// handleCheckModel handles POST /api/check_model. Failures to reach Ollama
// are reported in the body, never as an HTTP error.
func (s *Server) handleCheckModel(w http.ResponseWriter, r *http.Request) {
	var req ModelRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	exists, err := s.ollama.HasModel(r.Context(), req.Model)
	if err != nil {
		msg := err.Error()
		if status := ollama.StatusCode(err); status != 0 {
			msg = fmt.Sprintf("Failed to check models: %d", status)
		}
		s.logger.Error("MODEL_CHECK_FAILED", "model", req.Model, "err", err)
		s.writeJSON(w, http.StatusOK, CheckModelResponse{Exists: false, Error: msg})
		return
	}

	resp := CheckModelResponse{Exists: exists}
	if exists {
		resp.Warning = s.versionWarning(r.Context(), req.Model)
	}
	s.logger.Info("MODEL_CHECK", "model", req.Model, "exists", exists)
	s.writeJSON(w, http.StatusOK, resp)
}

// versionWarning returns a message when the running Ollama is too old for
// modelName, or "" when it is fine or unknown.
func (s *Server) versionWarning(ctx context.Context, modelName string) string {
	if ollama.RequiredVersion(modelName) == "" {
		return ""
	}
	version, err := s.ollama.Version(ctx)
	if err != nil {
		return ""
	}
	ok, err := ollama.CheckVersion(version, modelName)
	if err != nil || ok {
		return ""
	}
	return fmt.Sprintf("Ollama %s is older than %s needs (%s). Update Ollama if generation fails.",
		version, modelName, ollama.RequiredVersion(modelName))
}

// handleInstallModel handles POST /api/install_model. The pull keeps running
// after the response; only a failure within InstallWait is reported.
func (s *Server) handleInstallModel(w http.ResponseWriter, r *http.Request) {
	var req ModelRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Model)
	if name == "" {
		s.writeDetail(w, http.StatusUnprocessableEntity, "model is required")
		return
	}

	s.logger.Info("MODEL_INSTALL", "model", name)
	if err := s.ollama.CheckRunning(r.Context()); err != nil {
		detail := msgOllamaUnreachable
		if ollama.StatusCode(err) != 0 {
			detail = msgOllamaNotResponding
		}
		s.logger.Error("OLLAMA_UNAVAILABLE", "err", err)
		s.writeDetail(w, http.StatusServiceUnavailable, detail)
		return
	}

	started := make(chan error, 1)
	if !s.startPull(name, started) {
		s.logger.Info("MODEL_INSTALL_RUNNING", "model", name)
		started <- nil
	}

	select {
	case err := <-started:
		if err != nil {
			s.writeDetail(w, http.StatusInternalServerError, installFailure(err))
			return
		}
	case <-time.After(s.cfg.InstallWait):
	case <-r.Context().Done():
		return
	}

	s.writeJSON(w, http.StatusOK, InstallResponse{
		Success: true,
		Message: fmt.Sprintf("Model %s installation started", name),
	})
}

// startPull launches a background pull of name unless one is running. The
// outcome is sent on done. Returns false when a pull was already running.
func (s *Server) startPull(name string, done chan<- error) bool {
	s.pullsMu.Lock()
	if s.pulls[name] {
		s.pullsMu.Unlock()
		return false
	}
	s.pulls[name] = true
	s.pullsMu.Unlock()

	go func() {
		defer func() {
			s.pullsMu.Lock()
			delete(s.pulls, name)
			s.pullsMu.Unlock()
		}()

		progress := newPullLogger(s, name)
		err := s.ollama.Pull(s.pullCtx, name, progress.log)
		if err != nil {
			s.logger.Error("MODEL_INSTALL_FAILED", "model", name, "err", err)
		} else {
			s.logger.Info("MODEL_INSTALLED", "model", name)
		}
		done <- err
	}()
	return true
}

// installFailure maps an early pull failure to the detail clients show.
func installFailure(err error) string {
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "no such host") || strings.Contains(lower, "lookup") {
		return msgDNSFailed
	}
	return "Model installation failed: " + msg
}

// pullLogger logs pull progress at most once per status and 10% step.
type pullLogger struct {
	s       *Server
	name    string
	status  string
	percent int
}

func newPullLogger(s *Server, name string) *pullLogger {
	return &pullLogger{s: s, name: name, percent: -1}
}

func (p *pullLogger) log(progress ollama.PullProgress) {
	pct := progress.Percent()
	if progress.Status == p.status && (pct < 0 || pct/10 == p.percent/10) {
		return
	}
	p.status = progress.Status
	p.percent = pct

	if pct < 0 {
		p.s.logger.Info("PULL_PROGRESS", "model", p.name, "status", progress.Status)
		return
	}
	p.s.logger.Info("PULL_PROGRESS",
		"model", p.name,
		"status", progress.Status,
		"percent", pct,
		"done", humanize.Bytes(uint64(progress.Completed)),
		"total", humanize.Bytes(uint64(progress.Total)),
	)
}

// handleCheckAllModels handles GET /api/check_all_models.
func (s *Server) handleCheckAllModels(w http.ResponseWriter, r *http.Request) {
	installed, err := s.ollama.InstalledNames(r.Context())
	if err != nil {
		s.logger.Error("MODEL_LIST_FAILED", "err", err)
		s.writeDetail(w, http.StatusInternalServerError, msgFetchModelsFailed)
		return
	}

	models := make([]ModelStatus, 0, len(model.Models))
	for _, m := range model.Models {
		models = append(models, ModelStatus{Name: m.Name, Installed: installed[m.Name]})
	}
	s.logger.Info("MODEL_LIST", "installed", len(installed))
	s.writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// handleListSmallModels handles GET /api/list_small_models. The list is
// returned even when install state cannot be determined.
func (s *Server) handleListSmallModels(w http.ResponseWriter, r *http.Request) {
	installed, err := s.ollama.InstalledNames(r.Context())
	if err != nil {
		s.logger.Warn("MODEL_LIST_FAILED", "err", err)
	}

	models := make([]SmallModelStatus, 0, len(model.SmallModels))
	for _, m := range model.SmallModels {
		models = append(models, SmallModelStatus{
			Name:        m.Name,
			Description: m.Description,
			Size:        m.Size,
			Installed:   installed[m.Name],
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:  "ok",
		Version: Version,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if version, err := s.ollama.Version(ctx); err == nil {
		health.Ollama = true
		health.OllamaVersion = version
	} else {
		health.Status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, health)
}
