// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/storage"
)

// ============================================================================
// REQUEST AND RESPONSE TYPES
// ============================================================================

// SaveThreadRequest is the body of POST /api/save_thread.
type SaveThreadRequest struct {
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name"`
	Data    []model.Message `json:"data"`
	SavedAt string          `json:"saved_at,omitempty"`
	Model   string          `json:"model,omitempty"`
}

// ThreadResult is the body of save and delete responses.
type ThreadResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ThreadResponse is the body of GET /api/get_thread/{id}.
type ThreadResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Thread  *storage.Thread `json:"thread,omitempty"`
}

const msgThreadNotFound = "Thread not found"

// ============================================================================
// HANDLERS
// ============================================================================

// handleSaveThread handles POST /api/save_thread.
func (s *Server) handleSaveThread(w http.ResponseWriter, r *http.Request) {
	var req SaveThreadRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	thread, err := s.store.Save(r.Context(), storage.SaveRequest{
		ID:       strings.TrimSpace(req.ID),
		Name:     req.Name,
		Model:    req.Model,
		SavedAt:  req.SavedAt,
		Messages: req.Data,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNameRequired) || errors.Is(err, storage.ErrInvalidID) {
			status = http.StatusBadRequest
		}
		s.logger.Error("THREAD_SAVE_FAILED", "name", req.Name, "err", err)
		s.writeJSON(w, status, ThreadResult{
			Success: false,
			Message: "Failed to save thread: " + err.Error(),
		})
		return
	}

	s.logger.Info("THREAD_SAVED", "thread", thread.ID, "name", thread.Name, "messages", len(thread.Messages))
	s.writeJSON(w, http.StatusOK, ThreadResult{
		Success:  true,
		Message:  "Thread '" + thread.Name + "' saved",
		ThreadID: thread.ID,
	})
}

// handleGetThread handles GET /api/get_thread/{id}. Responses carry an ETag;
// a matching If-None-Match gets 304.
func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !storage.ValidID(id) {
		s.writeJSON(w, http.StatusNotFound, ThreadResponse{Success: false, Message: msgThreadNotFound})
		return
	}

	thread, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrThreadNotFound) {
			s.logger.Debug("THREAD_NOT_FOUND", "thread", id)
			s.writeJSON(w, http.StatusNotFound, ThreadResponse{Success: false, Message: msgThreadNotFound})
			return
		}
		s.logger.Error("THREAD_LOAD_FAILED", "thread", id, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, ThreadResponse{
			Success: false,
			Message: "Error loading thread: " + err.Error(),
		})
		return
	}

	body, err := json.Marshal(ThreadResponse{Success: true, Thread: thread})
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, ThreadResponse{
			Success: false,
			Message: "Error loading thread: " + err.Error(),
		})
		return
	}

	etag := contentETag(body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	s.logger.Debug("THREAD_LOADED", "thread", id, "messages", len(thread.Messages))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(append(body, '\n'))
}

// handleGetThreads handles GET /api/get_threads. A storage failure yields an
// empty list.
func (s *Server) handleGetThreads(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("THREAD_LIST_FAILED", "err", err)
		summaries = []storage.Summary{}
	}
	if summaries == nil {
		summaries = []storage.Summary{}
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

// handleDeleteThread handles DELETE /api/delete_thread/{id}.
func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !storage.ValidID(id) {
		s.writeJSON(w, http.StatusNotFound, ThreadResult{Success: false, Message: msgThreadNotFound})
		return
	}

	removed, err := s.store.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrThreadNotFound) {
			s.logger.Warn("THREAD_NOT_FOUND", "thread", id)
			s.writeJSON(w, http.StatusNotFound, ThreadResult{Success: false, Message: msgThreadNotFound})
			return
		}
		s.logger.Error("THREAD_DELETE_FAILED", "thread", id, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, ThreadResult{
			Success: false,
			Message: "Error deleting thread: " + err.Error(),
		})
		return
	}

	s.logger.Info("THREAD_DELETED", "thread", id, "name", removed.Name)
	s.writeJSON(w, http.StatusOK, ThreadResult{
		Success:  true,
		Message:  "Thread deleted successfully",
		ThreadID: id,
	})
}

// ============================================================================
// ETAGS
// ============================================================================

// contentETag returns a strong ETag for body.
func contentETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// etagMatches implements the If-None-Match comparison (weak comparison, list
// and wildcard forms).
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
