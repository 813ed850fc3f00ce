// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/threadchat/internal/model"
)

// UnknownModel is recorded when a save does not name its model.
const UnknownModel = "unknown"

// =============================================================================
// STORED THREAD TYPE
// =============================================================================

// Thread is a persisted thread record. The JSON form is the on-disk format
// of the file store and the body of get_thread responses.
type Thread struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	Model     string          `json:"model"`
	Messages  []model.Message `json:"messages"`
}

// Summary is the listing form of a thread.
type Summary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// Summary returns the listing form of t.
func (t *Thread) Summary() Summary {
	return Summary{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

// SaveRequest describes a create or update. An empty ID creates a thread.
type SaveRequest struct {
	ID       string
	Name     string
	Model    string
	SavedAt  string
	Messages []model.Message
}

// =============================================================================
// RECORD HELPERS
// =============================================================================

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id can name a stored thread. Ids become file
// names, so path separators and dots are refused.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// newID returns the decimal Unix time in seconds, moved forward while
// taken reports a collision.
func newID(now time.Time, taken func(string) bool) string {
	n := now.Unix()
	for {
		id := strconv.FormatInt(n, 10)
		if !taken(id) {
			return id
		}
		n++
	}
}

// buildThread assembles the record written for req. created_at of an
// existing thread is kept; a new thread uses the client's saved_at.
func buildThread(id string, req SaveRequest, existing *Thread, now time.Time) *Thread {
	stamp := model.FormatTimestamp(now)

	created := strings.TrimSpace(req.SavedAt)
	if existing != nil && existing.CreatedAt != "" {
		created = existing.CreatedAt
	}
	if created == "" {
		created = stamp
	}

	modelName := strings.TrimSpace(req.Model)
	if modelName == "" {
		modelName = UnknownModel
	}

	msgs := make([]model.Message, len(req.Messages))
	copy(msgs, req.Messages)

	return &Thread{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: created,
		UpdatedAt: stamp,
		Model:     modelName,
		Messages:  msgs,
	}
}

// validate checks a save before anything is written.
func (req SaveRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return ErrNameRequired
	}
	if req.ID != "" && !ValidID(req.ID) {
		return ErrInvalidID
	}
	return nil
}

// sortSummaries orders newest first by created_at, then by id.
func sortSummaries(s []Summary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].CreatedAt != s[j].CreatedAt {
			return s[i].CreatedAt > s[j].CreatedAt
		}
		return s[i].ID > s[j].ID
	})
}

// =============================================================================
// ERRORS
// =============================================================================

// ThreadError represents a storage-level thread error.
// It implements the error interface and can be compared using errors.Is.
type ThreadError struct {
	Message string
}

// Error implements the error interface.
func (e *ThreadError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing thread errors.
func (e *ThreadError) Is(target error) bool {
	t, ok := target.(*ThreadError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrThreadNotFound is returned when a thread doesn't exist.
	ErrThreadNotFound = &ThreadError{Message: "Thread not found"}

	// ErrInvalidID is returned for ids that cannot name a stored thread.
	ErrInvalidID = &ThreadError{Message: "invalid thread id"}

	// ErrNameRequired is returned when a save has a blank name.
	ErrNameRequired = &ThreadError{Message: "thread name is required"}
)
