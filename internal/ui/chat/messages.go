// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/threadchat/internal/backend"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// streamChunkMsg delivers raw response bytes. ID ties the chunk to the
// stream that produced it.
type streamChunkMsg struct {
	ID   int
	Data []byte

	next <-chan tea.Msg
}

// streamEndMsg signals that the response body ended or failed.
type streamEndMsg struct {
	ID  int
	Err error
}

// =============================================================================
// MODEL MESSAGES
// =============================================================================

// modelCheckedMsg reports whether a model is installed.
type modelCheckedMsg struct {
	Model string
	Resp  *backend.CheckModelResponse
	Err   error

	// AfterInstall is set for the check that follows an install request.
	AfterInstall bool
}

// installStartedMsg reports the result of an install request.
type installStartedMsg struct {
	Model string
	Resp  *backend.InstallModelResponse
	Err   error
}

// smallModelsMsg delivers lightweight model suggestions.
type smallModelsMsg struct {
	Models []backend.SmallModel
	Err    error
}

// =============================================================================
// THREAD MESSAGES
// =============================================================================

// threadsLoadedMsg delivers the thread list.
type threadsLoadedMsg struct {
	Threads []backend.ThreadSummary
	Err     error
}

// threadLoadedMsg delivers a thread picked from the list.
type threadLoadedMsg struct {
	ID     string
	Thread *backend.Thread
	Err    error
}

// threadDeletedMsg confirms a delete.
type threadDeletedMsg struct {
	ID   string
	Name string
	Err  error
}

// =============================================================================
// UI MESSAGES
// =============================================================================

// statusClearMsg hides the status line set at generation Gen.
type statusClearMsg struct {
	Gen int
}

// exportedMsg reports where an export was written.
type exportedMsg struct {
	Path string
	Err  error
}

// beaconDoneMsg is sent once the exit save finished or timed out.
type beaconDoneMsg struct {
	Err error
}
