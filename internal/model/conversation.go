// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"strings"
)

const (
	// NewThreadID is the sentinel id of a thread that was never persisted.
	NewThreadID = "new"

	// UntitledTitle is the sentinel title of a thread nobody has named.
	UntitledTitle = "Untitled"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the mutable state of one chat session: the open thread,
// its transcript and the bookkeeping used to decide when it must be saved.
//
// A Conversation is owned by a single controller and is not safe for
// concurrent use.
type Conversation struct {
	// Identity
	ThreadID string
	Title    string

	// Model selected for this conversation
	Model string

	// Transcript
	Messages []Message

	dirty          bool
	snapshot       string
	modelConnected bool
	streaming      bool
}

// NewConversation creates an empty conversation on a fresh, unsaved thread.
func NewConversation(modelName string) *Conversation {
	return &Conversation{
		ThreadID: NewThreadID,
		Title:    UntitledTitle,
		Model:    modelName,
		Messages: make([]Message, 0),
	}
}

// =============================================================================
// IDENTITY
// =============================================================================

// IsNew reports whether the thread still carries the sentinel id.
func (c *Conversation) IsNew() bool {
	return c.ThreadID == "" || c.ThreadID == NewThreadID
}

// HasTitle reports whether the title was set to something other than the
// sentinel.
func (c *Conversation) HasTitle() bool {
	t := strings.TrimSpace(c.Title)
	return t != "" && t != UntitledTitle
}

// AdoptThreadID replaces the sentinel id with one assigned by the backend.
// A thread that already has a real id keeps it; returns true when the id
// changed.
func (c *Conversation) AdoptThreadID(id string) bool {
	if id == "" || !c.IsNew() {
		return false
	}
	c.ThreadID = id
	return true
}

// Rename sets the title and marks the conversation dirty.
func (c *Conversation) Rename(title string) {
	title = strings.TrimSpace(title)
	if title == "" || title == c.Title {
		return
	}
	c.Title = title
	c.dirty = true
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message at the end of the transcript and marks the
// conversation dirty. Messages are never reordered.
func (c *Conversation) Append(msg Message) {
	if msg.Timestamp == "" {
		msg.Timestamp = Now()
	}
	c.Messages = append(c.Messages, msg)
	c.dirty = true
}

// AddUserMessage creates and appends a user message.
func (c *Conversation) AddUserMessage(content string) Message {
	msg := NewUserMessage(content)
	c.Append(msg)
	return msg
}

// AddAssistantMessage creates and appends an assistant message produced by
// the conversation's model.
func (c *Conversation) AddAssistantMessage(content string) Message {
	msg := NewAssistantMessage(content, c.Model)
	c.Append(msg)
	return msg
}

// AddSystemMessage creates and appends a system message.
func (c *Conversation) AddSystemMessage(content string) Message {
	msg := NewSystemMessage(content)
	c.Append(msg)
	return msg
}

// AddErrorMessage appends a system-level diagnostic entry.
func (c *Conversation) AddErrorMessage(content string) Message {
	msg := NewErrorMessage(content)
	c.Append(msg)
	return msg
}

// AddConnectionMessage records a model connection and opens the send gate.
func (c *Conversation) AddConnectionMessage(modelName string) Message {
	if modelName != "" {
		c.Model = modelName
	}
	msg := NewConnectionMessage(c.Model)
	c.Append(msg)
	c.modelConnected = true
	return msg
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// FirstUserMessage returns the earliest user message.
func (c *Conversation) FirstUserMessage() (Message, bool) {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg, true
		}
	}
	return Message{}, false
}

// LastMessage returns the most recent message.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// LastAssistantMessage returns the most recent assistant message.
func (c *Conversation) LastAssistantMessage() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// CloneMessages returns a copy of the transcript that shares no backing
// array with the live state.
func (c *Conversation) CloneMessages() []Message {
	out := make([]Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Clear empties the transcript, drops the saved snapshot and disconnects the
// model. The thread id and title are kept.
func (c *Conversation) Clear() {
	c.Messages = make([]Message, 0)
	c.dirty = false
	c.snapshot = ""
	c.modelConnected = false
}

// Reset turns the conversation into a fresh, unsaved thread.
func (c *Conversation) Reset() {
	c.Clear()
	c.ThreadID = NewThreadID
	c.Title = UntitledTitle
}

// Load replaces the whole state with a persisted thread. The loaded content
// becomes the saved snapshot, so the conversation starts clean.
func (c *Conversation) Load(id, title, modelName string, messages []Message) {
	c.ThreadID = id
	if c.ThreadID == "" {
		c.ThreadID = NewThreadID
	}
	c.Title = strings.TrimSpace(title)
	if c.Title == "" {
		c.Title = UntitledTitle
	}
	if modelName != "" && modelName != "unknown" {
		c.Model = modelName
	}

	c.Messages = make([]Message, len(messages))
	copy(c.Messages, messages)

	c.modelConnected = false
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem && msg.IsConnection && strings.Contains(msg.Content, "Connected to") {
			c.modelConnected = true
			break
		}
	}

	c.snapshot, _ = c.Serialize()
	c.dirty = false
}

// =============================================================================
// DIRTY TRACKING
// =============================================================================

// snapshotState is the structure compared to detect unsaved changes.
type snapshotState struct {
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// Serialize renders the persisted part of the state (title and transcript)
// into its canonical comparison form.
func (c *Conversation) Serialize() (string, error) {
	msgs := c.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.Marshal(snapshotState{Title: c.Title, Messages: msgs})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MatchesSnapshot reports whether the current state serializes to the last
// persisted snapshot.
func (c *Conversation) MatchesSnapshot() bool {
	if c.snapshot == "" {
		return false
	}
	current, err := c.Serialize()
	if err != nil {
		return false
	}
	return current == c.snapshot
}

// Snapshot returns the serialized state recorded at the last successful save.
func (c *Conversation) Snapshot() string {
	return c.snapshot
}

// MarkPersisted records a successful save of the given serialized state.
// The dirty flag is cleared only when nothing changed while the save was in
// flight.
func (c *Conversation) MarkPersisted(snapshot string) {
	c.snapshot = snapshot
	current, err := c.Serialize()
	c.dirty = err != nil || current != snapshot
}

// MarkClean clears the dirty flag and keeps the recorded snapshot. It is
// used for local notes appended right after a save that are not meant to
// trigger another one.
func (c *Conversation) MarkClean() {
	c.dirty = false
}

// MarkDirty flags unsaved changes.
func (c *Conversation) MarkDirty() {
	c.dirty = true
}

// IsDirty returns whether the conversation has unsaved changes.
func (c *Conversation) IsDirty() bool {
	return c.dirty
}

// =============================================================================
// CONNECTION AND STREAMING FLAGS
// =============================================================================

// IsModelConnected reports whether messages may be sent.
func (c *Conversation) IsModelConnected() bool {
	return c.modelConnected
}

// SetModelConnected opens or closes the send gate.
func (c *Conversation) SetModelConnected(connected bool) {
	c.modelConnected = connected
}

// IsStreaming reports whether a response is being consumed.
func (c *Conversation) IsStreaming() bool {
	return c.streaming
}

// BeginStream marks the start of a response. Returns false if a stream is
// already active, since a transcript accepts one stream at a time.
func (c *Conversation) BeginStream() bool {
	if c.streaming {
		return false
	}
	c.streaming = true
	return true
}

// EndStream marks the response as finished.
func (c *Conversation) EndStream() {
	c.streaming = false
}
