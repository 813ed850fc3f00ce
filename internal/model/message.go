// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// TimestampLayout matches the ISO-8601 form browsers emit (millisecond
// precision, "Z" suffix for UTC), so transcripts round-trip byte for byte.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is a single transcript entry. The JSON field names are the wire
// and on-disk format shared with the backend.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`

	// Flags
	IsError      bool `json:"isError,omitempty"`
	IsConnection bool `json:"isConnection,omitempty"`

	// Model that produced an assistant message
	Model string `json:"model,omitempty"`
}

// Now returns the current time formatted as a message timestamp.
func Now() string {
	return FormatTimestamp(time.Now())
}

// FormatTimestamp formats t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates an assistant message attributed to modelName.
func NewAssistantMessage(content, modelName string) Message {
	msg := NewMessage(RoleAssistant, content)
	msg.Model = modelName
	return msg
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewErrorMessage creates a system-level diagnostic entry.
func NewErrorMessage(content string) Message {
	msg := NewMessage(RoleSystem, content)
	msg.IsError = true
	return msg
}

// NewConnectionMessage creates the system entry recorded when a model is
// connected.
func NewConnectionMessage(modelName string) Message {
	msg := NewMessage(RoleSystem, "Connected to "+modelName+" model.")
	msg.IsConnection = true
	return msg
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Time parses the timestamp. Returns the zero time when it is missing or
// malformed.
func (m Message) Time() time.Time {
	if m.Timestamp == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, m.Timestamp); err == nil {
		return t
	}
	return time.Time{}
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}
