// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the threadchat backend API.
package backend

import (
	"errors"
	"strconv"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeTransport
	ErrTypeTimeout
	ErrTypeNotFound
	ErrTypeInvalidResponse
	ErrTypeValidation
	ErrTypeServer
	ErrTypeUnavailable
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeTransport:
		return "transport"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeNotFound:
		return "not_found"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeValidation:
		return "validation"
	case ErrTypeServer:
		return "server"
	case ErrTypeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ClientError represents an error from the backend client.
type ClientError struct {
	Type    ErrorType
	Message string
	Status  int
	Cause   error
}

func (e *ClientError) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg += " (HTTP " + strconv.Itoa(e.Status) + ")"
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for easy checking.
var (
	ErrUnreachable     = &ClientError{Type: ErrTypeTransport, Message: "backend is not reachable"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrThreadNotFound  = &ClientError{Type: ErrTypeNotFound, Message: "Thread not found"}
	ErrEmptyTranscript = &ClientError{Type: ErrTypeValidation, Message: "Cannot save an empty thread. Start a conversation first."}
	ErrTitleRequired   = &ClientError{Type: ErrTypeValidation, Message: "Please enter a name for this thread"}
	ErrModelRequired   = &ClientError{Type: ErrTypeValidation, Message: "no model selected"}
	ErrEmptyPrompt     = &ClientError{Type: ErrTypeValidation, Message: "message is empty"}
)

func isType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}

// IsNotFound checks if an error means the thread does not exist.
func IsNotFound(err error) bool {
	return isType(err, ErrTypeNotFound)
}

// IsTransport checks if an error is a transport failure, including a
// malformed response.
func IsTransport(err error) bool {
	return isType(err, ErrTypeTransport) || isType(err, ErrTypeTimeout) || isType(err, ErrTypeInvalidResponse)
}

// IsValidation checks if an error was raised before any network call.
func IsValidation(err error) bool {
	return isType(err, ErrTypeValidation)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return isType(err, ErrTypeTimeout)
}

// IsUnavailable checks if the backend reported that Ollama is down.
func IsUnavailable(err error) bool {
	return isType(err, ErrTypeUnavailable)
}
