// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the threadchat backend API.
//
// The backend persists threads and fronts Ollama. Every call returns either
// a typed result or a *ClientError whose Type separates transport failures,
// missing threads, validation failures (raised before any network call)
// and server-side errors.
//
// # Usage
//
//	client := backend.NewClientWithConfig(&backend.ClientConfig{
//	    BaseURL: "http://127.0.0.1:8000",
//	})
//
//	err := client.SendMessage(ctx, backend.GenerateRequest{
//	    Model:  "deepseek-r1:1.5b",
//	    Prompt: "Why is the sky blue?",
//	}, func(chunk []byte) error {
//	    frame := proc.FeedBytes(chunk)
//	    ...
//	    return nil
//	})
//	if backend.IsTransport(err) {
//	    ...
//	}
package backend
