// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// The backend server uses it to stream generations, list and pull models
// and check the server version. It can also start `ollama serve` when the
// service is not running.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama API
//   - GenerateRequest: generation parameters, with caller extras merged in
//   - GenerateChunk: one line of a streamed generation
//   - StreamReader: NDJSON reader that accumulates response text
//   - PullProgress: one status line of a model download
//
// # Usage
//
//	client := ollama.NewClient()
//	err := client.GenerateStream(ctx, ollama.GenerateRequest{
//	    Model:  "deepseek-r1:1.5b",
//	    Prompt: "Hello",
//	}, func(c ollama.GenerateChunk) error {
//	    fmt.Print(c.Response)
//	    return nil
//	})
//
// deepseek-r1 models need Ollama 0.5.7 or newer; see CheckVersion.
package ollama
