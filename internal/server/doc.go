// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the threadchat backend HTTP API.
//
// The backend sits between chat clients and a local Ollama instance. It
// relays generation streams, persists threads through a storage.Store and
// answers model and network diagnostics.
//
// # Endpoints
//
//   - POST   /api/send_message       - Response text, unpaced (text/plain)
//   - POST   /api/generate           - Response text re-chunked and paced
//   - POST   /api/generate_raw       - Upstream NDJSON passthrough
//   - POST   /api/save_thread        - Create or update a thread
//   - GET    /api/get_thread/{id}    - Load a thread (ETag aware)
//   - GET    /api/get_threads        - Thread summaries, newest first
//   - DELETE /api/delete_thread/{id} - Remove a thread
//   - POST   /api/check_model        - Is a model installed
//   - POST   /api/install_model      - Start a background pull
//   - GET    /api/check_all_models   - Catalogue with install state
//   - GET    /api/list_small_models  - Lightweight suggestions
//   - GET    /api/check_dns          - DNS diagnostics
//   - GET    /health                 - Backend and Ollama status
//
// Upstream failures during generation are reported in-band as a single
// line `{"error": "API Error: N"}` on a 200 response, which is what the
// stream consumers look for.
//
// # Middleware
//
// Every request passes through panic recovery, request ids, request
// logging, security headers, CORS and an optional per-IP token bucket
// (golang.org/x/time/rate).
//
// # Usage
//
//	store, _ := storage.Open(storage.KindFile, dir)
//	srv := server.New(server.DefaultConfig(), store, ollama.NewClient())
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
