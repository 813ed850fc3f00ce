// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists threads for the backend server.
//
// # Key Types
//
//   - Store: the persistence contract used by the HTTP handlers
//   - FileStore: one JSON file per thread, atomic writes, directory lock
//   - SQLiteStore: a single SQLite database
//   - Thread, Summary: the stored record and its listing form
//
// # Usage
//
//	store, err := storage.Open(storage.KindFile, "threads")
//	defer store.Close()
//
//	t, err := store.Save(ctx, storage.SaveRequest{Name: "Notes", Messages: msgs})
//	list, err := store.List(ctx)
//
// New thread ids are the Unix time in seconds. A save that names an
// existing thread replaces its content and keeps its created_at.
package storage
