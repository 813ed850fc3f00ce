// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Store persists threads. Implementations are safe for concurrent use.
type Store interface {
	// Save creates or updates a thread and returns the stored record.
	Save(ctx context.Context, req SaveRequest) (*Thread, error)

	// Get loads a thread. Returns ErrThreadNotFound when it does not exist.
	Get(ctx context.Context, id string) (*Thread, error)

	// List returns every thread, newest first.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes a thread and returns what was removed.
	Delete(ctx context.Context, id string) (*Thread, error)

	Close() error
}

// Kind selects a Store implementation.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// SQLiteFile is the database name used inside the threads directory.
const SQLiteFile = "threads.db"

// ParseKind converts a configuration value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindFile:
		return KindFile, nil
	case KindSQLite:
		return KindSQLite, nil
	}
	return "", fmt.Errorf("unknown storage backend %q (want file or sqlite)", s)
}

// Open creates the store of the given kind rooted at dir.
func Open(kind Kind, dir string) (Store, error) {
	switch kind {
	case KindFile, "":
		return NewFileStore(dir)
	case KindSQLite:
		return NewSQLiteStore(filepath.Join(dir, SQLiteFile))
	}
	return nil, fmt.Errorf("unknown storage backend %q", kind)
}
