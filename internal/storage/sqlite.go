// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLite schema for the thread store
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS threads (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    model TEXT NOT NULL,
    messages TEXT NOT NULL      -- JSON array of messages
);

CREATE INDEX IF NOT EXISTS idx_threads_created_at ON threads(created_at);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps threads in a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *log.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		path:   path,
		logger: logging.Component("storage"),
		now:    time.Now,
	}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a thread in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, req SaveRequest) (*Thread, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	id := req.ID
	var existing *Thread

	if id == "" {
		var lookupErr error
		id = newID(now, func(candidate string) bool {
			var one int
			err := tx.QueryRowContext(ctx, "SELECT 1 FROM threads WHERE id = ?", candidate).Scan(&one)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				lookupErr = err
				return false
			}
			return err == nil
		})
		if lookupErr != nil {
			return nil, lookupErr
		}
	} else {
		var created string
		err := tx.QueryRowContext(ctx, "SELECT created_at FROM threads WHERE id = ?", id).Scan(&created)
		switch {
		case err == nil:
			existing = &Thread{ID: id, CreatedAt: created}
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
	}

	thread := buildThread(id, req, existing, now)
	msgs, err := json.Marshal(thread.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (id, name, created_at, updated_at, model, messages)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at,
			model = excluded.model,
			messages = excluded.messages
	`, thread.ID, thread.Name, thread.CreatedAt, thread.UpdatedAt, thread.Model, string(msgs))
	if err != nil {
		return nil, fmt.Errorf("failed to write thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Debug("thread written", "id", id, "messages", len(thread.Messages), "update", existing != nil)
	return thread, nil
}

// Get loads a thread.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Thread, error) {
	if !ValidID(id) {
		return nil, ErrThreadNotFound
	}
	return s.get(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) get(ctx context.Context, q queryer, id string) (*Thread, error) {
	var (
		t    Thread
		msgs string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at, model, messages FROM threads WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt, &t.Model, &msgs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Messages = []model.Message{}
	if err := json.Unmarshal([]byte(msgs), &t.Messages); err != nil {
		return nil, fmt.Errorf("thread %s is corrupted: %w", id, err)
	}
	return &t, nil
}

// List returns all threads, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM threads")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortSummaries(out)
	return out, nil
}

// Delete removes a thread.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (*Thread, error) {
	if !ValidID(id) {
		return nil, ErrThreadNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}
