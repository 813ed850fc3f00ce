// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps one JSON file per thread in a directory.
//
// Writes are atomic (temp file, fsync, rename) and serialized by a mutex.
// The directory is locked for the lifetime of the store so two servers
// cannot interleave writes. The thread list is cached and invalidated by
// directory change notifications; without a watcher every List reads the
// directory.
type FileStore struct {
	dir    string
	lock   *dirLock
	logger *log.Logger

	mu  sync.Mutex
	now func() time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}

	cacheMu   sync.Mutex
	cache     []Summary
	cacheGood bool
	cacheable bool
	cacheGen  uint64
}

// NewFileStore opens (creating if needed) the threads directory at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create threads directory: %w", err)
	}

	lock, err := acquireDirLock(dir)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		dir:    dir,
		lock:   lock,
		logger: logging.Component("storage"),
		now:    time.Now,
		done:   make(chan struct{}),
	}

	if err := s.watch(); err != nil {
		s.logger.Warn("thread list cache disabled", "err", err)
	}
	return s, nil
}

// Dir returns the threads directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Close stops the watcher and releases the directory lock.
func (s *FileStore) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	var errs []error
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}
	errs = append(errs, s.lock.release())
	return errors.Join(errs...)
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save writes the thread described by req.
func (s *FileStore) Save(ctx context.Context, req SaveRequest) (*Thread, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := req.ID
	var existing *Thread
	if id == "" {
		id = newID(now, s.exists)
	} else if t, err := s.read(id); err == nil {
		existing = t
	} else if !errors.Is(err, ErrThreadNotFound) {
		// unreadable record; overwrite it but start a fresh created_at
		s.logger.Warn("replacing unreadable thread", "id", id, "err", err)
	}

	thread := buildThread(id, req, existing, now)
	data, err := json.MarshalIndent(thread, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode thread: %w", err)
	}
	if err := util.AtomicWriteFile(s.path(id), data, 0644); err != nil {
		return nil, err
	}
	s.invalidate()

	s.logger.Debug("thread written", "id", id, "messages", len(thread.Messages), "update", existing != nil)
	return thread, nil
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Get loads the thread with the given id.
func (s *FileStore) Get(ctx context.Context, id string) (*Thread, error) {
	if !ValidID(id) {
		return nil, ErrThreadNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read(id)
}

func (s *FileStore) read(id string) (*Thread, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}

	var t Thread
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("thread %s is corrupted: %w", id, err)
	}
	if t.ID == "" {
		t.ID = id
	}
	if t.Messages == nil {
		t.Messages = []model.Message{}
	}
	return &t, nil
}

func (s *FileStore) exists(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// List returns all readable threads, newest first. Corrupted files are
// skipped.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	if s.cacheGood {
		out := append([]Summary(nil), s.cache...)
		s.cacheMu.Unlock()
		return out, nil
	}
	gen := s.cacheGen
	s.cacheMu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, err
	}

	out := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		t, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Warn("skipping thread file", "file", name, "err", err)
			continue
		}
		out = append(out, t.Summary())
	}
	sortSummaries(out)

	s.cacheMu.Lock()
	// a change seen while reading makes this result stale
	if s.cacheable && gen == s.cacheGen {
		s.cache = append([]Summary(nil), out...)
		s.cacheGood = true
	}
	s.cacheMu.Unlock()
	return out, nil
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes the thread with the given id.
func (s *FileStore) Delete(ctx context.Context, id string) (*Thread, error) {
	if !ValidID(id) {
		return nil, ErrThreadNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.read(id)
	if errors.Is(err, ErrThreadNotFound) {
		return nil, err
	}
	if err != nil {
		// still removable; report it under its id only
		t = &Thread{ID: id, Name: "Unknown"}
	}

	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	s.invalidate()
	return t, nil
}

// =============================================================================
// LIST CACHE
// =============================================================================

func (s *FileStore) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	s.cacheable = true
	go s.processEvents()
	return nil
}

// processEvents drops the cached list whenever a thread file changes, which
// covers edits made by hand or by other tools.
func (s *FileStore) processEvents() {
	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if strings.HasSuffix(event.Name, ".json") {
				s.invalidate()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			// overflowed or failed; never trust the cache again
			s.logger.Warn("threads directory watch failed", "err", err)
			s.cacheMu.Lock()
			s.cacheable = false
			s.cacheGood = false
			s.cache = nil
			s.cacheMu.Unlock()
		}
	}
}

func (s *FileStore) invalidate() {
	s.cacheMu.Lock()
	s.cacheGen++
	s.cacheGood = false
	s.cache = nil
	s.cacheMu.Unlock()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// path returns the file path for a thread id.
func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
