// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// streamControl remembers how to stop the response stream that is running.
// Bubble Tea copies Model on every update, so it is shared by pointer; the
// stream goroutine and Update both reach it.
type streamControl struct {
	mu     sync.Mutex
	id     int
	cancel context.CancelFunc

	closed   chan struct{}
	shutOnce sync.Once
}

// done is closed by shutdown, after which no stream output is read.
func (sc *streamControl) done() <-chan struct{} {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed == nil {
		sc.closed = make(chan struct{})
	}
	return sc.closed
}

// shutdown stops the registered stream and releases every stream goroutine
// still waiting to deliver output.
func (sc *streamControl) shutdown() {
	sc.stop()
	sc.done()
	sc.shutOnce.Do(func() {
		sc.mu.Lock()
		defer sc.mu.Unlock()
		close(sc.closed)
	})
}

// begin records stream id. A stream still registered is stopped first.
func (sc *streamControl) begin(id int, cancel context.CancelFunc) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.cancel != nil {
		sc.cancel()
	}
	sc.id, sc.cancel = id, cancel
}

// stop cancels the registered stream, if any.
func (sc *streamControl) stop() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.cancel == nil {
		return false
	}
	sc.cancel()
	sc.cancel = nil
	return true
}

// finish releases stream id. The end of an older stream leaves a newer
// registration alone.
func (sc *streamControl) finish(id int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.id != id || sc.cancel == nil {
		return
	}
	sc.cancel()
	sc.cancel = nil
}
