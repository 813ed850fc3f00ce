// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session decides when a conversation is flushed to the backend.
//
// Every save trigger (periodic interval, first message of a new thread,
// inactivity, terminal blur, exit, explicit save, completed exchange) goes
// through one arbitration routine on the Coordinator. The routine skips
// empty transcripts and unchanged saved threads, derives a title for
// untitled threads and returns a Decision carrying a deep copy of the
// state. The network call happens elsewhere; Complete applies its result.
//
// # Key Types
//
//   - Coordinator: arbitration and result handling
//   - Decision: a save request or the reason it was skipped
//   - Outcome: what a finished save changed
//   - Loop: runs a Coordinator with real timers outside Bubble Tea
//
// # Usage
//
// Inside a Bubble Tea model:
//
//	coord := session.New(conv, session.DefaultConfig())
//	cmds = append(cmds, coord.IntervalCmd())
//	...
//	if cmd, ok := coord.Update(msg, client, 30*time.Second); ok {
//	    return m, cmd
//	}
//	case session.SaveResultMsg:
//	    out := coord.Complete(msg.Decision, msg.Response, msg.Err, time.Now())
//
// # Failure Handling
//
// A failed save leaves the dirty flag set and is reported in the Outcome;
// it never aborts the session. Overlapping saves are allowed: the write is
// at-least-once and the last id assigned wins.
package session
