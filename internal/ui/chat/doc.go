// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the main chat view of the threadchat TUI.

The Model is a Bubble Tea model that owns one model.Conversation and the
session.Coordinator that decides when it is saved. Every change to the
conversation happens inside Update; backend calls run as commands and come
back as messages.

# Files

  - model.go: state, Update, key routing
  - streaming.go: sending a message and consuming the response stream
  - commands.go: slash commands and user actions (connect, save, new, delete)
  - threads.go: backend commands and their result handlers
  - view.go: header, transcript, thread list, dialogs, status bar

# Responses

A response is read on its own goroutine and handed to Update chunk by chunk
through a channel. Each chunk goes through a stream.Processor, so thinking
sections never reach the screen or the transcript. Only a complete, non-empty
answer is appended as an assistant message.

# Saving

Auto-save timers are session commands routed through Coordinator.Update.
Losing terminal focus saves right away, and quitting sends a last save
through the backend beacon.
*/
package chat
