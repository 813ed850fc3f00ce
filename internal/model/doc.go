// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the conversation state shared by the TUI, the
// line-mode REPL and the auto-save coordinator, plus the catalogue of
// installable models.
//
// # Key Types
//
//   - Conversation: the open thread (id, title, transcript) and its
//     dirty/snapshot bookkeeping
//   - Message: one transcript entry with role, content and ISO timestamp
//   - ModelInfo: a model tag with its description and download size
//   - Role: user, assistant or system
//
// # Usage
//
//	conv := model.NewConversation(model.DefaultModel)
//	conv.AddConnectionMessage("deepseek-r1:8b")
//	conv.AddUserMessage("Hello!")
//
//	if conv.IsDirty() && !conv.MatchesSnapshot() {
//	    // schedule a save
//	}
//
// A thread starts with the sentinel id "new" and title "Untitled"; the id
// is replaced once, by the first successful save.
package model
