// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the server and the clients.
//
// # Key Functions
//
//   - AtomicWriteFile, AtomicWritePrivate: crash-safe file replacement
//   - TruncateRunes, TruncateWidth: Unicode-safe truncation for display
//   - PadRight, StringWidth: column alignment for tables
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0644)
//	cell := util.PadRight(util.TruncateWidth(name, 30), 30)
package util
