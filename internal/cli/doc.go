// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the threadchat command line.
//
// # Commands
//
//	threadchat                 Open the chat (full screen on a terminal)
//	threadchat tui             Open the full-screen chat
//	threadchat chat            Line-mode chat
//	threadchat serve           Run the backend server
//	threadchat threads ...     list, show, export, delete saved threads
//	threadchat models ...      list, check, install, small
//	threadchat status          Backend and Ollama health
//	threadchat dns             DNS diagnostics for model downloads
//	threadchat config ...      show, init, get, set, keys, path
//	threadchat version         Version information
//
// # Global flags
//
//	--config PATH       Config file (default ~/.threadchat/config.toml)
//	--backend URL       Backend URL for client commands
//	--log-level LEVEL   debug, info, warn, error
//	--log-file PATH     Write logs to a file
//
// Commands return errors instead of printing them; Execute prints the
// error once and maps it to an exit code with GetExitCode.
package cli
