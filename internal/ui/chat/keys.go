// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the chat interface.
type KeyMap struct {
	Submit     key.Binding
	Newline    key.Binding
	Cancel     key.Binding
	Quit       key.Binding
	Suspend    key.Binding
	Save       key.Binding
	NewThread  key.Binding
	Clear      key.Binding
	Connect    key.Binding
	FocusNext  key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	ListUp     key.Binding
	ListDown   key.Binding
	Open       key.Binding
	Delete     key.Binding
	Refresh    key.Binding
	Help       key.Binding
	Confirm    key.Binding
	Deny       key.Binding
	ToggleSave key.Binding
}

// DefaultKeyMap returns the default key bindings for the chat interface.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "send"),
		),
		Newline: key.NewBinding(
			key.WithKeys("alt+enter", "ctrl+j"),
			key.WithHelp("A-Enter", "new line"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "stop / close"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("C-c", "quit"),
		),
		Suspend: key.NewBinding(
			key.WithKeys("ctrl+z"),
			key.WithHelp("C-z", "suspend"),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("C-s", "save thread"),
		),
		NewThread: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new thread"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("C-l", "clear chat"),
		),
		Connect: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "connect model"),
		),
		FocusNext: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("Tab", "threads / input"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		ListUp: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "previous thread"),
		),
		ListDown: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "next thread"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "open thread"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d", "delete"),
			key.WithHelp("d", "delete thread"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh list"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "help"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "Y", "enter"),
			key.WithHelp("y", "yes"),
		),
		Deny: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n", "no"),
		),
		ToggleSave: key.NewBinding(
			key.WithKeys("f2"),
			key.WithHelp("F2", "toggle auto-save"),
		),
	}
}

// =============================================================================
// KEY BINDING HELPERS
// =============================================================================

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Connect, k.Save, k.FocusNext, k.Help, k.Quit}
}

// FullHelp returns the bindings shown in the help overlay, grouped.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Newline, k.Cancel, k.PageUp, k.PageDown},
		{k.Connect, k.Save, k.NewThread, k.Clear, k.ToggleSave},
		{k.FocusNext, k.ListUp, k.ListDown, k.Open, k.Delete, k.Refresh},
		{k.Help, k.Suspend, k.Quit},
	}
}

// SlashCommand describes one command accepted in the input box.
type SlashCommand struct {
	Usage string
	Desc  string
}

// SlashCommands returns the input box commands, for help screens.
func SlashCommands() []SlashCommand {
	return append([]SlashCommand(nil), slashCommands...)
}

var slashCommands = []SlashCommand{
	{"/connect [model]", "check, install if needed, and connect a model"},
	{"/model <name>", "switch to another model and connect it"},
	{"/save [name]", "save the thread under a name"},
	{"/rename <name>", "rename the thread"},
	{"/new", "start a new thread"},
	{"/clear", "clear the chat"},
	{"/load <id>", "open a saved thread"},
	{"/delete [id]", "delete a thread (default: the current one)"},
	{"/threads", "reload the thread list"},
	{"/autosave [on|off]", "toggle auto-save"},
	{"/export [md|json|yaml]", "export the thread to a file"},
	{"/copy", "copy the last reply to the clipboard"},
	{"/small", "suggest small models"},
	{"/help", "toggle this help"},
	{"/quit", "save and exit"},
}
