// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/threadchat/internal/export"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/session"
)

const busyNotice = "Wait for the current response to finish."

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand runs a /command typed in the input box.
func (m Model) handleCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	arg := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))

	switch name {
	case "connect", "c":
		if arg == "" {
			arg = m.conv.Model
		}
		return m.connect(arg)

	case "model", "m":
		if arg == "" {
			cmd := m.setStatus("Current model: " + m.conv.Model + ". Usage: /model <name>")
			return m, cmd
		}
		return m.connect(arg)

	case "save", "s":
		if arg == "" {
			arg = m.conv.Title
		}
		return m.explicitSave(arg)

	case "rename":
		if arg == "" {
			cmd := m.setError("Please enter a name for this thread")
			return m, cmd
		}
		m.conv.Rename(arg)
		cmd := m.setStatus(fmt.Sprintf("Renamed to \"%s\"", m.conv.Title))
		m.refresh()
		return m, cmd

	case "new", "n":
		return m.newThread()

	case "clear":
		return m.clearChat()

	case "load", "open":
		if arg == "" {
			cmd := m.setStatus("Usage: /load <id>")
			return m, cmd
		}
		return m.openThread(arg)

	case "delete", "del":
		return m.confirmDelete(arg, "")

	case "threads", "list":
		cmd := m.setStatus("Refreshing threads...")
		return m, tea.Batch(cmd, m.loadThreadsCmd())

	case "autosave":
		switch strings.ToLower(arg) {
		case "":
			return m.toggleAutoSave(!m.coord.Enabled())
		case "on", "true", "1":
			return m.toggleAutoSave(true)
		case "off", "false", "0":
			return m.toggleAutoSave(false)
		}
		cmd := m.setStatus("Usage: /autosave [on|off]")
		return m, cmd

	case "export":
		return m.exportThread(arg)

	case "copy":
		return m.copyLastReply()

	case "small":
		cmd := m.setStatus("Looking for small models...")
		return m, tea.Batch(cmd, m.smallModelsCmd())

	case "help", "h", "?":
		m.showHelp = !m.showHelp
		m.refresh()
		return m, nil

	case "quit", "exit", "q":
		return m.quit()
	}

	cmd := m.setError(fmt.Sprintf("Unknown command: /%s (try /help)", name))
	return m, cmd
}

// =============================================================================
// ACTIONS
// =============================================================================

// connect checks name with the backend. The result either connects the
// model or opens the install prompt.
func (m Model) connect(name string) (tea.Model, tea.Cmd) {
	if m.conv.IsStreaming() {
		cmd := m.setStatus(busyNotice)
		return m, cmd
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = model.DefaultModel
	}
	if name != m.conv.Model {
		m.conv.SetModelConnected(false)
	}
	m.conv.Model = name
	cmd := m.setStatus("Checking model " + name + "...")
	return m, tea.Batch(cmd, m.checkModelCmd(name, 0))
}

// explicitSave saves the thread under title. A blank title or an empty
// transcript is refused before any request.
func (m Model) explicitSave(title string) (tea.Model, tea.Cmd) {
	d, err := m.coord.RequestExplicit(title, m.now())
	if err != nil {
		cmd := m.setError(err.Error())
		return m, cmd
	}
	cmd := m.setStatus(fmt.Sprintf("Saving \"%s\"...", d.Request.Name))
	m.refresh()
	return m, tea.Batch(cmd, session.SaveCmd(m.opts.Backend, d, m.opts.RequestTimeout))
}

// newThread starts a fresh unsaved thread. Unsaved changes of the current
// one are flushed first.
func (m Model) newThread() (tea.Model, tea.Cmd) {
	if m.conv.IsStreaming() {
		cmd := m.setStatus(busyNotice)
		return m, cmd
	}
	flush := m.saveNowCmd(session.TriggerVisibility)

	m.conv.Reset()
	m.coord.ThreadChanged()
	m.annotation = ""
	m.focus = focusInput
	m.input.Focus()

	cmd := m.setStatus("Started a new thread. Connect a model to chat (Ctrl+O).")
	m.refresh()
	return m, tea.Batch(flush, cmd)
}

// clearChat empties the transcript of the current thread.
func (m Model) clearChat() (tea.Model, tea.Cmd) {
	if m.conv.IsStreaming() {
		cmd := m.setStatus(busyNotice)
		return m, cmd
	}
	m.conv.Clear()
	m.coord.ThreadChanged()
	m.annotation = ""

	cmd := m.setStatus("Chat cleared. Connect a model to continue (Ctrl+O).")
	m.refresh()
	return m, cmd
}

// toggleAutoSave turns the automatic triggers on or off.
func (m Model) toggleAutoSave(on bool) (tea.Model, tea.Cmd) {
	m.coord.SetEnabled(on)
	state := "off"
	if on {
		state = "on"
	}
	cmd := m.setStatus("Auto-save " + state)
	return m, cmd
}

// openThread loads a saved thread, flushing the current one first.
func (m Model) openThread(id string) (tea.Model, tea.Cmd) {
	if m.conv.IsStreaming() {
		cmd := m.setStatus(busyNotice)
		return m, cmd
	}
	flush := m.saveNowCmd(session.TriggerVisibility)
	cmd := m.setStatus("Loading thread...")
	return m, tea.Batch(flush, cmd, m.loadThreadCmd(id))
}

// confirmDelete asks before deleting thread id. An empty id means the
// current thread.
func (m Model) confirmDelete(id, name string) (tea.Model, tea.Cmd) {
	if id == "" {
		if m.conv.IsNew() {
			cmd := m.setStatus("This thread has not been saved yet.")
			return m, cmd
		}
		id = m.conv.ThreadID
	}
	if name == "" {
		name = id
		if id == m.conv.ThreadID {
			name = m.conv.Title
		}
		for _, t := range m.threads {
			if t.ID == id {
				name = t.Name
				break
			}
		}
	}
	if id == m.conv.ThreadID && m.conv.IsStreaming() {
		cmd := m.setStatus(busyNotice)
		return m, cmd
	}
	m.dialog = dialog{kind: dialogDelete, id: id, name: name}
	return m, nil
}

// exportThread writes the conversation to a file in the export directory.
func (m Model) exportThread(arg string) (tea.Model, tea.Cmd) {
	format := export.FormatMarkdown
	if arg != "" {
		f, err := export.ParseFormat(arg)
		if err != nil {
			cmd := m.setError(err.Error())
			return m, cmd
		}
		format = f
	}
	if m.conv.IsEmpty() {
		cmd := m.setStatus("Nothing to export yet.")
		return m, cmd
	}
	return m, m.exportCmd(export.FromConversation(m.conv), format)
}

// copyLastReply puts the latest assistant reply on the clipboard.
func (m Model) copyLastReply() (tea.Model, tea.Cmd) {
	msg, ok := m.conv.LastAssistantMessage()
	if !ok {
		cmd := m.setStatus("No reply to copy yet.")
		return m, cmd
	}
	if err := clipboard.WriteAll(msg.Content); err != nil {
		cmd := m.setError("Clipboard unavailable: " + err.Error())
		return m, cmd
	}
	cmd := m.setStatus("Copied the last reply.")
	return m, cmd
}

// quit flushes the thread and exits. The final save is sent with the
// backend's beacon so a slow backend cannot hold the terminal.
func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.streams.shutdown()

	d := m.coord.Request(session.TriggerUnload, m.now())
	if !d.ShouldSave() {
		return m, tea.Quit
	}
	done := m.opts.Backend.Beacon(d.Request)
	cmd := m.setStatus("Saving before exit...")
	return m, tea.Batch(cmd, func() tea.Msg {
		return beaconDoneMsg{Err: <-done}
	})
}
