// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/threadchat/internal/backend"
	"github.com/jeranaias/threadchat/internal/export"
	"github.com/jeranaias/threadchat/internal/session"
	"github.com/jeranaias/threadchat/internal/storage"
)

// =============================================================================
// BACKEND COMMANDS
// =============================================================================

// Every command below runs off the update loop and reports back with a
// message. None of them touches the conversation.

func (m Model) loadThreadsCmd() tea.Cmd {
	client, timeout := m.opts.Backend, m.opts.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		threads, err := client.ListThreads(ctx)
		return threadsLoadedMsg{Threads: threads, Err: err}
	}
}

func (m Model) loadThreadCmd(id string) tea.Cmd {
	client, timeout := m.opts.Backend, m.opts.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		t, err := client.GetThread(ctx, id)
		return threadLoadedMsg{ID: id, Thread: t, Err: err}
	}
}

func (m Model) deleteCmd(id, name string) tea.Cmd {
	client, timeout := m.opts.Backend, m.opts.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := client.DeleteThread(ctx, id)
		return threadDeletedMsg{ID: id, Name: name, Err: err}
	}
}

// checkModelCmd asks the backend whether name is installed. With a delay,
// the check waits first; it is used to poll a model being installed.
func (m Model) checkModelCmd(name string, delay time.Duration) tea.Cmd {
	client, timeout := m.opts.Backend, m.opts.RequestTimeout
	return func() tea.Msg {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := client.CheckModel(ctx, name)
		return modelCheckedMsg{Model: name, Resp: resp, Err: err, AfterInstall: delay > 0}
	}
}

func (m Model) installCmd(name string) tea.Cmd {
	client, timeout := m.opts.Backend, m.opts.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := client.InstallModel(ctx, name)
		return installStartedMsg{Model: name, Resp: resp, Err: err}
	}
}

func (m Model) smallModelsCmd() tea.Cmd {
	client, timeout := m.opts.Backend, m.opts.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		models, err := client.ListSmallModels(ctx)
		return smallModelsMsg{Models: models, Err: err}
	}
}

// exportCmd writes t to a file. t is a copy taken on the update loop.
func (m Model) exportCmd(t *storage.Thread, format export.Format) tea.Cmd {
	opts := export.DefaultOptions()
	opts.OutputDir = m.opts.ExportDir
	return func() tea.Msg {
		exporter, err := export.New(format, opts)
		if err != nil {
			return exportedMsg{Err: err}
		}
		path, err := export.ExportToFile(t, exporter, opts)
		return exportedMsg{Path: path, Err: err}
	}
}

// saveNowCmd runs the save routine for trigger right away.
func (m Model) saveNowCmd(trigger session.Trigger) tea.Cmd {
	d := m.coord.Request(trigger, m.now())
	return session.SaveCmd(m.opts.Backend, d, m.opts.RequestTimeout)
}

// =============================================================================
// RESULT HANDLERS
// =============================================================================

func (m Model) handleSaveResult(msg session.SaveResultMsg) (tea.Model, tea.Cmd) {
	out := m.coord.Complete(msg.Decision, msg.Response, msg.Err, m.now())

	var cmds []tea.Cmd
	switch {
	case out.Stale:
		// saved under the previous thread; only the list can show it
		if out.Err == nil {
			cmds = append(cmds, m.loadThreadsCmd())
		}
	case out.Err != nil:
		if out.Trigger == session.TriggerExplicit {
			cmds = append(cmds, m.setError("Failed to save thread: "+out.Err.Error()))
		} else {
			cmds = append(cmds, m.setError("Auto-save failed. Your changes are kept and will be retried."))
		}
	case out.Saved:
		if out.Trigger == session.TriggerExplicit {
			cmds = append(cmds, m.setStatus("Thread saved."))
		}
		if out.RefreshList {
			cmds = append(cmds, m.loadThreadsCmd())
		}
	}

	m.refresh()
	return m, tea.Batch(cmds...)
}

func (m Model) handleModelChecked(msg modelCheckedMsg) (tea.Model, tea.Cmd) {
	// the user picked another model meanwhile
	if msg.Model != m.conv.Model {
		return m, nil
	}

	if msg.Err != nil {
		m.logger.Warn("model check failed", "model", msg.Model, "err", msg.Err)
		cmd := m.setError("Could not check model: " + msg.Err.Error())
		return m, cmd
	}
	resp := msg.Resp
	if resp == nil {
		resp = &backend.CheckModelResponse{}
	}

	if !resp.Exists {
		switch {
		case msg.AfterInstall:
			cmd := m.setStatus(fmt.Sprintf("%s is still installing. Try connecting again in a moment.", msg.Model))
			return m, cmd
		case resp.Error != "":
			cmd := m.setError("Could not check model: " + resp.Error)
			return m, cmd
		}
		m.dialog = dialog{kind: dialogInstall, model: msg.Model}
		return m, nil
	}

	var cmds []tea.Cmd
	if resp.Warning != "" {
		m.conv.AddSystemMessage(resp.Warning)
	}
	m.conv.AddConnectionMessage(msg.Model)
	if m.coord.MessageAppended() {
		cmds = append(cmds, m.coord.FirstMessageCmd())
	}
	m.logger.Info("model connected", "model", msg.Model)
	cmds = append(cmds, m.setStatus("Connected to "+msg.Model))

	m.refresh()
	m.viewport.GotoBottom()
	return m, tea.Batch(cmds...)
}

func (m Model) handleInstallStarted(msg installStartedMsg) (tea.Model, tea.Cmd) {
	if msg.Err == nil && (msg.Resp == nil || !msg.Resp.Success) {
		detail := "install rejected"
		if msg.Resp != nil && msg.Resp.Message != "" {
			detail = msg.Resp.Message
		}
		msg.Err = errors.New(detail)
	}

	if msg.Err != nil {
		m.logger.Warn("install failed", "model", msg.Model, "err", msg.Err)
		cmd := m.setError(fmt.Sprintf("Failed to install %s: %s", msg.Model, msg.Err))
		return m, tea.Batch(cmd, m.smallModelsCmd())
	}

	m.logger.Info("install started", "model", msg.Model)
	cmd := m.setStatus(fmt.Sprintf("Installing %s. This can take a few minutes.", msg.Model))
	return m, tea.Batch(cmd, m.checkModelCmd(msg.Model, m.opts.InstallCheckDelay))
}

func (m Model) handleSmallModels(msg smallModelsMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		cmd := m.setError("Could not list small models: " + msg.Err.Error())
		return m, cmd
	}

	var choices []backend.SmallModel
	for _, sm := range msg.Models {
		if !sm.Installed {
			choices = append(choices, sm)
		}
	}
	if len(choices) == 0 {
		cmd := m.setStatus("Every suggested small model is already installed.")
		return m, cmd
	}
	m.dialog = dialog{kind: dialogSmallModels, models: choices}
	return m, nil
}

func (m Model) handleThreadsLoaded(msg threadsLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.threadsErr = msg.Err
		m.logger.Warn("thread list failed", "err", msg.Err)
		return m, nil
	}
	m.threadsErr = nil
	m.threads = msg.Threads
	if m.threadCursor >= len(m.threads) {
		m.threadCursor = max(0, len(m.threads)-1)
	}
	return m, nil
}

func (m Model) handleThreadLoaded(msg threadLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		if backend.IsNotFound(msg.Err) {
			cmd := m.setError("Thread not found. It may have been deleted.")
			return m, tea.Batch(cmd, m.loadThreadsCmd())
		}
		cmd := m.setError("Failed to load thread: " + msg.Err.Error())
		return m, cmd
	}
	if m.conv.IsStreaming() || msg.Thread == nil {
		return m, nil
	}

	t := msg.Thread
	m.conv.Load(t.ID, t.Name, t.Model, t.Messages)
	m.coord.ThreadChanged()
	m.annotation = ""
	for i, s := range m.threads {
		if s.ID == t.ID {
			m.threadCursor = i
			break
		}
	}
	m.focus = focusInput
	m.input.Focus()
	m.logger.Info("thread loaded", "thread", t.ID, "messages", len(t.Messages))

	status := fmt.Sprintf("Loaded thread \"%s\"", m.conv.Title)
	if !m.conv.IsModelConnected() {
		status += ". Connect a model to continue (Ctrl+O)."
	}
	cmd := m.setStatus(status)

	m.refresh()
	m.viewport.GotoBottom()
	return m, cmd
}

func (m Model) handleThreadDeleted(msg threadDeletedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil && !backend.IsNotFound(msg.Err) {
		cmd := m.setError("Failed to delete thread: " + msg.Err.Error())
		return m, cmd
	}

	var cmd tea.Cmd
	if msg.ID == m.conv.ThreadID {
		m.stopStream()
		m.conv.EndStream()
		m.proc = nil
		m.streamID++
		m.streamText = ""
		m.annotation = ""
		m.conv.Reset()
		m.coord.ThreadChanged()
		cmd = m.setStatus(fmt.Sprintf("Deleted thread \"%s\". Started a new thread.", msg.Name))
	} else {
		cmd = m.setStatus(fmt.Sprintf("Deleted thread \"%s\".", msg.Name))
	}
	m.logger.Info("thread deleted", "thread", msg.ID)

	m.refresh()
	return m, tea.Batch(cmd, m.loadThreadsCmd())
}
