// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/threadchat/internal/backend"
	"github.com/jeranaias/threadchat/internal/stream"
)

// streamBuffer is how many undelivered chunks a stream may queue.
const streamBuffer = 64

// errStopped marks a response the user stopped.
var errStopped = errors.New("response stopped")

// =============================================================================
// SENDING
// =============================================================================

// submit handles text entered in the input box.
func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	text = strings.TrimSpace(text)
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		return m.handleCommand(text)
	}

	if m.conv.IsStreaming() {
		cmd := m.setStatus(busyNotice)
		return m, cmd
	}
	if !m.conv.IsModelConnected() {
		cmd := m.setStatus("Please connect to a model first (Ctrl+O or /connect).")
		return m, cmd
	}

	m.conv.AddUserMessage(text)
	var cmds []tea.Cmd
	if m.coord.MessageAppended() {
		cmds = append(cmds, m.coord.FirstMessageCmd())
	}

	m.conv.BeginStream()
	m.proc = stream.NewProcessor()
	m.streamID++
	m.streamText = ""
	m.thinking = false
	m.annotation = ""

	req := backend.GenerateRequest{
		Model:       m.conv.Model,
		Prompt:      text,
		Temperature: m.opts.Temperature,
		MaxTokens:   m.opts.MaxTokens,
		StreamSpeed: m.opts.StreamSpeed,
	}
	m.logger.Debug("sending message", "model", req.Model, "chars", len(text))

	cmds = append(cmds, m.startStream(req), m.spinner.Tick)
	m.refresh()
	m.viewport.GotoBottom()
	return m, tea.Batch(cmds...)
}

// startStream runs the request on its own goroutine. Chunks are queued on a
// channel and delivered to Update one at a time, in arrival order.
func (m Model) startStream(req backend.GenerateRequest) tea.Cmd {
	id := m.streamID
	ctx, cancel := context.WithCancel(context.Background())
	m.streams.begin(id, cancel)

	client := m.opts.Backend
	ch := make(chan tea.Msg, streamBuffer)
	done := m.streams.done()

	go func() {
		defer cancel()
		runStream(ctx, client, req, id, ch, done)
	}()

	return waitForStream(ch)
}

// runStream sends req and queues its chunks on ch, then the end message.
// Once done is closed nothing reads ch any more and every send gives up.
func runStream(ctx context.Context, client Backend, req backend.GenerateRequest, id int, ch chan tea.Msg, done <-chan struct{}) {
	defer close(ch)

	err := client.SendMessage(ctx, req, func(chunk []byte) error {
		data := make([]byte, len(chunk))
		copy(data, chunk)
		select {
		case ch <- streamChunkMsg{ID: id, Data: data, next: ch}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return errStopped
		}
	})
	if err != nil && ctx.Err() != nil {
		err = errStopped
	}
	select {
	case ch <- streamEndMsg{ID: id, Err: err}:
	case <-done:
	}
}

// waitForStream delivers the next message of a stream.
func waitForStream(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// stopStream cancels the running response.
func (m *Model) stopStream() {
	m.streams.stop()
}

// =============================================================================
// RECEIVING
// =============================================================================

func (m Model) handleStreamChunk(msg streamChunkMsg) (tea.Model, tea.Cmd) {
	// stale streams are drained until their goroutine exits
	var next tea.Cmd
	if msg.next != nil {
		next = waitForStream(msg.next)
	}
	if msg.ID != m.streamID || m.proc == nil {
		return m, next
	}
	frame := m.proc.FeedBytes(msg.Data)
	m.thinking = frame.Thinking
	if frame.Changed {
		m.streamText = frame.Display()
	}
	atBottom := m.viewport.AtBottom()
	m.refresh()
	if atBottom {
		m.viewport.GotoBottom()
	}
	return m, next
}

func (m Model) handleStreamEnd(msg streamEndMsg) (tea.Model, tea.Cmd) {
	if msg.ID != m.streamID || m.proc == nil {
		return m, nil
	}
	proc := m.proc
	m.proc = nil
	m.conv.EndStream()
	m.streamText = ""
	m.thinking = false
	m.streams.finish(msg.ID)

	var cmds []tea.Cmd

	switch {
	case errors.Is(msg.Err, errStopped):
		frame := proc.Fail(msg.Err)
		m.annotation = "Response stopped."
		m.logger.Info("response stopped", "chars", len(frame.Text))

	case msg.Err != nil:
		// the partial reply stays on screen but is not committed
		if frame := proc.Fail(msg.Err); frame.Text != "" {
			m.annotation = "Partial reply: " + frame.Display()
		}
		m.conv.AddErrorMessage(fmt.Sprintf("Error: %s", msg.Err))
		m.logger.Warn("response failed", "err", msg.Err)
		cmds = append(cmds, m.setError("The model did not answer. Check that the backend and Ollama are running."))

	default:
		frame := proc.Finish()
		switch {
		case frame.ModelError != "":
			m.annotation = "Error: " + frame.ModelError
			m.logger.Warn("model reported an error", "err", frame.ModelError)
		case frame.Commit():
			m.conv.AddAssistantMessage(frame.Text)
			cmds = append(cmds, m.coord.PostExchangeCmd())
		default:
			m.annotation = "The model returned an empty response."
		}
	}

	m.refresh()
	m.viewport.GotoBottom()
	return m, tea.Batch(cmds...)
}
