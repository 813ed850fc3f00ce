// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/threadchat/internal/backend"
)

// =============================================================================
// BUBBLE TEA MESSAGES
// =============================================================================

// IntervalTickMsg is sent every Interval while the program runs.
type IntervalTickMsg struct {
	Time time.Time
}

// FirstMessageMsg fires FirstMessageDelay after the first message of a new
// thread.
type FirstMessageMsg struct {
	Time time.Time
}

// InactivityMsg fires InactivityDelay after user activity. Gen identifies
// the activity it belongs to.
type InactivityMsg struct {
	Gen  uint64
	Time time.Time
}

// PostExchangeMsg fires PostExchangeDelay after an answer completed.
type PostExchangeMsg struct {
	Time time.Time
}

// SaveResultMsg carries the result of a save back into the update loop.
type SaveResultMsg struct {
	Decision Decision
	Response *backend.SaveThreadResponse
	Err      error
}

// =============================================================================
// COMMANDS
// =============================================================================

// IntervalCmd schedules the next periodic tick.
func (c *Coordinator) IntervalCmd() tea.Cmd {
	return tea.Tick(c.cfg.Interval, func(t time.Time) tea.Msg {
		return IntervalTickMsg{Time: t}
	})
}

// FirstMessageCmd schedules the fast save of a brand-new thread.
func (c *Coordinator) FirstMessageCmd() tea.Cmd {
	return tea.Tick(c.cfg.FirstMessageDelay, func(t time.Time) tea.Msg {
		return FirstMessageMsg{Time: t}
	})
}

// ActivityCmd records user activity and schedules the inactivity timer.
// Earlier timers become stale.
func (c *Coordinator) ActivityCmd() tea.Cmd {
	gen := c.Touch()
	return tea.Tick(c.cfg.InactivityDelay, func(t time.Time) tea.Msg {
		return InactivityMsg{Gen: gen, Time: t}
	})
}

// PostExchangeCmd schedules the save that follows a completed answer.
func (c *Coordinator) PostExchangeCmd() tea.Cmd {
	return tea.Tick(c.cfg.PostExchangeDelay, func(t time.Time) tea.Msg {
		return PostExchangeMsg{Time: t}
	})
}

// SaveCmd performs the save described by d off the update loop. It returns
// nil when d is a skip.
func SaveCmd(saver Saver, d Decision, timeout time.Duration) tea.Cmd {
	if !d.ShouldSave() {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := saver.SaveThread(ctx, d.Request)
		return SaveResultMsg{Decision: d, Response: resp, Err: err}
	}
}

// Update routes the auto-save timer messages and terminal visibility
// changes. It returns handled=false for every other message.
func (c *Coordinator) Update(msg tea.Msg, saver Saver, timeout time.Duration) (cmd tea.Cmd, handled bool) {
	switch msg := msg.(type) {
	case IntervalTickMsg:
		d := c.Request(TriggerInterval, msg.Time)
		return tea.Batch(SaveCmd(saver, d, timeout), c.IntervalCmd()), true

	case FirstMessageMsg:
		return SaveCmd(saver, c.Request(TriggerFirstMessage, msg.Time), timeout), true

	case InactivityMsg:
		return SaveCmd(saver, c.RequestInactivity(msg.Gen, msg.Time), timeout), true

	case PostExchangeMsg:
		return SaveCmd(saver, c.Request(TriggerPostExchange, msg.Time), timeout), true

	case tea.BlurMsg:
		return SaveCmd(saver, c.Request(TriggerVisibility, time.Now()), timeout), true
	}
	return nil, false
}
