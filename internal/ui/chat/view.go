// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/ui/styles"
	"github.com/jeranaias/threadchat/internal/util"
)

// newRenderer builds the markdown renderer for replies. It returns nil when
// markdown is off or glamour cannot start; replies are then shown as text.
func newRenderer(theme *styles.Theme, markdown bool, width int) *glamour.TermRenderer {
	if !markdown {
		return nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme.GlamourStyle()),
		glamour.WithWordWrap(max(20, width)),
	)
	if err != nil {
		return nil
	}
	return r
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat interface.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.quitting {
		return m.theme.Hint.Render("Saving before exit...") + "\n"
	}

	if m.dialog.kind != dialogNone {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.renderDialog())
	}

	body := m.viewport.View()
	if sw := m.theme.SidebarWidth(); sw > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(sw), body)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.theme.InputContainer.Width(max(10, m.width-2)).Render(m.input.View()),
		m.renderStatusBar(),
	)
}

// refresh rebuilds the transcript shown in the viewport.
func (m *Model) refresh() {
	if m.showHelp {
		m.viewport.SetContent(m.renderHelp())
		return
	}

	width := max(20, m.viewport.Width-2)
	var b strings.Builder
	for _, msg := range m.conv.Messages {
		b.WriteString(m.renderMessage(msg, width))
		b.WriteString("\n")
	}

	if m.conv.IsStreaming() {
		b.WriteString(m.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName()))
		b.WriteString(" " + m.spinner.View() + "\n")
		if m.thinking {
			b.WriteString(m.theme.ThinkingText.Render("thinking...") + "\n")
		}
		if m.streamText != "" {
			b.WriteString(m.theme.MessageBody.Width(width).Render(m.streamText) + "\n")
		}
	}

	if m.annotation != "" {
		b.WriteString(m.theme.Hint.Render(m.annotation) + "\n")
	}

	if m.conv.IsEmpty() && !m.conv.IsStreaming() {
		b.WriteString(m.theme.Hint.Render(emptyHint(m.conv)))
	}

	m.viewport.SetContent(b.String())
}

func emptyHint(conv *model.Conversation) string {
	if conv.IsModelConnected() {
		return "Type a message to start."
	}
	return fmt.Sprintf("Press Ctrl+O to connect %s, or /connect <model>.", conv.Model)
}

// =============================================================================
// MESSAGES
// =============================================================================

func (m *Model) renderMessage(msg model.Message, width int) string {
	content := ansi.Strip(msg.Content)

	if msg.IsConnection {
		return m.theme.Connection.Render("-- " + content + " --")
	}

	var label string
	switch {
	case msg.IsError:
		label = m.theme.ErrorLabel.Render("Error")
	case msg.Role == model.RoleUser:
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	case msg.Role == model.RoleAssistant:
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	default:
		label = m.theme.SystemLabel.Render(msg.Role.DisplayName())
	}
	if ts := msg.Time(); !ts.IsZero() {
		label += " " + m.theme.Timestamp.Render(ts.Local().Format("15:04"))
	}

	var body string
	switch {
	case msg.IsError:
		body = m.theme.ErrorBody.Width(width).Render(content)
	case msg.Role == model.RoleSystem:
		body = m.theme.SystemBody.Width(width).Render(content)
	case msg.Role == model.RoleAssistant:
		body = m.renderMarkdown(content, width)
	default:
		body = m.theme.MessageBody.Width(width).Render(content)
	}
	return label + "\n" + body
}

// renderMarkdown renders a reply, caching the result per content.
func (m *Model) renderMarkdown(content string, width int) string {
	if m.renderer == nil {
		return m.theme.MessageBody.Width(width).Render(content)
	}
	if out, ok := m.rendered[content]; ok {
		return out
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return m.theme.MessageBody.Width(width).Render(content)
	}
	out = strings.TrimRight(out, "\n")
	m.rendered[content] = out
	return out
}

// =============================================================================
// CHROME
// =============================================================================

func (m Model) renderHeader() string {
	t := m.theme

	state := t.Saved.Render("saved")
	switch {
	case m.conv.IsNew() && m.conv.IsEmpty():
		state = t.HeaderMeta.Render("new")
	case m.conv.IsDirty():
		state = t.Dirty.Render("unsaved")
	}

	conn := styles.StatusIndicators.Pending
	if m.conv.IsModelConnected() {
		conn = styles.StatusIndicators.Success
	}

	auto := "auto-save off"
	if m.coord.Enabled() {
		auto = "auto-save on"
	}

	meta := t.HeaderMeta.Render(fmt.Sprintf(" %s %s | %s | ", conn, m.conv.Model, auto)) + state
	title := t.HeaderTitle.Render(util.TruncateWidth(m.conv.Title, max(8, m.width/2)))

	return t.Header.Width(m.width).Render(title + meta)
}

func (m Model) renderSidebar(width int) string {
	t := m.theme
	inner := width - 2
	height := m.viewport.Height

	lines := []string{t.SidebarTitle.Render("Threads")}
	switch {
	case m.threadsErr != nil:
		lines = append(lines, t.StatusError.Render(util.TruncateWidth("Backend unreachable", inner)))
	case len(m.threads) == 0:
		lines = append(lines, t.ThreadMeta.Render("No saved threads"))
	}

	for i, th := range m.threads {
		if len(lines)+2 > height {
			break
		}
		name := util.TruncateWidth(util.SingleLine(th.Name), inner-2)
		style := t.ThreadItem
		switch {
		case i == m.threadCursor && m.focus == focusThreads:
			style = t.ThreadSelected
		case th.ID == m.conv.ThreadID:
			style = t.ThreadCurrent
		}
		marker := "  "
		if th.ID == m.conv.ThreadID {
			marker = "* "
		}
		lines = append(lines,
			style.Render(util.PadRight(marker+name, inner)),
			t.ThreadMeta.Render("  "+threadAge(th.CreatedAt)))
	}

	frame := t.SidebarInactive
	if m.focus == focusThreads {
		frame = t.SidebarFocused
	}
	return frame.Width(inner).Height(max(1, height-2)).Render(strings.Join(lines, "\n"))
}

// threadAge renders a created_at value relative to now.
func threadAge(createdAt string) string {
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		return humanize.Time(ts)
	}
	return createdAt
}

func (m Model) renderStatusBar() string {
	t := m.theme
	if m.status != "" {
		style := t.StatusBar
		if m.statusErr {
			style = t.StatusError
		}
		return style.Width(m.width).Render(util.TruncateWidth(m.status, max(1, m.width-2)))
	}

	var parts []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, t.ShortcutKey.Render(h.Key)+" "+t.ShortcutDesc.Render(h.Desc))
	}
	return t.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) renderHelp() string {
	t := m.theme
	var b strings.Builder
	b.WriteString(t.DialogTitle.Render("Keys") + "\n\n")
	for _, group := range m.keys.FullHelp() {
		for _, k := range group {
			h := k.Help()
			b.WriteString(fmt.Sprintf("  %s %s\n",
				t.ShortcutKey.Render(util.PadRight(h.Key, 10)),
				t.ShortcutDesc.Render(h.Desc)))
		}
		b.WriteString("\n")
	}
	b.WriteString(t.DialogTitle.Render("Commands") + "\n\n")
	for _, c := range slashCommands {
		b.WriteString(fmt.Sprintf("  %s %s\n",
			t.ShortcutKey.Render(util.PadRight(c.Usage, 24)),
			t.ShortcutDesc.Render(c.Desc)))
	}
	b.WriteString("\n" + t.Hint.Render("Esc or F1 closes this help."))
	return b.String()
}

// =============================================================================
// DIALOGS
// =============================================================================

func (m Model) renderDialog() string {
	t := m.theme
	d := m.dialog

	var b strings.Builder
	switch d.kind {
	case dialogInstall:
		b.WriteString(t.DialogTitle.Render("Model not installed") + "\n\n")
		b.WriteString(fmt.Sprintf("The model %s is not installed.\nWould you like to install it now?\n\n", d.model))
		b.WriteString(t.Hint.Render("y install   n cancel"))

	case dialogDelete:
		b.WriteString(t.DialogTitle.Render("Delete thread") + "\n\n")
		b.WriteString(fmt.Sprintf("Delete \"%s\"? This cannot be undone.\n\n", util.TruncateWidth(d.name, 40)))
		b.WriteString(t.Hint.Render("y delete   n keep"))

	case dialogSmallModels:
		b.WriteString(t.DialogTitle.Render("Try a smaller model") + "\n\n")
		for i, sm := range d.models {
			line := fmt.Sprintf("%s  %s  %s", sm.Name, sm.Size, sm.Description)
			line = util.TruncateWidth(line, 60)
			if i == d.cursor {
				b.WriteString(t.DialogActive.Render("> "+line) + "\n")
			} else {
				b.WriteString(t.DialogOption.Render("  "+line) + "\n")
			}
		}
		b.WriteString("\n" + t.Hint.Render("up/down choose   Enter install   Esc close"))
	}
	return t.Dialog.Render(b.String())
}
