// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"

	"github.com/jeranaias/threadchat/internal/backend"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/session"
	"github.com/jeranaias/threadchat/internal/stream"
	"github.com/jeranaias/threadchat/internal/ui/styles"
)

// =============================================================================
// BACKEND
// =============================================================================

// Backend is the part of the backend API the chat view uses.
// *backend.Client satisfies it.
type Backend interface {
	session.Saver

	CheckModel(ctx context.Context, name string) (*backend.CheckModelResponse, error)
	InstallModel(ctx context.Context, name string) (*backend.InstallModelResponse, error)
	ListSmallModels(ctx context.Context) ([]backend.SmallModel, error)
	ListThreads(ctx context.Context) ([]backend.ThreadSummary, error)
	GetThread(ctx context.Context, id string) (*backend.Thread, error)
	DeleteThread(ctx context.Context, id string) (*backend.DeleteThreadResponse, error)
	SendMessage(ctx context.Context, req backend.GenerateRequest, fn backend.ChunkFunc) error
	Beacon(req backend.SaveThreadRequest) <-chan error
}

// =============================================================================
// CHAT STATE
// =============================================================================

// focus is the pane receiving keys.
type focus int

const (
	focusInput focus = iota
	focusThreads
)

// dialogKind is the modal prompt currently shown.
type dialogKind int

const (
	dialogNone dialogKind = iota
	dialogInstall
	dialogDelete
	dialogSmallModels
)

// dialog holds the state of the open prompt.
type dialog struct {
	kind   dialogKind
	model  string
	id     string
	name   string
	models []backend.SmallModel
	cursor int
}

// Options configures a chat Model.
type Options struct {
	Backend Backend
	Theme   *styles.Theme

	// Model is the initially selected model.
	Model string

	// Generation settings sent with every message.
	Temperature float64
	MaxTokens   int
	StreamSpeed string

	// AutoSave holds the auto-save timings.
	AutoSave session.Config

	// Markdown renders replies with glamour.
	Markdown bool

	// RequestTimeout bounds non-streaming backend calls (default: 30s).
	RequestTimeout time.Duration

	// InstallCheckDelay is the wait before re-checking an installing
	// model (default: 3s).
	InstallCheckDelay time.Duration

	// ExportDir receives /export files (default: current directory).
	ExportDir string

	Logger *log.Logger
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view. It owns the conversation
// and its save coordinator; every mutation happens in Update.
type Model struct {
	opts   Options
	theme  *styles.Theme
	keys   KeyMap
	logger *log.Logger

	// Dimensions
	width  int
	height int

	// Conversation
	conv  *model.Conversation
	coord *session.Coordinator

	// Current response
	proc       *stream.Processor
	streamID   int
	streamText string
	thinking   bool
	annotation string
	streams    *streamControl

	// Thread list
	threads      []backend.ThreadSummary
	threadCursor int
	threadsErr   error

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	rendered map[string]string

	focus    focus
	dialog   dialog
	showHelp bool

	// Status line
	status    string
	statusErr bool
	statusGen int

	quitting bool
	now      func() time.Time
}

// New creates a chat model.
func New(opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(styles.ModeDark)
	}
	if opts.Model == "" {
		opts.Model = model.DefaultModel
	}
	if opts.StreamSpeed == "" {
		opts.StreamSpeed = backend.SpeedMedium
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.InstallCheckDelay <= 0 {
		opts.InstallCheckDelay = 3 * time.Second
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("chat")
	}

	ta := textarea.New()
	ta.Placeholder = "Type a message, or /help for commands..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 16000
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = DefaultKeyMap().Newline
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = opts.Theme.Spinner

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	conv := model.NewConversation(opts.Model)
	coord := session.New(conv, opts.AutoSave)
	coord.SetLogger(logging.Component("autosave"))

	return Model{
		opts:      opts,
		theme:     opts.Theme,
		keys:      DefaultKeyMap(),
		logger:    opts.Logger,
		conv:      conv,
		coord:     coord,
		streams:   &streamControl{},
		viewport:  vp,
		input:     ta,
		spinner:   sp,
		rendered:  make(map[string]string),
		now:       time.Now,
	}
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the periodic save timer and loads the thread list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.coord.IntervalCmd(),
		m.loadThreadsCmd(),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, handled := m.coord.Update(msg, m.opts.Backend, m.opts.RequestTimeout); handled {
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.FocusMsg:
		return m, nil

	case spinner.TickMsg:
		if !m.conv.IsStreaming() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case session.SaveResultMsg:
		return m.handleSaveResult(msg)

	case streamChunkMsg:
		return m.handleStreamChunk(msg)

	case streamEndMsg:
		return m.handleStreamEnd(msg)

	case modelCheckedMsg:
		return m.handleModelChecked(msg)

	case installStartedMsg:
		return m.handleInstallStarted(msg)

	case smallModelsMsg:
		return m.handleSmallModels(msg)

	case threadsLoadedMsg:
		return m.handleThreadsLoaded(msg)

	case threadLoadedMsg:
		return m.handleThreadLoaded(msg)

	case threadDeletedMsg:
		return m.handleThreadDeleted(msg)

	case exportedMsg:
		var cmd tea.Cmd
		if msg.Err != nil {
			cmd = m.setError("Export failed: " + msg.Err.Error())
		} else {
			cmd = m.setStatus("Exported to " + msg.Path)
		}
		return m, cmd

	case beaconDoneMsg:
		if msg.Err != nil {
			m.logger.Warn("exit save failed", "err", msg.Err)
		}
		return m, tea.Quit

	case statusClearMsg:
		if msg.Gen == m.statusGen {
			m.status = ""
			m.statusErr = false
		}
		return m, nil
	}

	return m, nil
}

// =============================================================================
// LAYOUT
// =============================================================================

const (
	headerHeight = 1
	statusHeight = 1
	inputHeight  = 5 // textarea plus border
)

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	chatWidth := m.chatWidth()
	m.viewport.Width = chatWidth
	m.viewport.Height = max(1, m.height-headerHeight-statusHeight-inputHeight)
	m.input.SetWidth(max(10, msg.Width-2))

	m.renderer = newRenderer(m.theme, m.opts.Markdown, chatWidth-4)
	m.rendered = make(map[string]string)
	m.refresh()
	return m, nil
}

// chatWidth is the transcript width left beside the thread list.
func (m Model) chatWidth() int {
	w := m.width
	if sw := m.theme.SidebarWidth(); sw > 0 {
		w -= sw + 2
	}
	return max(20, w)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.dialog.kind != dialogNone {
		return m.handleDialogKey(msg)
	}

	activity := m.coord.ActivityCmd()

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.conv.IsStreaming() {
			m.stopStream()
			return m, activity
		}
		return m.quit()

	case key.Matches(msg, m.keys.Suspend):
		return m, tea.Sequence(m.saveNowCmd(session.TriggerVisibility), tea.Suspend)

	case key.Matches(msg, m.keys.Cancel):
		if m.conv.IsStreaming() {
			m.stopStream()
			return m, activity
		}
		if m.showHelp {
			m.showHelp = false
			m.refresh()
		}
		return m, activity

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Save):
		return m.explicitSave(m.conv.Title)

	case key.Matches(msg, m.keys.NewThread):
		return m.newThread()

	case key.Matches(msg, m.keys.Clear):
		return m.clearChat()

	case key.Matches(msg, m.keys.Connect):
		return m.connect(m.conv.Model)

	case key.Matches(msg, m.keys.ToggleSave):
		return m.toggleAutoSave(!m.coord.Enabled())

	case key.Matches(msg, m.keys.FocusNext):
		if m.focus == focusInput && m.theme.SidebarWidth() > 0 {
			m.focus = focusThreads
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.focus == focusThreads {
		return m.handleThreadKey(msg)
	}

	if key.Matches(msg, m.keys.Submit) {
		text := m.input.Value()
		m.input.Reset()
		next, cmd := m.submit(text)
		return next, tea.Batch(cmd, activity)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, tea.Batch(cmd, activity)
}

func (m Model) handleThreadKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ListUp):
		if m.threadCursor > 0 {
			m.threadCursor--
		}
	case key.Matches(msg, m.keys.ListDown):
		if m.threadCursor < len(m.threads)-1 {
			m.threadCursor++
		}
	case key.Matches(msg, m.keys.Open):
		if t, ok := m.selectedThread(); ok {
			return m.openThread(t.ID)
		}
	case key.Matches(msg, m.keys.Delete):
		if t, ok := m.selectedThread(); ok {
			return m.confirmDelete(t.ID, t.Name)
		}
	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadThreadsCmd()
	}
	return m, nil
}

func (m Model) handleDialogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := m.dialog

	if d.kind == dialogSmallModels {
		switch {
		case key.Matches(msg, m.keys.ListUp):
			if m.dialog.cursor > 0 {
				m.dialog.cursor--
			}
		case key.Matches(msg, m.keys.ListDown):
			if m.dialog.cursor < len(d.models)-1 {
				m.dialog.cursor++
			}
		case msg.String() == "enter":
			m.dialog = dialog{}
			if d.cursor < len(d.models) {
				name := d.models[d.cursor].Name
				m.conv.Model = name
				cmd := m.setStatus("Installing model: " + name)
				return m, tea.Batch(cmd, m.installCmd(name))
			}
		case key.Matches(msg, m.keys.Deny):
			m.dialog = dialog{}
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Confirm):
		m.dialog = dialog{}
		switch d.kind {
		case dialogInstall:
			cmd := m.setStatus("Installing model: " + d.model)
			return m, tea.Batch(cmd, m.installCmd(d.model))
		case dialogDelete:
			cmd := m.setStatus("Deleting thread \"" + d.name + "\"...")
			return m, tea.Batch(cmd, m.deleteCmd(d.id, d.name))
		}
	case key.Matches(msg, m.keys.Deny):
		m.dialog = dialog{}
		if d.kind == dialogInstall {
			cmd := m.setStatus("Installation cancelled. Select a different model or try again.")
			return m, cmd
		}
	}
	return m, nil
}

// =============================================================================
// STATUS LINE
// =============================================================================

const statusDuration = 4 * time.Second

// setStatus shows a transient notice.
func (m *Model) setStatus(text string) tea.Cmd {
	m.status = text
	m.statusErr = false
	m.statusGen++
	gen := m.statusGen
	return tea.Tick(statusDuration, func(time.Time) tea.Msg {
		return statusClearMsg{Gen: gen}
	})
}

// setError shows a transient error notice.
func (m *Model) setError(text string) tea.Cmd {
	cmd := m.setStatus(text)
	m.statusErr = true
	return cmd
}

// =============================================================================
// GETTERS
// =============================================================================

// Conversation returns the conversation owned by the model.
func (m Model) Conversation() *model.Conversation {
	return m.conv
}

// Coordinator returns the save coordinator.
func (m Model) Coordinator() *session.Coordinator {
	return m.coord
}

// Threads returns the thread list as last loaded.
func (m Model) Threads() []backend.ThreadSummary {
	return m.threads
}

// Status returns the current status line.
func (m Model) Status() string {
	return m.status
}

func (m Model) selectedThread() (backend.ThreadSummary, bool) {
	if m.threadCursor < 0 || m.threadCursor >= len(m.threads) {
		return backend.ThreadSummary{}, false
	}
	return m.threads[m.threadCursor], true
}
