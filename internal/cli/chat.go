// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat for threadchat.
//
// Command: chat
// Short:   Chat in the terminal without the full-screen UI
//
// Examples:
//   threadchat chat                        Chat with the configured model
//   threadchat chat --model qwen2.5:0.5b   Use a specific model
//   echo "hi" | threadchat chat --connect  Scripted use
//
// Interactive commands (during chat):
//   /connect [model]    Check and connect a model
//   /save [title]       Save the thread
//   /threads            List saved threads
//   /load <id>          Open a saved thread
//   /quit               Exit chat (the thread is saved first)
//   Ctrl+C              Stop the current response
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/peterh/liner"

	"github.com/jeranaias/threadchat/internal/backend"
	"github.com/jeranaias/threadchat/internal/config"
	"github.com/jeranaias/threadchat/internal/export"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/session"
	"github.com/jeranaias/threadchat/internal/storage"
	"github.com/jeranaias/threadchat/internal/stream"
	"github.com/jeranaias/threadchat/internal/ui/chat"
	"github.com/jeranaias/threadchat/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for the chat prompt.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor whose history lives in historyFile.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (c *ChatCLI) Confirm(question string) bool {
	answer, err := c.line.Prompt(question + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// SaveHistory writes the history file with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// errStopped marks a response stopped with Ctrl+C.
var errStopped = errors.New("response stopped")

// ChatOptions configures a ChatSession.
type ChatOptions struct {
	Backend chat.Backend
	Config  *config.Config

	// Model overrides the configured model.
	Model string

	// Connect checks and connects the model when the chat starts.
	Connect bool

	// Out receives everything the session prints (default: stdout).
	Out io.Writer

	// Confirm answers yes/no questions. Nil answers no.
	Confirm func(question string) bool

	// InstallCheckDelay and InstallChecks control how a model being
	// installed is polled (defaults: 3s, 20 checks).
	InstallCheckDelay time.Duration
	InstallChecks     int

	// ExportDir receives /export files (default: current directory).
	ExportDir string

	Logger *log.Logger
}

// ChatSession is one line-mode chat. The conversation is owned by a
// session.Loop; every read or write of it goes through loop.Do.
type ChatSession struct {
	opts    ChatOptions
	cfg     *config.Config
	client  chat.Backend
	loop    *session.Loop
	logger  *log.Logger
	timeout time.Duration

	outMu sync.Mutex
	out   io.Writer

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	stopLoop context.CancelFunc
}

// NewChatSession creates a session. Start must be called before Handle.
func NewChatSession(opts ChatOptions) *ChatSession {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Confirm == nil {
		opts.Confirm = func(string) bool { return false }
	}
	if opts.InstallCheckDelay <= 0 {
		opts.InstallCheckDelay = 3 * time.Second
	}
	if opts.InstallChecks <= 0 {
		opts.InstallChecks = 20
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("chat")
	}

	name := opts.Model
	if name == "" {
		name = opts.Config.Client.Model
	}
	if name == "" {
		name = model.DefaultModel
	}

	timeout := time.Duration(opts.Config.Client.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	conv := model.NewConversation(name)
	coord := session.New(conv, opts.Config.SessionConfig())

	s := &ChatSession{
		opts:    opts,
		cfg:     opts.Config,
		client:  opts.Backend,
		logger:  opts.Logger,
		timeout: timeout,
		out:     opts.Out,
	}
	s.loop = session.NewLoop(coord, opts.Backend, timeout)
	s.loop.OnOutcome = s.reportOutcome
	return s
}

// Start runs the save loop until Close.
func (s *ChatSession) Start(ctx context.Context) {
	ctx, s.stopLoop = context.WithCancel(ctx)
	go s.loop.Run(ctx)
}

// Close stops the current response, sends the final save and waits for it.
func (s *ChatSession) Close() {
	s.Interrupt()
	if s.stopLoop != nil {
		s.stopLoop()
		<-s.loop.Done()
	}
}

// Interrupt stops the current response. It reports whether one was running.
func (s *ChatSession) Interrupt() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

func (s *ChatSession) setCancel(cancel context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
}

func (s *ChatSession) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// view runs fn against the conversation without arming any timer.
func (s *ChatSession) view(fn func(conv *model.Conversation)) {
	s.loop.Do(func(c *session.Coordinator) session.Event {
		fn(c.Conversation())
		return session.EventNone
	})
}

// reportOutcome runs on the loop goroutine after automatic saves.
func (s *ChatSession) reportOutcome(out session.Outcome) {
	switch {
	case out.Err != nil && !out.Stale:
		s.logger.Warn("auto-save failed", "trigger", out.Trigger, "err", out.Err)
		s.printf("\n%s\n", WarningStyle.Render("Auto-save failed. Your changes are kept and will be retried."))
	case out.Saved:
		s.logger.Debug("auto-saved", "trigger", out.Trigger, "thread", out.ThreadID)
	}
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// RunChat runs the interactive line-mode chat until the user quits.
func RunChat(ctx context.Context, opts ChatOptions) error {
	historyFile := filepath.Join(os.TempDir(), "threadchat_history")
	if dir, err := config.ConfigDir(); err == nil {
		historyFile = filepath.Join(dir, "chat_history")
	}
	input := NewChatCLI(historyFile)
	defer input.Close()
	opts.Confirm = input.Confirm

	s := NewChatSession(opts)
	s.Start(ctx)
	defer s.Close()

	// Ctrl+C while a response streams stops it
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if s.Interrupt() {
				s.printf("\n%s\n", WarningStyle.Render("[Stopped]"))
			}
		}
	}()

	s.PrintWelcome()
	if opts.Connect {
		if err := s.connect(ctx, ""); err != nil {
			s.outMu.Lock()
			DisplayError(s.out, err)
			s.outMu.Unlock()
		}
	}

	for {
		line, err := input.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or end of input
			s.printf("\n")
			break
		}
		quit, err := s.Handle(ctx, line)
		if err != nil {
			s.outMu.Lock()
			DisplayError(s.out, err)
			s.outMu.Unlock()
		}
		if quit {
			break
		}
	}

	s.printf("%s\n", DimStyle.Render("Saving thread..."))
	return nil
}

// PrintWelcome shows the banner and the connect hint.
func (s *ChatSession) PrintWelcome() {
	var name string
	s.view(func(conv *model.Conversation) { name = conv.Model })

	s.printf("%s\n", welcomeStyle.Render("threadchat"))
	s.printf("%s\n", DimStyle.Render(fmt.Sprintf("Backend %s. Type /connect to connect %s, /help for commands.",
		s.backendURL(), name)))
	s.printf("\n")
}

func (s *ChatSession) backendURL() string {
	if b, ok := s.client.(interface{ BaseURL() string }); ok {
		return b.BaseURL()
	}
	return s.cfg.Client.BackendURL
}

// Handle processes one line of input. It reports whether the user asked
// to quit.
func (s *ChatSession) Handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false, nil
	case strings.HasPrefix(line, "/"):
		return s.handleSlashCommand(ctx, line)
	case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
		return true, nil
	}
	return false, s.send(ctx, line)
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// send appends text as a user message and streams the answer.
func (s *ChatSession) send(ctx context.Context, text string) error {
	var (
		req    backend.GenerateRequest
		notice string
	)
	s.loop.Do(func(c *session.Coordinator) session.Event {
		conv := c.Conversation()
		switch {
		case !conv.IsModelConnected():
			notice = fmt.Sprintf("Please connect to a model first (/connect %s).", conv.Model)
			return session.EventNone
		case !conv.BeginStream():
			notice = "Wait for the current response to finish."
			return session.EventNone
		}
		conv.AddUserMessage(text)
		req = s.cfg.GenerateRequest(conv.Model, text)
		return session.EventActivity | session.EventAppended
	})
	if notice != "" {
		s.printf("%s\n", WarningStyle.Render(notice))
		return nil
	}

	sctx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	s.printf("\n%s\n", assistantLabelStyle.Render(model.RoleAssistant.DisplayName()))

	proc := stream.NewProcessor()
	w := &frameWriter{s: s}
	err := s.client.SendMessage(sctx, req, func(chunk []byte) error {
		w.write(proc.FeedBytes(chunk))
		return nil
	})
	if err != nil && sctx.Err() != nil && ctx.Err() == nil {
		err = errStopped
	}

	switch {
	case errors.Is(err, errStopped):
		proc.Fail(err)
		w.end()
		s.printf("%s\n\n", DimStyle.Render("Response stopped."))
		s.loop.Do(func(c *session.Coordinator) session.Event {
			c.Conversation().EndStream()
			return session.EventActivity
		})
		return nil

	case err != nil:
		proc.Fail(err)
		w.end()
		s.loop.Do(func(c *session.Coordinator) session.Event {
			conv := c.Conversation()
			conv.EndStream()
			conv.AddErrorMessage(fmt.Sprintf("Error: %s", err))
			return session.EventActivity
		})
		s.logger.Warn("response failed", "err", err)
		return fmt.Errorf("the model did not answer: %w", err)
	}

	frame := proc.Finish()
	w.write(frame)
	w.end()

	commit := frame.Commit()
	s.loop.Do(func(c *session.Coordinator) session.Event {
		conv := c.Conversation()
		conv.EndStream()
		if !commit {
			return session.EventActivity
		}
		conv.AddAssistantMessage(frame.Text)
		return session.EventActivity | session.EventExchange
	})

	switch {
	case frame.ModelError != "":
		s.printf("%s\n\n", ErrorStyle.Render("Error: "+frame.ModelError))
	case !commit:
		s.printf("%s\n\n", DimStyle.Render("The model returned an empty response."))
	default:
		s.printf("\n")
	}
	return nil
}

// frameWriter prints the visible text of a response as it grows.
type frameWriter struct {
	s        *ChatSession
	printed  string
	thinking bool
}

func (w *frameWriter) write(f stream.Frame) {
	if f.Thinking && !w.thinking && w.printed == "" {
		w.thinking = true
		w.s.printf("%s\n", DimStyle.Render("(thinking...)"))
	}
	text := f.Display()
	if text == "" || text == w.printed {
		return
	}
	if strings.HasPrefix(text, w.printed) {
		w.s.printf("%s", text[len(w.printed):])
	} else {
		// earlier text was withdrawn; start a fresh line
		w.s.printf("\n%s", text)
	}
	w.printed = text
}

func (w *frameWriter) end() {
	if w.printed != "" && !strings.HasSuffix(w.printed, "\n") {
		w.s.printf("\n")
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs a /command. It reports whether to exit.
func (s *ChatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch name {
	case "connect", "c", "model", "m":
		if (name == "model" || name == "m") && arg == "" {
			var current string
			s.view(func(conv *model.Conversation) { current = conv.Model })
			s.printf("Current model: %s\n", commandStyle.Render(current))
			return false, nil
		}
		return false, s.connect(ctx, arg)

	case "save", "s":
		return false, s.save(ctx, arg)

	case "rename":
		if arg == "" {
			return false, backend.ErrTitleRequired
		}
		var title string
		s.loop.Do(func(c *session.Coordinator) session.Event {
			c.Conversation().Rename(arg)
			title = c.Conversation().Title
			return session.EventActivity
		})
		s.printf("Renamed to %q\n", title)
		return false, nil

	case "new", "n":
		return false, s.newThread(ctx)

	case "clear":
		return false, s.clear()

	case "threads", "list":
		return false, s.listThreads(ctx)

	case "load", "open":
		if arg == "" {
			return false, NewValidationError("thread id", "", "required", "/load 1700000000")
		}
		return false, s.loadThread(ctx, arg)

	case "delete", "del":
		return false, s.deleteThread(ctx, arg)

	case "autosave":
		return false, s.autoSave(arg)

	case "export":
		return false, s.export(arg)

	case "history":
		s.printHistory()
		return false, nil

	case "copy":
		return false, s.copyLastReply()

	case "small":
		return false, s.printSmallModels(ctx)

	case "help", "h", "?":
		s.printHelp()
		return false, nil

	case "quit", "exit", "q":
		return true, nil
	}

	return false, NewValidationError("command", "/"+name, "unknown command", "/help")
}

// =============================================================================
// MODEL CONNECTION
// =============================================================================

func (s *ChatSession) connect(ctx context.Context, name string) error {
	var busy bool
	s.view(func(conv *model.Conversation) {
		if conv.IsStreaming() {
			busy = true
			return
		}
		if name == "" {
			name = conv.Model
		}
		if name != conv.Model {
			conv.SetModelConnected(false)
			conv.Model = name
		}
	})
	if busy {
		s.printf("%s\n", WarningStyle.Render("Wait for the current response to finish."))
		return nil
	}

	s.printf("%s\n", DimStyle.Render("Checking model "+name+"..."))
	resp, err := s.checkModel(ctx, name)
	if err != nil {
		return fmt.Errorf("could not check model: %w", err)
	}
	if resp.Exists {
		s.connected(name, resp.Warning)
		return nil
	}
	if resp.Error != "" {
		return fmt.Errorf("could not check model: %s", resp.Error)
	}

	if !s.opts.Confirm(fmt.Sprintf("The model %s is not installed. Would you like to install it now?", name)) {
		s.printf("%s\n", DimStyle.Render("Not installed. Try /small for lighter models."))
		return nil
	}
	return s.install(ctx, name)
}

func (s *ChatSession) checkModel(ctx context.Context, name string) (*backend.CheckModelResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.client.CheckModel(ctx, name)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &backend.CheckModelResponse{}
	}
	return resp, nil
}

// connected records a successful check. A result for a model that is no
// longer selected is dropped.
func (s *ChatSession) connected(name, warning string) {
	var ok bool
	s.loop.Do(func(c *session.Coordinator) session.Event {
		conv := c.Conversation()
		if conv.Model != name {
			return session.EventNone
		}
		ok = true
		if warning != "" {
			conv.AddSystemMessage(warning)
		}
		conv.AddConnectionMessage(name)
		return session.EventActivity | session.EventAppended
	})
	if !ok {
		return
	}
	if warning != "" {
		s.printf("%s\n", WarningStyle.Render(warning))
	}
	s.logger.Info("model connected", "model", name)
	s.printf("%s\n", SuccessStyle.Render("-- Connected to "+name+" model. --"))
}

// install starts an install and polls until the model shows up.
func (s *ChatSession) install(ctx context.Context, name string) error {
	ictx, cancel := context.WithTimeout(ctx, s.timeout)
	resp, err := s.client.InstallModel(ictx, name)
	cancel()
	if err == nil && (resp == nil || !resp.Success) {
		detail := "install rejected"
		if resp != nil && resp.Message != "" {
			detail = resp.Message
		}
		err = errors.New(detail)
	}
	if err != nil {
		s.logger.Warn("install failed", "model", name, "err", err)
		s.printf("%s\n", ErrorStyle.Render(fmt.Sprintf("Failed to install %s: %s", name, err)))
		return s.printSmallModels(ctx)
	}

	s.printf("Installing %s. This can take a few minutes.\n", name)
	for i := 0; i < s.opts.InstallChecks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.InstallCheckDelay):
		}
		check, err := s.checkModel(ctx, name)
		if err != nil {
			return fmt.Errorf("could not check model: %w", err)
		}
		if check.Exists {
			s.connected(name, check.Warning)
			return nil
		}
		s.printf("%s", DimStyle.Render("."))
	}
	s.printf("\n%s is still installing. Try /connect %s again in a moment.\n", name, name)
	return nil
}

func (s *ChatSession) printSmallModels(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	models, err := s.client.ListSmallModels(ctx)
	if err != nil {
		return fmt.Errorf("could not list small models: %w", err)
	}

	var shown int
	for _, sm := range models {
		if sm.Installed {
			continue
		}
		if shown == 0 {
			s.printf("%s\n", SectionStyle.Render("Smaller models you can install:"))
		}
		shown++
		s.printf("  %s %s %s\n",
			commandStyle.Render(util.PadRight(sm.Name, 22)),
			DimStyle.Render(util.PadRight(sm.Size, 8)),
			sm.Description)
	}
	if shown == 0 {
		s.printf("Every suggested small model is already installed.\n")
		return nil
	}
	s.printf("%s\n", DimStyle.Render("Use /connect <name> to install one."))
	return nil
}

// =============================================================================
// THREADS
// =============================================================================

func (s *ChatSession) save(ctx context.Context, title string) error {
	if title == "" {
		s.view(func(conv *model.Conversation) { title = conv.Title })
	}
	out, err := s.loop.SaveExplicit(ctx, title)
	if err != nil {
		if errors.Is(err, backend.ErrEmptyTranscript) || errors.Is(err, backend.ErrTitleRequired) {
			return err
		}
		return fmt.Errorf("failed to save thread: %w", err)
	}
	if out.Stale {
		return nil
	}
	s.printf("%s\n", SuccessStyle.Render(fmt.Sprintf("Thread saved (id %s).", out.ThreadID)))
	return nil
}

// flush saves the current thread before it is replaced.
func (s *ChatSession) flush(ctx context.Context) {
	if _, err := s.loop.SaveNow(ctx, session.TriggerVisibility); err != nil {
		s.logger.Warn("save before switching failed", "err", err)
		s.printf("%s\n", WarningStyle.Render("Could not save the current thread: "+err.Error()))
	}
}

func (s *ChatSession) newThread(ctx context.Context) error {
	if s.streaming() {
		s.printf("%s\n", WarningStyle.Render("Wait for the current response to finish."))
		return nil
	}
	s.flush(ctx)
	s.loop.Do(func(c *session.Coordinator) session.Event {
		c.Conversation().Reset()
		c.ThreadChanged()
		return session.EventNone
	})
	s.printf("Started a new thread. Use /connect to connect a model.\n")
	return nil
}

func (s *ChatSession) clear() error {
	if s.streaming() {
		s.printf("%s\n", WarningStyle.Render("Wait for the current response to finish."))
		return nil
	}
	s.loop.Do(func(c *session.Coordinator) session.Event {
		c.Conversation().Clear()
		c.ThreadChanged()
		return session.EventNone
	})
	s.printf("Chat cleared. Use /connect to continue.\n")
	return nil
}

func (s *ChatSession) streaming() bool {
	var busy bool
	s.view(func(conv *model.Conversation) { busy = conv.IsStreaming() })
	return busy
}

func (s *ChatSession) listThreads(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	threads, err := s.client.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("could not list threads: %w", err)
	}
	if len(threads) == 0 {
		s.printf("No saved threads.\n")
		return nil
	}

	var current string
	s.view(func(conv *model.Conversation) { current = conv.ThreadID })

	width := GetTerminalWidth()
	for _, t := range threads {
		marker := "  "
		if t.ID == current {
			marker = "* "
		}
		name := util.TruncateWidth(util.SingleLine(t.Name), max(10, width-36))
		s.printf("%s%s %s %s\n", marker,
			commandStyle.Render(util.PadRight(t.ID, 12)),
			util.PadRight(name, max(10, width-36)),
			DimStyle.Render(threadAge(t.CreatedAt)))
	}
	return nil
}

func (s *ChatSession) loadThread(ctx context.Context, id string) error {
	if s.streaming() {
		s.printf("%s\n", WarningStyle.Render("Wait for the current response to finish."))
		return nil
	}
	s.flush(ctx)

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	t, err := s.client.GetThread(gctx, id)
	if err != nil {
		if backend.IsNotFound(err) {
			return NewNotFoundError("thread", id)
		}
		return fmt.Errorf("failed to load thread: %w", err)
	}

	s.loop.Do(func(c *session.Coordinator) session.Event {
		c.Conversation().Load(t.ID, t.Name, t.Model, t.Messages)
		c.ThreadChanged()
		return session.EventNone
	})
	s.printf("%s\n", SuccessStyle.Render(fmt.Sprintf("Loaded thread %q.", t.Name)))
	s.printHistory()
	s.printf("%s\n", DimStyle.Render("Use /connect to continue this thread."))
	return nil
}

func (s *ChatSession) deleteThread(ctx context.Context, id string) error {
	var current, title string
	var isNew bool
	s.view(func(conv *model.Conversation) {
		current, title, isNew = conv.ThreadID, conv.Title, conv.IsNew()
	})
	if id == "" {
		if isNew {
			s.printf("This thread has not been saved yet.\n")
			return nil
		}
		id = current
	}
	name := id
	if id == current {
		name = title
		if s.streaming() {
			s.printf("%s\n", WarningStyle.Render("Wait for the current response to finish."))
			return nil
		}
	}
	if !s.opts.Confirm(fmt.Sprintf("Delete %q? This cannot be undone.", name)) {
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.client.DeleteThread(dctx, id); err != nil && !backend.IsNotFound(err) {
		return fmt.Errorf("failed to delete thread: %w", err)
	}

	if id != current {
		s.printf("Deleted thread %q.\n", name)
		return nil
	}
	s.loop.Do(func(c *session.Coordinator) session.Event {
		c.Conversation().Reset()
		c.ThreadChanged()
		return session.EventNone
	})
	s.printf("Deleted thread %q. Started a new thread.\n", name)
	return nil
}

func (s *ChatSession) autoSave(arg string) error {
	var on bool
	switch strings.ToLower(arg) {
	case "":
		s.loop.Do(func(c *session.Coordinator) session.Event {
			on = !c.Enabled()
			c.SetEnabled(on)
			return session.EventNone
		})
	case "on", "true", "1":
		on = true
		s.loop.Do(func(c *session.Coordinator) session.Event { c.SetEnabled(true); return session.EventNone })
	case "off", "false", "0":
		s.loop.Do(func(c *session.Coordinator) session.Event { c.SetEnabled(false); return session.EventNone })
	default:
		return NewValidationError("autosave", arg, "expected on or off", "/autosave off")
	}
	state := "off"
	if on {
		state = "on"
	}
	s.printf("Auto-save %s\n", state)
	return nil
}

func (s *ChatSession) export(arg string) error {
	format := export.FormatMarkdown
	if arg != "" {
		f, err := export.ParseFormat(arg)
		if err != nil {
			return NewValidationError("format", arg, err.Error(), "/export json")
		}
		format = f
	}

	var (
		empty bool
		t     *storage.Thread
	)
	s.view(func(conv *model.Conversation) {
		empty = conv.IsEmpty()
		t = export.FromConversation(conv)
	})
	if empty {
		s.printf("Nothing to export yet.\n")
		return nil
	}

	opts := export.DefaultOptions()
	opts.OutputDir = s.opts.ExportDir
	exporter, err := export.New(format, opts)
	if err != nil {
		return err
	}
	path, err := export.ExportToFile(t, exporter, opts)
	if err != nil {
		return err
	}
	s.printf("%s\n", SuccessStyle.Render("Exported to "+path))
	return nil
}

func (s *ChatSession) copyLastReply() error {
	var (
		reply model.Message
		ok    bool
	)
	s.view(func(conv *model.Conversation) { reply, ok = conv.LastAssistantMessage() })
	if !ok {
		s.printf("No reply to copy yet.\n")
		return nil
	}
	if err := clipboard.WriteAll(reply.Content); err != nil {
		return fmt.Errorf("clipboard unavailable: %w", err)
	}
	s.printf("Copied the last reply.\n")
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *ChatSession) printHistory() {
	var messages []model.Message
	s.view(func(conv *model.Conversation) { messages = conv.CloneMessages() })
	if len(messages) == 0 {
		s.printf("%s\n", DimStyle.Render("No messages yet."))
		return
	}

	width := GetTerminalWidth()
	for _, m := range messages {
		if m.IsConnection {
			s.printf("%s\n", DimStyle.Render("-- "+m.Content+" --"))
			continue
		}
		label := m.Role.DisplayName()
		switch {
		case m.IsError:
			label = ErrorStyle.Render("Error")
		case m.Role == model.RoleUser:
			label = userLabelStyle.Render(label)
		case m.Role == model.RoleAssistant:
			label = assistantLabelStyle.Render(label)
		default:
			label = DimStyle.Render(label)
		}
		s.printf("%s\n%s\n", label, WrapIndented(m.Content, width, 2))
	}
}

func (s *ChatSession) printHelp() {
	s.printf("%s\n", SectionStyle.Render("Commands"))
	for _, c := range chat.SlashCommands() {
		s.printf("  %s %s\n", commandStyle.Render(util.PadRight(c.Usage, 24)), c.Desc)
	}
	s.printf("  %s %s\n", commandStyle.Render(util.PadRight("/history", 24)), "Show the transcript")
	s.printf("%s\n", DimStyle.Render("Ctrl+C stops a response. Ctrl+D exits."))
}
