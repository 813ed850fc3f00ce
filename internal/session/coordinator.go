// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/threadchat/internal/backend"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"
)

// =============================================================================
// TRIGGERS
// =============================================================================

// Trigger identifies what asked for a save.
type Trigger int

const (
	TriggerInterval Trigger = iota
	TriggerFirstMessage
	TriggerInactivity
	TriggerVisibility
	TriggerUnload
	TriggerExplicit
	TriggerPostExchange
)

// String returns the trigger name used in logs.
func (t Trigger) String() string {
	switch t {
	case TriggerInterval:
		return "interval"
	case TriggerFirstMessage:
		return "first_message"
	case TriggerInactivity:
		return "inactivity"
	case TriggerVisibility:
		return "visibility"
	case TriggerUnload:
		return "unload"
	case TriggerExplicit:
		return "explicit"
	case TriggerPostExchange:
		return "post_exchange"
	default:
		return "unknown"
	}
}

// SkipReason explains why a request did not produce a save.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipDisabled  SkipReason = "auto-save disabled"
	SkipClean     SkipReason = "no unsaved changes"
	SkipEmpty     SkipReason = "transcript is empty"
	SkipUnchanged SkipReason = "unchanged since last save"
	SkipStale     SkipReason = "superseded by newer activity"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the auto-save timings.
type Config struct {
	// Enabled turns the automatic triggers on (default: true)
	Enabled bool

	// Interval between periodic saves (default: 15s)
	Interval time.Duration

	// FirstMessageDelay is the wait before saving a brand-new thread (default: 2s)
	FirstMessageDelay time.Duration

	// InactivityDelay is how long without input before saving (default: 10s)
	InactivityDelay time.Duration

	// PostExchangeDelay is the wait after a completed answer (default: 1s)
	PostExchangeDelay time.Duration

	// ListRefreshInterval throttles thread-list refreshes after saves (default: 60s)
	ListRefreshInterval time.Duration
}

// DefaultConfig returns the default auto-save configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Interval:            15 * time.Second,
		FirstMessageDelay:   2 * time.Second,
		InactivityDelay:     10 * time.Second,
		PostExchangeDelay:   1 * time.Second,
		ListRefreshInterval: 60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.FirstMessageDelay <= 0 {
		c.FirstMessageDelay = def.FirstMessageDelay
	}
	if c.InactivityDelay <= 0 {
		c.InactivityDelay = def.InactivityDelay
	}
	if c.PostExchangeDelay <= 0 {
		c.PostExchangeDelay = def.PostExchangeDelay
	}
	if c.ListRefreshInterval <= 0 {
		c.ListRefreshInterval = def.ListRefreshInterval
	}
	return c
}

// =============================================================================
// DECISIONS AND OUTCOMES
// =============================================================================

// Decision is the result of arbitrating a trigger. When Skip is empty,
// Request holds a deep copy of the state to send.
type Decision struct {
	Trigger Trigger
	Skip    SkipReason
	Request backend.SaveThreadRequest

	snapshot string
	epoch    uint64
}

// ShouldSave reports whether the decision asks for a network write.
func (d Decision) ShouldSave() bool {
	return d.Skip == SkipNone
}

// Outcome is what happened when a save finished.
type Outcome struct {
	Trigger Trigger

	// Saved is true when the backend accepted the save.
	Saved bool

	// ThreadID is the id now in use; Adopted is true when it replaced the
	// sentinel.
	ThreadID string
	Adopted  bool

	// RefreshList asks the caller to reload the thread list.
	RefreshList bool

	// Stale is true when the conversation moved to another thread while
	// the save was in flight; the result was not applied.
	Stale bool

	Err error
}

// Saver persists a thread. *backend.Client satisfies it.
type Saver interface {
	SaveThread(ctx context.Context, req backend.SaveThreadRequest) (*backend.SaveThreadResponse, error)
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator funnels every save trigger into one arbitration routine and
// applies save results to the conversation.
//
// The Coordinator and its Conversation are owned by a single goroutine
// (the Bubble Tea update loop or a Loop) and are not safe for concurrent
// use. Network calls happen elsewhere; their results come back through
// Complete.
type Coordinator struct {
	conv   *model.Conversation
	cfg    Config
	logger *log.Logger

	enabled bool

	// epoch changes when the conversation switches threads, so results of
	// saves started before the switch are ignored.
	epoch uint64

	// activityGen debounces the inactivity timer.
	activityGen uint64

	lastListRefresh time.Time
	lastSave        time.Time
	lastErr         error
}

// New creates a coordinator for conv.
func New(conv *model.Conversation, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		conv:    conv,
		cfg:     cfg,
		logger:  logging.Component("autosave"),
		enabled: cfg.Enabled,
	}
}

// SetLogger replaces the component logger.
func (c *Coordinator) SetLogger(l *log.Logger) {
	c.logger = l
}

// Conversation returns the coordinated conversation.
func (c *Coordinator) Conversation() *model.Conversation {
	return c.conv
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Enabled reports whether automatic triggers may save.
func (c *Coordinator) Enabled() bool {
	return c.enabled
}

// SetEnabled toggles the automatic triggers. Explicit saves always work.
func (c *Coordinator) SetEnabled(enabled bool) {
	c.enabled = enabled
	c.logger.Info("auto-save toggled", "enabled", enabled)
}

// LastError returns the error of the most recent failed save, or nil after
// a successful one.
func (c *Coordinator) LastError() error {
	return c.lastErr
}

// LastSave returns when the last successful save completed.
func (c *Coordinator) LastSave() time.Time {
	return c.lastSave
}

// =============================================================================
// STATE NOTIFICATIONS
// =============================================================================

// Touch records user activity and returns the generation the inactivity
// timer must carry. Only the timer holding the latest generation fires.
func (c *Coordinator) Touch() uint64 {
	c.activityGen++
	return c.activityGen
}

// MessageAppended is called after a message lands in the transcript.
// It reports whether the first-message timer should start, which is the
// case for the first message of a thread that was never saved.
func (c *Coordinator) MessageAppended() bool {
	return c.conv.IsNew() && c.conv.MessageCount() == 1
}

// ThreadChanged must be called after the conversation is cleared, reset or
// loaded. Saves started before the change are then discarded on completion.
func (c *Coordinator) ThreadChanged() {
	c.epoch++
}

// =============================================================================
// ARBITRATION
// =============================================================================

// Request decides whether trigger should produce a save at time now.
// Explicit saves go through RequestExplicit and inactivity timers through
// RequestInactivity.
func (c *Coordinator) Request(trigger Trigger, now time.Time) Decision {
	d := Decision{Trigger: trigger, epoch: c.epoch}

	if !c.enabled && trigger != TriggerExplicit {
		d.Skip = SkipDisabled
		return c.logSkip(d)
	}

	switch trigger {
	case TriggerPostExchange:
		// fires right after an answer was appended; the snapshot check
		// below still filters duplicates
	default:
		if !c.conv.IsDirty() {
			d.Skip = SkipClean
			return c.logSkip(d)
		}
	}

	return c.prepare(d, now, false)
}

// RequestInactivity handles an inactivity timer carrying generation gen.
func (c *Coordinator) RequestInactivity(gen uint64, now time.Time) Decision {
	if gen != c.activityGen {
		return Decision{Trigger: TriggerInactivity, Skip: SkipStale, epoch: c.epoch}
	}
	return c.Request(TriggerInactivity, now)
}

// RequestExplicit handles a save the user asked for under title. It fails
// with a validation error, before touching any state, when the title is
// blank or the transcript is empty. Dirty and snapshot checks are bypassed.
func (c *Coordinator) RequestExplicit(title string, now time.Time) (Decision, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Decision{Trigger: TriggerExplicit}, backend.ErrTitleRequired
	}
	if c.conv.IsEmpty() {
		return Decision{Trigger: TriggerExplicit}, backend.ErrEmptyTranscript
	}

	c.conv.Rename(title)
	return c.prepare(Decision{Trigger: TriggerExplicit, epoch: c.epoch}, now, true), nil
}

// prepare runs the save routine checks and builds the request.
func (c *Coordinator) prepare(d Decision, now time.Time, force bool) Decision {
	if c.conv.IsEmpty() {
		d.Skip = SkipEmpty
		return c.logSkip(d)
	}

	// Threads without a real id always attempt, so the first save happens.
	if !force && !c.conv.IsNew() && c.conv.MatchesSnapshot() {
		d.Skip = SkipUnchanged
		return c.logSkip(d)
	}

	if !c.conv.HasTitle() {
		if title := DeriveTitle(c.conv.Messages); title != "" {
			c.conv.Title = title
		}
	}

	snapshot, err := c.conv.Serialize()
	if err != nil {
		// unreachable for plain strings; keep the save but never match
		snapshot = ""
	}
	d.snapshot = snapshot

	modelName := c.conv.Model
	if modelName == "" {
		modelName = "unknown"
	}
	d.Request = backend.SaveThreadRequest{
		Name:    c.conv.Title,
		Data:    c.conv.CloneMessages(),
		SavedAt: model.FormatTimestamp(now),
		Model:   modelName,
	}
	if !c.conv.IsNew() {
		d.Request.ID = c.conv.ThreadID
	}

	c.logger.Debug("save requested",
		"trigger", d.Trigger,
		"thread", c.conv.ThreadID,
		"messages", len(d.Request.Data))
	return d
}

func (c *Coordinator) logSkip(d Decision) Decision {
	c.logger.Debug("save skipped", "trigger", d.Trigger, "reason", string(d.Skip))
	return d
}

// =============================================================================
// COMPLETION
// =============================================================================

// Complete applies the result of a save started from d. On success the
// sentinel id is replaced, the snapshot updated and the dirty flag cleared
// unless the conversation changed meanwhile. On failure nothing changes and
// the error is reported in the outcome only.
func (c *Coordinator) Complete(d Decision, resp *backend.SaveThreadResponse, err error, now time.Time) Outcome {
	out := Outcome{Trigger: d.Trigger}

	if d.epoch != c.epoch {
		out.Stale = true
		out.Err = err
		c.logger.Debug("save result discarded", "trigger", d.Trigger)
		return out
	}

	if err == nil && (resp == nil || !resp.Success) {
		msg := "save rejected"
		if resp != nil && resp.Message != "" {
			msg = resp.Message
		}
		err = &backend.ClientError{Type: backend.ErrTypeServer, Message: msg}
	}

	if err != nil {
		c.lastErr = err
		out.Err = err
		out.ThreadID = c.conv.ThreadID
		c.logger.Warn("save failed", "trigger", d.Trigger, "thread", c.conv.ThreadID, "err", err)
		return out
	}

	out.Adopted = c.conv.AdoptThreadID(resp.ThreadID)
	out.ThreadID = c.conv.ThreadID
	c.conv.MarkPersisted(d.snapshot)
	c.lastErr = nil
	c.lastSave = now
	out.Saved = true

	if d.Trigger == TriggerExplicit {
		// the confirmation is not part of what was saved
		changed := c.conv.IsDirty()
		c.conv.AddSystemMessage(fmt.Sprintf("Thread saved as \"%s\"", d.Request.Name))
		if !changed {
			c.conv.MarkClean()
		}
		out.RefreshList = true
		c.lastListRefresh = now
	} else if c.lastListRefresh.IsZero() || now.Sub(c.lastListRefresh) >= c.cfg.ListRefreshInterval {
		out.RefreshList = true
		c.lastListRefresh = now
	}

	c.logger.Info("thread saved",
		"trigger", d.Trigger,
		"thread", out.ThreadID,
		"messages", len(d.Request.Data),
		"adopted", out.Adopted)
	return out
}

// Save runs a decision synchronously against saver and completes it. It is
// the path used outside Bubble Tea.
func (c *Coordinator) Save(ctx context.Context, saver Saver, d Decision, now func() time.Time) Outcome {
	if !d.ShouldSave() {
		return Outcome{Trigger: d.Trigger, ThreadID: c.conv.ThreadID}
	}
	resp, err := saver.SaveThread(ctx, d.Request)
	return c.Complete(d, resp, err, now())
}
