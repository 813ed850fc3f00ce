// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/threadchat/internal/backend"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"
)

// fakeSaver records requests and answers with a fixed id.
type fakeSaver struct {
	mu       sync.Mutex
	requests []backend.SaveThreadRequest
	id       string
	err      error
}

func (f *fakeSaver) SaveThread(ctx context.Context, req backend.SaveThreadRequest) (*backend.SaveThreadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	id := req.ID
	if id == "" {
		id = f.id
	}
	return &backend.SaveThreadResponse{Success: true, ThreadID: id}, nil
}

func (f *fakeSaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newCoordinator() (*Coordinator, *model.Conversation) {
	conv := model.NewConversation(model.DefaultModel)
	c := New(conv, DefaultConfig())
	c.SetLogger(logging.Discard())
	return c, conv
}

// =============================================================================
// CONFIG
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Enabled {
		t.Error("Enabled should default to true")
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("Interval = %v, want 15s", cfg.Interval)
	}
	if cfg.FirstMessageDelay != 2*time.Second {
		t.Errorf("FirstMessageDelay = %v, want 2s", cfg.FirstMessageDelay)
	}
	if cfg.InactivityDelay != 10*time.Second {
		t.Errorf("InactivityDelay = %v, want 10s", cfg.InactivityDelay)
	}
	if cfg.ListRefreshInterval != time.Minute {
		t.Errorf("ListRefreshInterval = %v, want 1m", cfg.ListRefreshInterval)
	}
}

func TestNew_FillsZeroDurations(t *testing.T) {
	c := New(model.NewConversation(""), Config{Enabled: true})
	if c.Config().Interval != 15*time.Second || c.Config().PostExchangeDelay != time.Second {
		t.Errorf("zero durations not defaulted: %+v", c.Config())
	}
}

// =============================================================================
// SAVE ROUTINE
// =============================================================================

func TestRequest_EmptyTranscriptSkipped(t *testing.T) {
	c, conv := newCoordinator()
	conv.MarkDirty()

	d := c.Request(TriggerInterval, t0)
	if d.ShouldSave() || d.Skip != SkipEmpty {
		t.Errorf("Skip = %q, want %q", d.Skip, SkipEmpty)
	}
}

func TestRequest_CleanSkipped(t *testing.T) {
	c, conv := newCoordinator()
	conv.AddUserMessage("hi")
	snap, _ := conv.Serialize()
	conv.MarkPersisted(snap)

	for _, trig := range []Trigger{TriggerInterval, TriggerVisibility, TriggerUnload, TriggerFirstMessage, TriggerInactivity} {
		if d := c.Request(trig, t0); d.Skip != SkipClean {
			t.Errorf("%v: Skip = %q, want %q", trig, d.Skip, SkipClean)
		}
	}
}

func TestRequest_DisabledSkipsAutomaticTriggers(t *testing.T) {
	c, conv := newCoordinator()
	conv.AddUserMessage("hi")
	c.SetEnabled(false)

	if d := c.Request(TriggerInterval, t0); d.Skip != SkipDisabled {
		t.Errorf("Skip = %q, want %q", d.Skip, SkipDisabled)
	}
	if _, err := c.RequestExplicit("Named", t0); err != nil {
		t.Errorf("explicit save should work while disabled: %v", err)
	}
}

func TestFirstSaveOmitsIDAndAdoptsAssignedID(t *testing.T) {
	c, conv := newCoordinator()
	saver := &fakeSaver{id: "42"}

	conv.AddUserMessage("hello there")
	if !c.MessageAppended() {
		t.Fatal("first message of a new thread should start the fast-path timer")
	}

	d := c.Request(TriggerFirstMessage, t0)
	if !d.ShouldSave() {
		t.Fatalf("first save skipped: %q", d.Skip)
	}
	if d.Request.ID != "" {
		t.Errorf("request ID = %q, want omitted", d.Request.ID)
	}

	out := c.Save(context.Background(), saver, d, clock(t0))
	if !out.Saved || !out.Adopted || out.ThreadID != "42" {
		t.Fatalf("outcome = %+v", out)
	}
	if conv.ThreadID != "42" {
		t.Errorf("ThreadID = %q, want 42", conv.ThreadID)
	}
	if conv.IsDirty() {
		t.Error("conversation should be clean after save")
	}

	conv.AddAssistantMessage("hi")
	d = c.Request(TriggerInterval, t0.Add(15*time.Second))
	if d.Request.ID != "42" {
		t.Errorf("later request ID = %q, want 42", d.Request.ID)
	}
}

func TestComplete_OverlappingFirstSavesKeepFirstID(t *testing.T) {
	c, conv := newCoordinator()
	conv.AddUserMessage("hello there")

	first := c.Request(TriggerFirstMessage, t0)
	second := c.Request(TriggerInterval, t0)
	if !first.ShouldSave() || !second.ShouldSave() {
		t.Fatalf("both overlapping saves should go out: %q / %q", first.Skip, second.Skip)
	}

	out := c.Complete(first, &backend.SaveThreadResponse{Success: true, ThreadID: "100"}, nil, t0)
	if !out.Adopted {
		t.Fatalf("first result should be adopted: %+v", out)
	}
	out = c.Complete(second, &backend.SaveThreadResponse{Success: true, ThreadID: "101"}, nil, t0)
	if !out.Saved || out.Adopted {
		t.Errorf("second result outcome = %+v", out)
	}
	if conv.ThreadID != "100" {
		t.Errorf("ThreadID = %q, want first assigned id 100", conv.ThreadID)
	}
}

func TestFirstSaveAlwaysFiresForSentinelThread(t *testing.T) {
	c, conv := newCoordinator()
	// a loaded transcript without an id matches its snapshot and is clean
	conv.Load("", "Draft", "", []model.Message{model.NewUserMessage("hello")})
	if !conv.IsNew() || conv.IsDirty() {
		t.Fatal("expected a clean sentinel thread")
	}

	d := c.Request(TriggerPostExchange, t0)
	if !d.ShouldSave() {
		t.Errorf("sentinel thread should always attempt, got skip %q", d.Skip)
	}
}

func TestSaveDeduplicatedForRealID(t *testing.T) {
	c, conv := newCoordinator()
	saver := &fakeSaver{}
	conv.Load("7", "Seven", "", []model.Message{model.NewUserMessage("hi")})
	conv.AddAssistantMessage("hello")

	out := c.Save(context.Background(), saver, c.Request(TriggerPostExchange, t0), clock(t0))
	if !out.Saved {
		t.Fatalf("first save failed: %+v", out)
	}

	// five seconds later, nothing changed
	for _, trig := range []Trigger{TriggerPostExchange, TriggerInterval} {
		d := c.Request(trig, t0.Add(5*time.Second))
		c.Save(context.Background(), saver, d, clock(t0.Add(5*time.Second)))
	}

	if saver.count() != 1 {
		t.Errorf("network writes = %d, want 1", saver.count())
	}
}

func TestFailureKeepsDirty(t *testing.T) {
	c, conv := newCoordinator()
	saver := &fakeSaver{err: &backend.ClientError{Type: backend.ErrTypeTransport, Message: "down"}}
	conv.AddUserMessage("hello")

	out := c.Save(context.Background(), saver, c.Request(TriggerInterval, t0), clock(t0))
	if out.Saved || out.Err == nil {
		t.Fatalf("outcome = %+v, want failure", out)
	}
	if !conv.IsDirty() {
		t.Error("dirty flag must stay set after failure")
	}
	if conv.ThreadID != model.NewThreadID {
		t.Errorf("ThreadID = %q, want sentinel", conv.ThreadID)
	}
	if c.LastError() == nil {
		t.Error("LastError() = nil after failure")
	}
}

func TestUnsuccessfulResponseIsFailure(t *testing.T) {
	c, conv := newCoordinator()
	conv.AddUserMessage("hello")
	d := c.Request(TriggerInterval, t0)

	out := c.Complete(d, &backend.SaveThreadResponse{Success: false, Message: "nope"}, nil, t0)
	if out.Err == nil || out.Err.Error() != "nope" {
		t.Errorf("Err = %v, want nope", out.Err)
	}
	if !conv.IsDirty() {
		t.Error("dirty flag must stay set")
	}
}

func TestEditDuringSaveStaysDirty(t *testing.T) {
	c, conv := newCoordinator()
	conv.AddUserMessage("hello")
	d := c.Request(TriggerInterval, t0)

	conv.AddAssistantMessage("arrived while saving")
	c.Complete(d, &backend.SaveThreadResponse{Success: true, ThreadID: "9"}, nil, t0)

	if !conv.IsDirty() {
		t.Error("an edit made while saving must keep the conversation dirty")
	}
}

func TestStaleResultAfterThreadChange(t *testing.T) {
	c, conv := newCoordinator()
	conv.AddUserMessage("old thread")
	d := c.Request(TriggerInterval, t0)

	conv.Reset()
	c.ThreadChanged()

	out := c.Complete(d, &backend.SaveThreadResponse{Success: true, ThreadID: "99"}, nil, t0)
	if !out.Stale {
		t.Error("result should be stale")
	}
	if conv.ThreadID != model.NewThreadID {
		t.Errorf("ThreadID = %q, new thread must not adopt the old id", conv.ThreadID)
	}
}

func TestRequestCarriesDeepCopy(t *testing.T) {
	c, conv := newCoordinator()
	conv.AddUserMessage("hello")
	d := c.Request(TriggerInterval, t0)

	conv.Messages[0].Content = "mutated"
	if d.Request.Data[0].Content != "hello" {
		t.Error("request data must not share memory with the conversation")
	}
	if d.Request.SavedAt != "2025-03-01T12:00:00.000Z" {
		t.Errorf("SavedAt = %q", d.Request.SavedAt)
	}
	if d.Request.Model != model.DefaultModel {
		t.Errorf("Model = %q", d.Request.Model)
	}
}

func TestUnknownModelName(t *testing.T) {
	conv := model.NewConversation("")
	c := New(conv, DefaultConfig())
	c.SetLogger(logging.Discard())
	conv.AddUserMessage("x")

	if d := c.Request(TriggerInterval, t0); d.Request.Model != "unknown" {
		t.Errorf("Model = %q, want unknown", d.Request.Model)
	}
}

// =============================================================================
// TITLES
// =============================================================================

func TestRequest_DerivesTitle(t *testing.T) {
	c, conv := newCoordinator()
	conv.AddSystemMessage("Connected to x model.")
	conv.AddUserMessage("How do I bake sourdough bread at home please")

	d := c.Request(TriggerInterval, t0)
	if d.Request.Name != "How do I bake sourdough" {
		t.Errorf("Name = %q", d.Request.Name)
	}
	if conv.Title != d.Request.Name {
		t.Errorf("conversation title = %q, want derived title", conv.Title)
	}
}

func TestRequest_KeepsExplicitTitle(t *testing.T) {
	c, conv := newCoordinator()
	conv.Rename("Mine")
	conv.AddUserMessage("something else entirely")

	if d := c.Request(TriggerInterval, t0); d.Request.Name != "Mine" {
		t.Errorf("Name = %q, want Mine", d.Request.Name)
	}
}

func TestTitleFromText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"one two three four five six", "one two three four five"},
		{"  padded  ", "padded"},
		{"supercalifragilistic expialidocious words", "supercalifragilistic expial..."},
		{"a\tb c", "a\tb c"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := TitleFromText(tc.in); got != tc.want {
			t.Errorf("TitleFromText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDeriveTitle_NoUserMessage(t *testing.T) {
	if got := DeriveTitle([]model.Message{model.NewSystemMessage("x")}); got != "" {
		t.Errorf("DeriveTitle() = %q, want empty", got)
	}
}

// =============================================================================
// EXPLICIT SAVE
// =============================================================================

func TestRequestExplicit_Validation(t *testing.T) {
	c, conv := newCoordinator()

	if _, err := c.RequestExplicit("Name", t0); !errors.Is(err, backend.ErrEmptyTranscript) {
		t.Errorf("err = %v, want ErrEmptyTranscript", err)
	}

	conv.AddUserMessage("hi")
	if _, err := c.RequestExplicit("   ", t0); !errors.Is(err, backend.ErrTitleRequired) {
		t.Errorf("err = %v, want ErrTitleRequired", err)
	}
	if conv.Title != model.UntitledTitle {
		t.Error("validation failure must not change state")
	}
}

func TestRequestExplicit_BypassesChecks(t *testing.T) {
	c, conv := newCoordinator()
	saver := &fakeSaver{}
	conv.Load("5", "Five", "", []model.Message{model.NewUserMessage("hi")})

	d, err := c.RequestExplicit("Renamed", t0)
	if err != nil {
		t.Fatalf("RequestExplicit() error = %v", err)
	}
	if !d.ShouldSave() || d.Request.Name != "Renamed" || d.Request.ID != "5" {
		t.Fatalf("decision = %+v", d)
	}

	out := c.Save(context.Background(), saver, d, clock(t0))
	if !out.RefreshList {
		t.Error("explicit save should refresh the list")
	}
	last, _ := conv.LastMessage()
	if last.Content != `Thread saved as "Renamed"` {
		t.Errorf("confirmation = %q", last.Content)
	}
}

func TestExplicitSave_LeavesConversationClean(t *testing.T) {
	c, conv := newCoordinator()
	saver := &fakeSaver{}
	conv.Load("5", "Five", "", []model.Message{model.NewUserMessage("hi")})

	d, err := c.RequestExplicit("Renamed", t0)
	if err != nil {
		t.Fatalf("RequestExplicit() error = %v", err)
	}
	if out := c.Save(context.Background(), saver, d, clock(t0)); !out.Saved {
		t.Fatalf("outcome = %+v", out)
	}

	if conv.IsDirty() {
		t.Error("conversation should be clean after a successful explicit save")
	}
	if next := c.Request(TriggerInterval, t0.Add(15*time.Second)); next.Skip != SkipClean {
		t.Errorf("interval after explicit save: Skip = %q, want %q", next.Skip, SkipClean)
	}
	if saver.count() != 1 {
		t.Errorf("saves = %d, want 1", saver.count())
	}
}

func TestExplicitSave_EditInFlightStaysDirty(t *testing.T) {
	c, conv := newCoordinator()
	saver := &fakeSaver{}
	conv.Load("5", "Five", "", []model.Message{model.NewUserMessage("hi")})

	d, err := c.RequestExplicit("Renamed", t0)
	if err != nil {
		t.Fatalf("RequestExplicit() error = %v", err)
	}
	conv.AddUserMessage("typed while saving")
	c.Save(context.Background(), saver, d, clock(t0))

	if !conv.IsDirty() {
		t.Error("an edit made during the save must stay dirty")
	}
}

// =============================================================================
// INACTIVITY AND LIST REFRESH
// =============================================================================

func TestRequestInactivity_OnlyLatestGeneration(t *testing.T) {
	c, conv := newCoordinator()
	conv.AddUserMessage("hi")

	first := c.Touch()
	second := c.Touch()

	if d := c.RequestInactivity(first, t0); d.Skip != SkipStale {
		t.Errorf("old generation: Skip = %q, want stale", d.Skip)
	}
	if d := c.RequestInactivity(second, t0); !d.ShouldSave() {
		t.Errorf("latest generation: Skip = %q", d.Skip)
	}
}

func TestListRefreshThrottled(t *testing.T) {
	c, conv := newCoordinator()
	saver := &fakeSaver{id: "1"}

	conv.AddUserMessage("a")
	out := c.Save(context.Background(), saver, c.Request(TriggerInterval, t0), clock(t0))
	if !out.RefreshList {
		t.Error("first save should refresh")
	}

	conv.AddUserMessage("b")
	out = c.Save(context.Background(), saver, c.Request(TriggerInterval, t0.Add(30*time.Second)), clock(t0.Add(30*time.Second)))
	if out.RefreshList {
		t.Error("second save within a minute should not refresh")
	}

	conv.AddUserMessage("c")
	out = c.Save(context.Background(), saver, c.Request(TriggerInterval, t0.Add(61*time.Second)), clock(t0.Add(61*time.Second)))
	if !out.RefreshList {
		t.Error("save after a minute should refresh")
	}
}
