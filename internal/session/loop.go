// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"time"

	"github.com/jeranaias/threadchat/internal/backend"
)

// Event tells the Loop which timers an operation should arm.
type Event int

const (
	EventNone     Event = 0
	EventActivity Event = 1 << iota
	EventAppended
	EventExchange
)

// Beaconer sends a save that must not hold up shutdown.
type Beaconer interface {
	Beacon(req backend.SaveThreadRequest) <-chan error
}

type op struct {
	fn   func(c *Coordinator) Event
	done chan struct{}
}

type saveResult struct {
	decision Decision
	resp     *backend.SaveThreadResponse
	err      error
}

// Loop runs a Coordinator and its timers on one goroutine for callers that
// are not Bubble Tea programs, such as the line-mode REPL. All access to the
// conversation goes through Do.
type Loop struct {
	coord   *Coordinator
	saver   Saver
	timeout time.Duration

	ops     chan op
	results chan saveResult
	done    chan struct{}

	// OnOutcome is called on the loop goroutine after each automatic save.
	OnOutcome func(Outcome)

	now func() time.Time
}

// NewLoop creates a loop. Saves time out after timeout.
func NewLoop(coord *Coordinator, saver Saver, timeout time.Duration) *Loop {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Loop{
		coord:   coord,
		saver:   saver,
		timeout: timeout,
		ops:     make(chan op),
		results: make(chan saveResult, 4),
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Do runs fn on the loop goroutine and waits for it. It returns false when
// the loop has already stopped.
func (l *Loop) Do(fn func(c *Coordinator) Event) bool {
	o := op{fn: fn, done: make(chan struct{})}
	select {
	case l.ops <- o:
	case <-l.done:
		return false
	}
	select {
	case <-o.done:
		return true
	case <-l.done:
		return false
	}
}

// SaveExplicit performs a user-requested save under title and waits for
// the result.
func (l *Loop) SaveExplicit(ctx context.Context, title string) (Outcome, error) {
	var (
		d   Decision
		err error
	)
	if !l.Do(func(c *Coordinator) Event {
		d, err = c.RequestExplicit(title, l.now())
		return EventActivity
	}) {
		return Outcome{}, context.Canceled
	}
	if err != nil {
		return Outcome{Trigger: TriggerExplicit}, err
	}
	return l.finish(ctx, d)
}

// SaveNow runs the save routine for trigger and waits for the result. A
// skipped save returns an empty Outcome for trigger.
func (l *Loop) SaveNow(ctx context.Context, trigger Trigger) (Outcome, error) {
	var d Decision
	if !l.Do(func(c *Coordinator) Event {
		d = c.Request(trigger, l.now())
		return EventNone
	}) {
		return Outcome{}, context.Canceled
	}
	if !d.ShouldSave() {
		return Outcome{Trigger: trigger}, nil
	}
	return l.finish(ctx, d)
}

func (l *Loop) finish(ctx context.Context, d Decision) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	resp, saveErr := l.saver.SaveThread(ctx, d.Request)

	var out Outcome
	l.Do(func(c *Coordinator) Event {
		out = c.Complete(d, resp, saveErr, l.now())
		return EventNone
	})
	return out, out.Err
}

// Run serves operations and fires triggers until ctx is cancelled, then
// sends a final unload save.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	cfg := l.coord.Config()
	interval := time.NewTicker(cfg.Interval)
	defer interval.Stop()

	var (
		firstTimer, idleTimer, exchangeTimer *time.Timer
		firstC, idleC, exchangeC             <-chan time.Time
	)
	arm := func(t **time.Timer, c *<-chan time.Time, d time.Duration) {
		if *t == nil {
			*t = time.NewTimer(d)
		} else {
			(*t).Stop()
			(*t).Reset(d)
		}
		*c = (*t).C
	}
	defer func() {
		for _, t := range []*time.Timer{firstTimer, idleTimer, exchangeTimer} {
			if t != nil {
				t.Stop()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			l.unload()
			return

		case o := <-l.ops:
			ev := o.fn(l.coord)
			if ev&EventActivity != 0 {
				arm(&idleTimer, &idleC, cfg.InactivityDelay)
			}
			if ev&EventAppended != 0 && l.coord.MessageAppended() {
				arm(&firstTimer, &firstC, cfg.FirstMessageDelay)
			}
			if ev&EventExchange != 0 {
				arm(&exchangeTimer, &exchangeC, cfg.PostExchangeDelay)
			}
			close(o.done)

		case r := <-l.results:
			out := l.coord.Complete(r.decision, r.resp, r.err, l.now())
			if l.OnOutcome != nil {
				l.OnOutcome(out)
			}

		case <-interval.C:
			l.start(ctx, l.coord.Request(TriggerInterval, l.now()))

		case <-firstC:
			firstC = nil
			l.start(ctx, l.coord.Request(TriggerFirstMessage, l.now()))

		case <-idleC:
			idleC = nil
			l.start(ctx, l.coord.Request(TriggerInactivity, l.now()))

		case <-exchangeC:
			exchangeC = nil
			l.start(ctx, l.coord.Request(TriggerPostExchange, l.now()))
		}
	}
}

// start runs a save in the background; its result re-enters the loop.
func (l *Loop) start(ctx context.Context, d Decision) {
	if !d.ShouldSave() {
		return
	}
	go func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		resp, err := l.saver.SaveThread(sctx, d.Request)
		select {
		case l.results <- saveResult{decision: d, resp: resp, err: err}:
		case <-l.done:
		}
	}()
}

// unload sends the final save as a beacon when the saver supports it.
func (l *Loop) unload() {
	d := l.coord.Request(TriggerUnload, l.now())
	if !d.ShouldSave() {
		return
	}
	if b, ok := l.saver.(Beaconer); ok {
		if err := <-b.Beacon(d.Request); err != nil {
			l.coord.logger.Warn("unload save failed", "err", err)
		}
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := l.saver.SaveThread(ctx, d.Request)
	l.coord.Complete(d, resp, err, l.now())
}
