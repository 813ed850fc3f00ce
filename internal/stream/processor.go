// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns a chunked model response into display-ready text.
package stream

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// =============================================================================
// MARKERS AND PATTERNS
// =============================================================================

const (
	// OpenMarker starts a thinking section.
	OpenMarker = "<think>"

	// CloseMarker ends a thinking section.
	CloseMarker = "</think>"

	// modelErrorPrefix identifies an error object embedded in the stream.
	modelErrorPrefix = `{"error":`
)

var (
	// blockPattern matches one complete thinking section, non-greedy.
	blockPattern = regexp.MustCompile(`<think>[\s\S]*?</think>`)

	// orphanPattern matches any stray open or close marker.
	orphanPattern = regexp.MustCompile(`</?think\s*>`)

	// blankRunPattern matches a run of blank lines.
	blankRunPattern = regexp.MustCompile(`\n\s*\n+`)

	// partialMarkerPattern matches a trailing prefix of a marker that the
	// next chunk may complete.
	partialMarkerPattern = regexp.MustCompile(`</?(?:t(?:h(?:i(?:n(?:k\s*)?)?)?)?)?$`)
)

// ErrStreamClosed is returned by Fail when the processor already finished.
var ErrStreamClosed = errors.New("stream already finished")

// =============================================================================
// FRAME
// =============================================================================

// Frame is the result of processing one chunk: the full text to show for the
// response so far.
type Frame struct {
	// Text is the cleaned transcript text. It never contains markers or
	// thinking content.
	Text string

	// Thinking is true while the cursor is inside an unterminated section.
	Thinking bool

	// Changed is true when Text differs from the previous frame.
	Changed bool

	// Done is set on the frame returned by Finish or Fail.
	Done bool

	// ModelError carries the message of an error object found in the
	// stream. Only set on the final frame.
	ModelError string

	// Err is the transport error passed to Fail.
	Err error
}

// Display returns Text with terminal control sequences removed.
func (f Frame) Display() string {
	return ansi.Strip(f.Text)
}

// Commit reports whether the final text should be kept as an assistant
// message. Errors and empty responses are not committed.
func (f Frame) Commit() bool {
	return f.Done && f.Err == nil && f.ModelError == "" && strings.TrimSpace(f.Text) != ""
}

// =============================================================================
// PROCESSOR
// =============================================================================

// Processor consumes the chunks of one response in arrival order. A
// Processor is used for a single response and is not safe for concurrent
// use.
type Processor struct {
	received strings.Builder
	decoder  Decoder

	thinking  bool
	displayed string

	finished bool
	final    Frame
}

// NewProcessor creates a processor for one response.
func NewProcessor() *Processor {
	return &Processor{}
}

// Feed appends a text chunk and returns the frame to display.
func (p *Processor) Feed(chunk string) Frame {
	if p.finished {
		return p.final
	}
	p.received.WriteString(chunk)
	return p.step()
}

// FeedBytes decodes raw bytes, holding back an incomplete trailing rune, and
// feeds the decoded text.
func (p *Processor) FeedBytes(chunk []byte) Frame {
	if p.finished {
		return p.final
	}
	return p.Feed(p.decoder.Decode(chunk))
}

// Finish flushes the decoder and runs the full cleanup over everything
// received. Calling Finish again returns the same frame.
func (p *Processor) Finish() Frame {
	if p.finished {
		return p.final
	}
	p.received.WriteString(p.decoder.Flush())

	text := Clean(p.received.String())
	p.final = Frame{
		Text:       text,
		Changed:    text != p.displayed,
		Done:       true,
		ModelError: ExtractModelError(text),
	}
	p.displayed = text
	p.thinking = false
	p.finished = true
	return p.final
}

// Fail ends the response with a transport error. The frame keeps the
// partial cleaned text for display but is never committed.
func (p *Processor) Fail(err error) Frame {
	if p.finished {
		f := p.final
		if f.Err == nil {
			f.Err = ErrStreamClosed
		}
		return f
	}
	if err == nil {
		err = errors.New("stream failed")
	}
	p.received.WriteString(p.decoder.Flush())

	text := Clean(p.received.String())
	p.final = Frame{
		Text:    text,
		Changed: text != p.displayed,
		Done:    true,
		Err:     err,
	}
	p.displayed = text
	p.thinking = false
	p.finished = true
	return p.final
}

// Received returns all raw text received so far.
func (p *Processor) Received() string {
	return p.received.String()
}

// Thinking reports whether the cursor is inside a thinking section.
func (p *Processor) Thinking() bool {
	return p.thinking
}

// Finished reports whether Finish or Fail was called.
func (p *Processor) Finished() bool {
	return p.finished
}

// step recomputes the mode from marker positions and renders.
func (p *Processor) step() Frame {
	raw := p.received.String()
	wasThinking := p.thinking
	p.thinking = inThinking(raw)

	switch {
	case p.thinking:
		// Entering or staying inside a section: keep what is shown.
		return Frame{Text: p.displayed, Thinking: true}

	case wasThinking:
		// Section just closed. The same chunk may start the next marker.
		return p.show(Clean(holdBackPartialMarker(raw)))

	default:
		return p.show(Clean(holdBackPartialMarker(raw)))
	}
}

func (p *Processor) show(text string) Frame {
	changed := text != p.displayed
	p.displayed = text
	return Frame{Text: text, Changed: changed}
}

// =============================================================================
// CLEANUP
// =============================================================================

// inThinking reports whether the last open marker comes after the last
// close marker. A close marker with nothing open is an orphan.
func inThinking(raw string) bool {
	open := strings.LastIndex(raw, OpenMarker)
	if open < 0 {
		return false
	}
	return open > strings.LastIndex(raw, CloseMarker)
}

// holdBackPartialMarker drops a trailing marker prefix such as "<thi".
func holdBackPartialMarker(raw string) string {
	if loc := partialMarkerPattern.FindStringIndex(raw); loc != nil {
		return raw[:loc[0]]
	}
	return raw
}

// Clean removes every complete thinking section, any unterminated section,
// stray markers and redundant blank lines, then trims the result. Clean is
// idempotent.
func Clean(raw string) string {
	text := blockPattern.ReplaceAllString(raw, "")
	if i := strings.Index(text, OpenMarker); i >= 0 {
		text = text[:i]
	}
	for {
		stripped := orphanPattern.ReplaceAllString(text, "")
		if stripped == text {
			break
		}
		text = stripped
	}
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ExtractModelError returns the message of an error object embedded in
// text, or "" when there is none. Text that mentions the prefix but does not
// parse is reported verbatim.
func ExtractModelError(text string) string {
	i := strings.Index(text, modelErrorPrefix)
	if i < 0 {
		return ""
	}

	var obj struct {
		Error any `json:"error"`
	}
	dec := json.NewDecoder(strings.NewReader(text[i:]))
	if err := dec.Decode(&obj); err == nil && obj.Error != nil {
		if s, ok := obj.Error.(string); ok && s != "" {
			return s
		}
		if b, err := json.Marshal(obj.Error); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(text[i:])
}
