// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(p *Processor, chunks ...string) []Frame {
	frames := make([]Frame, 0, len(chunks))
	for _, c := range chunks {
		frames = append(frames, p.Feed(c))
	}
	return frames
}

// =============================================================================
// THINKING SUPPRESSION
// =============================================================================

func TestProcessor_HelloScenario(t *testing.T) {
	p := NewProcessor()
	frames := feedAll(p, "Hello<think>secret", " reasoning", "</think> world")

	require.Len(t, frames, 3)
	assert.True(t, frames[0].Thinking)
	assert.Empty(t, frames[0].Text)
	assert.True(t, frames[1].Thinking)
	assert.Empty(t, frames[1].Text)
	assert.False(t, frames[2].Thinking)
	assert.Equal(t, "Hello world", frames[2].Text)

	final := p.Finish()
	assert.Equal(t, "Hello world", final.Text)
	assert.True(t, final.Commit())
}

func TestProcessor_NeverRendersThinkingContent(t *testing.T) {
	inputs := []string{
		"Hello<think>secret reasoning</think> world",
		"<think>plan A</think>Answer one.<think>plan B</think>Answer two.",
		"Intro\n\n<think>\nhidden\n\n\nstuff\n</think>\n\n\nBody",
		"Before <think>never closed secret",
	}

	for _, input := range inputs {
		t.Run(input[:10], func(t *testing.T) {
			p := NewProcessor()
			// one character at a time exercises every split position
			for _, r := range input {
				f := p.Feed(string(r))
				assertNoThinking(t, f.Text)
			}
			assertNoThinking(t, p.Finish().Text)
		})
	}
}

func assertNoThinking(t *testing.T, text string) {
	t.Helper()
	for _, secret := range []string{"secret", "plan A", "plan B", "hidden", "stuff", "think", "<th", "</"} {
		assert.NotContains(t, text, secret)
	}
}

func TestProcessor_SecondBlockAfterClosedOne(t *testing.T) {
	p := NewProcessor()
	feedAll(p, "<think>a</think>First.")
	f := p.Feed(" <think>second secret")
	assert.True(t, f.Thinking)
	assert.Equal(t, "First.", f.Text)

	f = p.Feed("</think> Done.")
	assert.False(t, f.Thinking)
	assert.Equal(t, "First.  Done.", f.Text)
}

func TestProcessor_OrphanCloseIsNotTransition(t *testing.T) {
	p := NewProcessor()
	f := p.Feed("stray </think> tag")
	assert.False(t, f.Thinking)
	assert.Equal(t, "stray  tag", f.Text)

	f = p.Feed(" and more")
	assert.False(t, f.Thinking)
	assert.Equal(t, "stray  tag and more", f.Text)
}

func TestProcessor_PartialMarkerHeldBack(t *testing.T) {
	p := NewProcessor()
	f := p.Feed("Answer <thi")
	assert.Equal(t, "Answer", f.Text)
	assert.False(t, f.Thinking)

	f = p.Feed("nk>hidden")
	assert.True(t, f.Thinking)
	assert.Equal(t, "Answer", f.Text)
}

func TestProcessor_PartialOpenAfterClose(t *testing.T) {
	p := NewProcessor()
	chunks := []string{"<think>x", "</think>Hello <thi", "nk>secret", "</think> world"}
	var last Frame
	for _, c := range chunks {
		last = p.Feed(c)
		assert.NotContains(t, last.Text, "<")
		assert.NotContains(t, last.Text, "secret")
	}
	assert.False(t, last.Thinking)
	assert.True(t, strings.HasPrefix(last.Text, "Hello"))
	assert.True(t, strings.HasSuffix(last.Text, "world"))

	final := p.Finish()
	assert.NotContains(t, final.Text, "thi")
}

func TestProcessor_PartialPrefixThatIsNotMarker(t *testing.T) {
	p := NewProcessor()
	f := p.Feed("a <")
	assert.Equal(t, "a", f.Text)

	f = p.Feed(" b")
	assert.Equal(t, "a < b", f.Text)
	assert.True(t, f.Changed)
}

func TestProcessor_EmptyChunks(t *testing.T) {
	p := NewProcessor()
	p.Feed("text")
	f := p.Feed("")
	assert.Equal(t, "text", f.Text)
	assert.False(t, f.Changed)
}

// =============================================================================
// NO-MARKER INPUT
// =============================================================================

func TestProcessor_PlainTextIsNormalized(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"single", []string{"hello"}, "hello"},
		{"leading and trailing space", []string{"  hi ", "there  \n"}, "hi there"},
		{"blank runs", []string{"a\n\n\n", "\n  \nb"}, "a\n\nb"},
		{"control sequences", []string{"\x1b[31mred\x1b[0m"}, "red"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProcessor()
			var last Frame
			for _, c := range tc.chunks {
				last = p.Feed(c)
			}
			assert.Equal(t, tc.want, last.Display())
			assert.Equal(t, tc.want, p.Finish().Display())
		})
	}
}

// =============================================================================
// SPLIT INVARIANCE AND IDEMPOTENCE
// =============================================================================

func TestProcessor_SplitInvariance(t *testing.T) {
	input := []byte("Grüße 🌍 <think>überlegen…\n\n\n</think>\n\n\nAntwort: ∑ = 42 ✓")

	whole := NewProcessor()
	whole.FeedBytes(input)
	want := whole.Finish().Text

	for cut := 0; cut <= len(input); cut++ {
		p := NewProcessor()
		p.FeedBytes(input[:cut])
		p.FeedBytes(input[cut:])
		got := p.Finish().Text
		if got != want {
			t.Fatalf("split at %d: got %q, want %q", cut, got, want)
		}
	}

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		p := NewProcessor()
		rest := input
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			p.FeedBytes(rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, want, p.Finish().Text, "trial %d", trial)
	}
}

func TestClean_Idempotent(t *testing.T) {
	inputs := []string{
		"Hello<think>x</think> world",
		"  \n\n\n a \n \n\n b <think> open",
		"<thi</think>nk>",
		"</think></think>text<think>",
		"",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
		assert.NotContains(t, once, "<think")
	}
}

func TestProcessor_FinishIsIdempotent(t *testing.T) {
	p := NewProcessor()
	p.Feed("answer")
	first := p.Finish()
	second := p.Finish()
	assert.Equal(t, first, second)

	// input after finish is ignored
	assert.Equal(t, first, p.Feed("more"))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestProcessor_Fail(t *testing.T) {
	p := NewProcessor()
	p.Feed("partial <think>hidden")
	boom := errors.New("connection reset")

	f := p.Fail(boom)
	assert.True(t, f.Done)
	assert.Equal(t, "partial", f.Text)
	assert.ErrorIs(t, f.Err, boom)
	assert.False(t, f.Commit())
}

func TestProcessor_FailAfterFinish(t *testing.T) {
	p := NewProcessor()
	p.Feed("ok")
	p.Finish()
	f := p.Fail(errors.New("late"))
	assert.ErrorIs(t, f.Err, ErrStreamClosed)
}

func TestProcessor_EmbeddedModelError(t *testing.T) {
	p := NewProcessor()
	p.Feed(`{"error": "API Error: 404"}` + "\n")
	f := p.Finish()

	assert.Equal(t, "API Error: 404", f.ModelError)
	assert.False(t, f.Commit())
}

func TestProcessor_EmptyResponseNotCommitted(t *testing.T) {
	p := NewProcessor()
	p.Feed("<think>only thoughts</think>\n\n")
	f := p.Finish()
	assert.Empty(t, f.Text)
	assert.False(t, f.Commit())
}

func TestExtractModelError(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"no error here", ""},
		{`{"error": "Failed to decode response"}`, "Failed to decode response"},
		{`text then {"error": "late"}`, "late"},
		{`{"error": {"code": 5}}`, `{"code":5}`},
		{`{"error": broken`, `{"error": broken`},
	}
	for _, tc := range tests {
		if got := ExtractModelError(tc.in); got != tc.want {
			t.Errorf("ExtractModelError(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFrame_DisplayStripsEscapes(t *testing.T) {
	f := Frame{Text: "\x1b]0;title\x07plain\x1b[1m bold"}
	assert.False(t, strings.Contains(f.Display(), "\x1b"))
	assert.Contains(t, f.Display(), "plain")
}
