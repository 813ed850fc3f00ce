// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"strings"
	"unicode/utf8"
)

// Decoder converts a byte stream into text incrementally. An incomplete
// rune at the end of a chunk is held until the next chunk completes it, so
// the decoded output does not depend on where the stream was split.
// Invalid bytes become U+FFFD, one per byte.
type Decoder struct {
	pending []byte
}

// Decode returns the text for all complete runes seen so far.
func (d *Decoder) Decode(chunk []byte) string {
	data := append(d.pending, chunk...)
	cut := completePrefix(data)

	d.pending = append([]byte(nil), data[cut:]...)
	return decodeBytes(data[:cut])
}

// Flush returns whatever is still held back, replacing it with U+FFFD.
func (d *Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	s := decodeBytes(d.pending)
	d.pending = nil
	return s
}

// Pending returns the number of bytes held back.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// completePrefix returns the length of data without a trailing incomplete
// but possibly valid rune.
func completePrefix(data []byte) int {
	n := len(data)
	for back := 1; back < utf8.UTFMax && back <= n; back++ {
		b := data[n-back]
		if b < utf8.RuneSelf {
			return n
		}
		if utf8.RuneStart(b) {
			if !utf8.FullRune(data[n-back:]) {
				return n - back
			}
			return n
		}
	}
	return n
}

func decodeBytes(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	var sb strings.Builder
	sb.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size <= 1 {
			sb.WriteRune(utf8.RuneError)
			data = data[1:]
			continue
		}
		sb.WriteRune(r)
		data = data[size:]
	}
	return sb.String()
}
