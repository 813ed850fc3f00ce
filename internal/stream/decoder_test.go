// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "testing"

func TestDecoder_HoldsIncompleteRunes(t *testing.T) {
	euro := []byte("€") // e2 82 ac

	var d Decoder
	if got := d.Decode(euro[:1]); got != "" {
		t.Errorf("Decode(first byte) = %q, want empty", got)
	}
	if got := d.Decode(euro[1:2]); got != "" {
		t.Errorf("Decode(second byte) = %q, want empty", got)
	}
	if d.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", d.Pending())
	}
	if got := d.Decode(euro[2:]); got != "€" {
		t.Errorf("Decode(last byte) = %q, want €", got)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", d.Pending())
	}
}

func TestDecoder_InvalidBytes(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"lone continuation", []byte{0x80, 'a'}, "�a"},
		{"truncated then ascii", []byte{0xe2, 0x82, 'A'}, "��A"},
		{"ascii", []byte("plain"), "plain"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var whole Decoder
			want := whole.Decode(tc.in) + whole.Flush()
			if want != tc.want {
				t.Fatalf("whole decode = %q, want %q", want, tc.want)
			}
			for cut := 0; cut <= len(tc.in); cut++ {
				var d Decoder
				got := d.Decode(tc.in[:cut]) + d.Decode(tc.in[cut:]) + d.Flush()
				if got != tc.want {
					t.Errorf("split at %d = %q, want %q", cut, got, tc.want)
				}
			}
		})
	}
}

func TestDecoder_FlushIncompleteTail(t *testing.T) {
	var d Decoder
	d.Decode([]byte{'x', 0xf0, 0x9f})
	if got := d.Flush(); got != "��" {
		t.Errorf("Flush() = %q, want two replacement runes", got)
	}
	if got := d.Flush(); got != "" {
		t.Errorf("second Flush() = %q, want empty", got)
	}
}
