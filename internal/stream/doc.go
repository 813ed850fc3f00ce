// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns a chunked model response into display-ready text.
//
// Reasoning models wrap their private deliberation in <think>...</think>
// sections. The Processor suppresses those sections while the response is
// still arriving, so the user only ever sees the answer.
//
// # Key Types
//
//   - Processor: consumes chunks in order and returns a Frame per chunk
//   - Frame: the cleaned text so far plus thinking/done/error flags
//   - Decoder: incremental UTF-8 decoding that holds back split runes
//
// # Usage
//
//	p := stream.NewProcessor()
//	for chunk := range chunks {
//	    frame := p.FeedBytes(chunk)
//	    if frame.Changed {
//	        render(frame.Display())
//	    }
//	}
//	final := p.Finish()
//	if final.Commit() {
//	    conv.AddAssistantMessage(final.Text)
//	}
//
// # Guarantees
//
// Marker tokens and the content of an unterminated section are never
// returned, including a marker split across chunks. The final text depends
// only on the bytes received, not on how they were chunked.
package stream
