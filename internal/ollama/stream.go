// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// MalformedChunk is the error text delivered for a line that is not JSON.
const MalformedChunk = "Failed to decode response"

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
type StreamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	chunkCount  int
	model       string
	final       *GenerateChunk
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Process reads the stream and calls fn for each chunk until the final
// chunk, the end of the body, an error from fn or cancellation of ctx.
// A line that is not JSON is delivered as a chunk whose Error is
// MalformedChunk and reading continues.
func (s *StreamReader) Process(ctx context.Context, fn ChunkFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := s.readChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
		}
		if chunk == nil {
			continue
		}

		if err := fn(*chunk); err != nil {
			return err
		}
		if chunk.Done {
			return nil
		}
	}
}

// readChunk reads and parses a single line from the stream. Blank lines
// yield (nil, nil).
func (s *StreamReader) readChunk() (*GenerateChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, err
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var chunk GenerateChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		return &GenerateChunk{Error: MalformedChunk}, nil
	}

	if chunk.Model != "" {
		s.model = chunk.Model
	}
	if chunk.Response != "" {
		s.accumulator.WriteString(chunk.Response)
		s.chunkCount++
	}
	if chunk.Done {
		final := chunk
		s.final = &final
	}
	return &chunk, nil
}

// Accumulated returns all response text received so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// ChunkCount returns the number of non-empty chunks received.
func (s *StreamReader) ChunkCount() int {
	return s.chunkCount
}

// Model returns the model name reported by the stream.
func (s *StreamReader) Model() string {
	return s.model
}

// Final returns the done chunk with statistics, or nil before it arrives.
func (s *StreamReader) Final() *GenerateChunk {
	return s.final
}
