// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/threadchat/internal/ollama"
)

// ============================================================================
// REQUEST TYPES
// ============================================================================

// GenerateRequest is the body of the three generation endpoints.
type GenerateRequest struct {
	Model            string         `json:"model"`
	Prompt           string         `json:"prompt"`
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	StreamSpeed      string         `json:"stream_speed,omitempty"`
	AdditionalParams map[string]any `json:"additional_params,omitempty"`
}

// upstream converts the request into an Ollama generation request.
func (r GenerateRequest) upstream() ollama.GenerateRequest {
	temp := DefaultTemperature
	if r.Temperature != nil {
		temp = *r.Temperature
	}
	maxTokens := DefaultMaxTokens
	if r.MaxTokens != nil {
		maxTokens = *r.MaxTokens
	}
	return ollama.GenerateRequest{
		Model:   r.Model,
		Prompt:  r.Prompt,
		Stream:  true,
		Options: &ollama.Options{Temperature: &temp, NumPredict: maxTokens},
		Extra:   r.AdditionalParams,
	}
}

// ============================================================================
// PACING
// ============================================================================

// Delays between paced chunks.
const (
	DelaySlow   = 50 * time.Millisecond
	DelayMedium = 20 * time.Millisecond
	DelayFast   = 10 * time.Millisecond

	// rawLineDelay separates lines of the raw NDJSON passthrough
	rawLineDelay = 10 * time.Millisecond

	// pacedChunkSize is the minimum length of a paced chunk, in characters
	pacedChunkSize = 3
)

// SpeedDelay maps a stream_speed name to its chunk delay. Unknown names get
// the medium pace.
func SpeedDelay(speed string) time.Duration {
	switch strings.ToLower(strings.TrimSpace(speed)) {
	case "slow":
		return DelaySlow
	case "fast":
		return DelayFast
	default:
		return DelayMedium
	}
}

var whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)

// Rechunk splits text into pieces of at least minSize characters, cutting
// only at whitespace boundaries. Whitespace runs are kept, so the pieces
// concatenate back to text.
func Rechunk(text string, minSize int) []string {
	var (
		chunks []string
		cur    strings.Builder
		n      int
	)
	add := func(part string) {
		if part == "" {
			return
		}
		cur.WriteString(part)
		n += utf8.RuneCountInString(part)
		if n >= minSize {
			chunks = append(chunks, cur.String())
			cur.Reset()
			n = 0
		}
	}

	last := 0
	for _, loc := range whitespaceRun.FindAllStringIndex(text, -1) {
		add(text[last:loc[0]])
		add(text[loc[0]:loc[1]])
		last = loc[1]
	}
	add(text[last:])

	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// ============================================================================
// HANDLERS
// ============================================================================

// handleSendMessage handles POST /api/send_message: the response text of
// every upstream chunk, unpaced.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	req, body, ok := s.openGeneration(w, r)
	if !ok {
		return
	}
	defer body.Close()

	out := newStreamWriter(w, "text/plain; charset=utf-8")
	err := ollama.NewStreamReader(body).Process(r.Context(), func(c ollama.GenerateChunk) error {
		if c.Error != "" {
			return out.write(errorLine(c.Error))
		}
		if c.Response == "" {
			return nil
		}
		return out.write(c.Response)
	})
	s.logStreamEnd("send_message", req.Model, out.bytes, err)
}

// handleGenerate handles POST /api/generate: upstream text re-chunked into
// small pieces written at the requested pace.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, body, ok := s.openGeneration(w, r)
	if !ok {
		return
	}
	defer body.Close()

	delay := SpeedDelay(req.StreamSpeed)
	out := newStreamWriter(w, "text/plain; charset=utf-8")
	ctx := r.Context()
	err := ollama.NewStreamReader(body).Process(ctx, func(c ollama.GenerateChunk) error {
		if c.Error != "" {
			return out.write(errorLine(c.Error))
		}
		for _, piece := range Rechunk(c.Response, pacedChunkSize) {
			if err := out.write(piece); err != nil {
				return err
			}
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}
		return nil
	})
	s.logStreamEnd("generate", req.Model, out.bytes, err)
}

// handleGenerateRaw handles POST /api/generate_raw: the upstream NDJSON
// lines passed through unchanged.
func (s *Server) handleGenerateRaw(w http.ResponseWriter, r *http.Request) {
	req, body, ok := s.openGeneration(w, r)
	if !ok {
		return
	}
	defer body.Close()

	out := newStreamWriter(w, "application/x-ndjson")
	ctx := r.Context()
	reader := bufio.NewReader(body)

	var err error
	for {
		line, readErr := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			if err = out.write(string(line) + "\n"); err != nil {
				break
			}
			if err = s.sleep(ctx, rawLineDelay); err != nil {
				break
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				err = readErr
			}
			break
		}
	}
	s.logStreamEnd("generate_raw", req.Model, out.bytes, err)
}

// openGeneration decodes the request and opens the upstream stream. When it
// returns false the response has been written.
func (s *Server) openGeneration(w http.ResponseWriter, r *http.Request) (GenerateRequest, io.ReadCloser, bool) {
	var req GenerateRequest
	if !s.decodeJSON(w, r, &req) {
		return req, nil, false
	}
	if strings.TrimSpace(req.Model) == "" {
		s.writeDetail(w, http.StatusUnprocessableEntity, "model is required")
		return req, nil, false
	}

	body, err := s.ollama.OpenGenerate(r.Context(), req.upstream())
	if err != nil {
		if status := ollama.StatusCode(err); status != 0 {
			// upstream status errors are reported in-band with a 200
			s.logger.Warn("UPSTREAM_ERROR", "model", req.Model, "status", status)
			out := newStreamWriter(w, "text/plain; charset=utf-8")
			_ = out.write(errorLine("API Error: " + strconv.Itoa(status)))
			return req, nil, false
		}
		if errors.Is(err, context.Canceled) {
			return req, nil, false
		}
		s.logger.Error("UPSTREAM_UNREACHABLE", "model", req.Model, "err", err)
		s.writeDetail(w, http.StatusServiceUnavailable, msgOllamaUnreachable)
		return req, nil, false
	}

	s.logger.Info("GENERATE", "path", r.URL.Path, "model", req.Model, "prompt_chars", utf8.RuneCountInString(req.Prompt))
	return req, body, true
}

func (s *Server) logStreamEnd(op, modelName string, written int, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("STREAM_ABORTED", "op", op, "model", modelName, "bytes", written, "err", err)
		return
	}
	s.logger.Debug("STREAM_DONE", "op", op, "model", modelName, "bytes", written)
}

// errorLine renders the in-band error line clients look for.
func errorLine(msg string) string {
	quoted, _ := json.Marshal(msg)
	return `{"error": ` + string(quoted) + "}\n"
}

// ============================================================================
// STREAM WRITER
// ============================================================================

// streamWriter writes and flushes each piece as soon as it is produced.
type streamWriter struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	bytes int
}

// newStreamWriter commits a 200 response with the given content type.
func newStreamWriter(w http.ResponseWriter, contentType string) *streamWriter {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &streamWriter{w: w, rc: http.NewResponseController(w)}
}

func (sw *streamWriter) write(s string) error {
	n, err := io.WriteString(sw.w, s)
	sw.bytes += n
	if err != nil {
		return err
	}
	if err := sw.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
