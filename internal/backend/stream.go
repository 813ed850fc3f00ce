// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Streaming endpoints.
const (
	PathSendMessage = "/api/send_message"
	PathGenerate    = "/api/generate"
	PathGenerateRaw = "/api/generate_raw"
)

// chunkBufferSize is the read size used for response streams.
const chunkBufferSize = 4096

// ChunkFunc receives raw response bytes in arrival order. The slice is only
// valid for the duration of the call. Returning an error stops the stream.
type ChunkFunc func(chunk []byte) error

// SendMessage streams the model's answer to prompt as plain text chunks.
func (c *Client) SendMessage(ctx context.Context, req GenerateRequest, fn ChunkFunc) error {
	return c.Stream(ctx, PathSendMessage, req, fn)
}

// Stream posts req to one of the streaming endpoints and hands every chunk
// of the response body to fn. Validation happens before any network call.
func (c *Client) Stream(ctx context.Context, path string, req GenerateRequest, fn ChunkFunc) error {
	if strings.TrimSpace(req.Model) == "" {
		return ErrModelRequired
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, path, req)
	if err != nil {
		return err
	}

	resp, err := c.do(c.streamClient, httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	return readChunks(ctx, resp.Body, fn)
}

func readChunks(ctx context.Context, r io.Reader, fn ChunkFunc) error {
	buf := make([]byte, chunkBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return &ClientError{Type: ErrTypeTimeout, Message: "stream cancelled", Cause: err}
		}

		n, err := r.Read(buf)
		if n > 0 {
			if cbErr := fn(buf[:n]); cbErr != nil {
				return cbErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return &ClientError{Type: ErrTypeTimeout, Message: "stream cancelled", Cause: ctx.Err()}
			}
			return &ClientError{Type: ErrTypeTransport, Message: "stream interrupted", Cause: err}
		}
	}
}
