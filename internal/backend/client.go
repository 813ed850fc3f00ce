// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the threadchat backend API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is where `threadchat serve` listens by default.
const DefaultBaseURL = "http://127.0.0.1:8000"

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL (default: http://127.0.0.1:8000)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// BeaconTimeout bounds the fire-and-forget save sent on exit (default: 2s)
	BeaconTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:       DefaultBaseURL,
		Timeout:       30 * time.Second,
		BeaconTimeout: 2 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the threadchat backend.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client := backend.NewClient()
//	resp, err := client.SaveThread(ctx, backend.SaveThreadRequest{
//	    Name: "Notes",
//	    Data: conv.CloneMessages(),
//	})
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a new backend client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new backend client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BeaconTimeout == 0 {
		config.BeaconTimeout = 2 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		// Streams are bounded by the caller's context.
		streamClient: &http.Client{},
	}
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeTransport, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isNetTimeout(err) {
			return nil, &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
		}
		return nil, &ClientError{Type: ErrTypeTransport, Message: "backend is not reachable", Cause: err}
	}
	return resp, nil
}

func isNetTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// doJSON performs a request and decodes a 200 response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, err
	}

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return 0, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, statusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
		}
	}
	return resp.StatusCode, nil
}

// statusError builds an error from a non-200 response, using the server's
// message or detail field when present.
func statusError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = json.Unmarshal(data, &body)

	msg := body.Detail
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = "request failed: " + resp.Status
	}

	errType := ErrTypeServer
	switch resp.StatusCode {
	case http.StatusNotFound:
		errType = ErrTypeNotFound
	case http.StatusServiceUnavailable:
		errType = ErrTypeUnavailable
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		errType = ErrTypeValidation
	}
	return &ClientError{Type: errType, Message: msg, Status: resp.StatusCode}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the backend is up and can reach Ollama.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if _, err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// CheckModel reports whether a model is installed. A backend that cannot
// reach Ollama answers with Exists false and a non-empty Error.
func (c *Client) CheckModel(ctx context.Context, name string) (*CheckModelResponse, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrModelRequired
	}
	var out CheckModelResponse
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/check_model", ModelRequest{Model: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InstallModel asks the backend to start pulling a model. The download
// continues in the background after this returns.
func (c *Client) InstallModel(ctx context.Context, name string) (*InstallModelResponse, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrModelRequired
	}
	var out InstallModelResponse
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/install_model", ModelRequest{Model: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSmallModels returns lightweight alternatives with install state.
func (c *Client) ListSmallModels(ctx context.Context) ([]SmallModel, error) {
	var out SmallModelsResponse
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/list_small_models", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// CheckAllModels returns every catalogue model with its install state.
func (c *Client) CheckAllModels(ctx context.Context) ([]ModelStatus, error) {
	var out AllModelsResponse
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/check_all_models", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// CheckDNS runs the backend's DNS diagnostics.
func (c *Client) CheckDNS(ctx context.Context) (*DNSReport, error) {
	var out DNSReport
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/check_dns", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// THREAD OPERATIONS
// =============================================================================

// ListThreads returns thread summaries, newest first.
func (c *Client) ListThreads(ctx context.Context) ([]ThreadSummary, error) {
	var out []ThreadSummary
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/get_threads", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []ThreadSummary{}
	}
	return out, nil
}

// GetThread loads a thread with its full transcript.
func (c *Client) GetThread(ctx context.Context, id string) (*Thread, error) {
	var out GetThreadResponse
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/get_thread/"+url.PathEscape(id), nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	if !out.Success || out.Thread == nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "thread missing from response"}
	}
	return out.Thread, nil
}

// SaveThread creates or updates a thread. The request is validated before
// any network call.
func (c *Client) SaveThread(ctx context.Context, req SaveThreadRequest) (*SaveThreadResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrTitleRequired
	}
	if len(req.Data) == 0 {
		return nil, ErrEmptyTranscript
	}

	var out SaveThreadResponse
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/save_thread", req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &ClientError{Type: ErrTypeServer, Message: msg}
	}
	return &out, nil
}

// DeleteThread removes a thread.
func (c *Client) DeleteThread(ctx context.Context, id string) (*DeleteThreadResponse, error) {
	var out DeleteThreadResponse
	if _, err := c.doJSON(ctx, http.MethodDelete, "/api/delete_thread/"+url.PathEscape(id), nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	return &out, nil
}

// Beacon sends a save without waiting for it. The returned channel receives
// the outcome; the request is abandoned after BeaconTimeout, so waiting on
// the channel never takes longer than that.
func (c *Client) Beacon(req SaveThreadRequest) <-chan error {
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.BeaconTimeout)
		defer cancel()
		_, err := c.SaveThread(ctx, req)
		done <- err
	}()
	return done
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	r.Close()
}
