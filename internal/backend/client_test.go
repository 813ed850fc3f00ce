// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/threadchat/internal/model"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(&ClientConfig{BaseURL: srv.URL + "/", Timeout: 2 * time.Second, BeaconTimeout: 500 * time.Millisecond})
}

// =============================================================================
// THREADS
// =============================================================================

func TestSaveThread_NewThreadOmitsID(t *testing.T) {
	var raw map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/save_thread", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Write([]byte(`{"success":true,"message":"Thread 'Hi' saved","thread_id":"42"}`))
	}))

	resp, err := client.SaveThread(context.Background(), SaveThreadRequest{
		Name: "Hi",
		Data: []model.Message{model.NewUserMessage("hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", resp.ThreadID)
	_, hasID := raw["id"]
	assert.False(t, hasID, "request for a new thread must not carry an id")
	assert.Equal(t, "Hi", raw["name"])
}

func TestSaveThread_Validation(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := client.SaveThread(context.Background(), SaveThreadRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrEmptyTranscript)
	assert.True(t, IsValidation(err))

	_, err = client.SaveThread(context.Background(), SaveThreadRequest{Name: " ", Data: []model.Message{model.NewUserMessage("a")}})
	assert.ErrorIs(t, err, ErrTitleRequired)

	assert.Zero(t, calls.Load(), "validation failures must not reach the network")
}

func TestSaveThread_ServerFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"message":"Failed to save thread: disk full"}`))
	}))

	_, err := client.SaveThread(context.Background(), SaveThreadRequest{Name: "x", Data: []model.Message{model.NewUserMessage("a")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, IsTransport(err))
}

func TestGetThread_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"Thread not found"}`))
	}))

	_, err := client.GetThread(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrThreadNotFound)
	assert.True(t, IsNotFound(err))
}

func TestGetThread(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/get_thread/7", r.URL.Path)
		w.Write([]byte(`{"success":true,"thread":{"id":"7","name":"Seven","model":"gemma:2b","messages":[{"role":"user","content":"hi","timestamp":"2025-01-01T00:00:00.000Z"}]}}`))
	}))

	th, err := client.GetThread(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Seven", th.Name)
	require.Len(t, th.Messages, 1)
	assert.Equal(t, model.RoleUser, th.Messages[0].Role)
}

func TestListThreads_EmptyArray(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	threads, err := client.ListThreads(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, threads)
	assert.Empty(t, threads)
}

func TestBeacon_BoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	start := time.Now()
	err := <-client.Beacon(SaveThreadRequest{Name: "x", Data: []model.Message{model.NewUserMessage("a")}})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// =============================================================================
// TRANSPORT
// =============================================================================

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: base, Timeout: time.Second})
	_, err := client.ListThreads(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestMalformedResponseIsTransport(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))

	_, err := client.CheckDNS(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestInstallModel_Unavailable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail":"Cannot connect to Ollama service. Please ensure it's running."}`))
	}))

	_, err := client.InstallModel(context.Background(), "gemma:2b")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "Cannot connect to Ollama service")
}

// =============================================================================
// STREAMING
// =============================================================================

func TestSendMessage_StreamsChunks(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-r1:1.5b", req.Model)

		flusher := w.(http.Flusher)
		for _, part := range []string{"Hel", "lo", " world"} {
			w.Write([]byte(part))
			flusher.Flush()
		}
	}))

	var got strings.Builder
	err := client.SendMessage(context.Background(), GenerateRequest{Model: "deepseek-r1:1.5b", Prompt: "hi"}, func(chunk []byte) error {
		got.Write(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got.String())
}

func TestSendMessage_CallbackStops(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))

	stop := errors.New("stop")
	err := client.SendMessage(context.Background(), GenerateRequest{Model: "m", Prompt: "p"}, func([]byte) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}

func TestSendMessage_Validation(t *testing.T) {
	client := NewClient()
	err := client.SendMessage(context.Background(), GenerateRequest{Model: "m", Prompt: "  "}, nil)
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	err = client.SendMessage(context.Background(), GenerateRequest{Prompt: "hi"}, nil)
	assert.ErrorIs(t, err, ErrModelRequired)
}

func TestClientError_Message(t *testing.T) {
	err := &ClientError{Type: ErrTypeServer, Message: "boom", Status: 500, Cause: errors.New("cause")}
	assert.Equal(t, "boom (HTTP 500): cause", err.Error())
	assert.Equal(t, "server", err.Type.String())
}
