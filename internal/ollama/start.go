// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// startPollInterval is the delay between readiness probes after a start.
const startPollInterval = 500 * time.Millisecond

// EnsureRunning checks that Ollama answers and, if not, starts `ollama
// serve` in the background and waits up to wait for it to come up.
func (c *Client) EnsureRunning(ctx context.Context, wait time.Duration) error {
	if err := c.CheckRunning(ctx); err == nil {
		return nil
	}

	path, err := findExecutable()
	if err != nil {
		return &ClientError{Type: ErrTypeNotRunning, Message: "failed to find Ollama executable", Cause: err}
	}

	cmd := exec.Command(path, "serve")
	// pass GPU-related variables such as OLLAMA_VULKAN through
	cmd.Env = os.Environ()
	cmd.SysProcAttr = detachAttrs()

	if err := cmd.Start(); err != nil {
		return &ClientError{
			Type:    ErrTypeNotRunning,
			Message: fmt.Sprintf("failed to start Ollama (path: %s)", path),
			Cause:   err,
		}
	}
	if cmd.Process != nil {
		// keep running after we exit
		_ = cmd.Process.Release()
	}

	c.logger.Info("OLLAMA_START", "path", path)
	start := time.Now()
	deadline := start.Add(wait)

	var lastErr error
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return &ClientError{Type: ErrTypeNotRunning, Message: "Ollama startup cancelled", Cause: err}
		}
		if lastErr = c.CheckRunning(ctx); lastErr == nil {
			c.logger.Info("OLLAMA_READY", "elapsed", time.Since(start).Round(100*time.Millisecond))
			return nil
		}

		select {
		case <-ctx.Done():
		case <-time.After(startPollInterval):
		}
	}

	return &ClientError{
		Type:    ErrTypeNotRunning,
		Message: fmt.Sprintf("Ollama started but not responding after %s (path: %s)", wait, path),
		Cause:   lastErr,
	}
}
