// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/ollama"
	"github.com/jeranaias/threadchat/internal/server"
	"github.com/jeranaias/threadchat/internal/storage"
)

const (
	// ollamaStartWait bounds the wait for a freshly started Ollama.
	ollamaStartWait = 30 * time.Second

	shutdownTimeout = 10 * time.Second
)

// serveFlags override the [server] section for one run.
type serveFlags struct {
	host        string
	port        int
	storage     string
	threadsDir  string
	startOllama bool
	ollamaURL   string
}

// addServeCommand adds the backend server command.
func (app *App) addServeCommand(rootCmd *cobra.Command) {
	var flags serveFlags
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend server",
		Long: `Run the threadchat backend: thread storage, model checks and installs,
and streaming generation through Ollama.

Examples:
  threadchat serve
  threadchat serve --port 9000 --storage sqlite
  threadchat serve --start-ollama`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app.applyServeFlags(cmd, flags)
			return app.runServe(cmd.Context())
		},
	}
	f := serveCmd.Flags()
	f.StringVar(&flags.host, "host", "", "Listen host (default from config)")
	f.IntVarP(&flags.port, "port", "p", 0, "Listen port (default from config)")
	f.StringVar(&flags.storage, "storage", "", "Thread store: file or sqlite")
	f.StringVar(&flags.threadsDir, "threads-dir", "", "Thread directory")
	f.BoolVar(&flags.startOllama, "start-ollama", false, "Start Ollama when it is not running")
	f.StringVar(&flags.ollamaURL, "ollama-url", "", "Ollama URL (default from config)")

	rootCmd.AddCommand(serveCmd)
}

func (app *App) applyServeFlags(cmd *cobra.Command, flags serveFlags) {
	cfg := app.Config
	if flags.host != "" {
		cfg.Server.Host = flags.host
	}
	if flags.port != 0 {
		cfg.Server.Port = flags.port
	}
	if flags.storage != "" {
		cfg.Server.Storage = flags.storage
	}
	if flags.threadsDir != "" {
		cfg.Server.ThreadsDir = flags.threadsDir
	}
	if cmd.Flags().Changed("start-ollama") {
		cfg.Server.StartOllama = flags.startOllama
	}
	if flags.ollamaURL != "" {
		cfg.Ollama.URL = flags.ollamaURL
	}
}

// runServe serves until SIGINT or SIGTERM, then shuts down gracefully.
func (app *App) runServe(ctx context.Context) error {
	cfg := app.Config
	logger := logging.Component("serve")

	kind, err := storage.ParseKind(cfg.Server.Storage)
	if err != nil {
		return NewValidationError("storage", cfg.Server.Storage, err.Error(), "--storage sqlite")
	}
	dir, err := cfg.ThreadsPath()
	if err != nil {
		return err
	}
	store, err := storage.Open(kind, dir)
	if err != nil {
		return fmt.Errorf("failed to open thread store: %w", err)
	}
	defer store.Close()

	client := ollama.NewClientWithConfig(cfg.OllamaClientConfig())
	if cfg.Server.StartOllama {
		if err := client.EnsureRunning(ctx, ollamaStartWait); err != nil {
			logger.Warn("Ollama is not available", "err", err)
		}
	} else if err := client.CheckRunning(ctx); err != nil {
		logger.Warn("Ollama is not running; start it with: ollama serve", "url", cfg.Ollama.URL)
	}

	srv := server.New(cfg.ServerConfig(), store, client)
	logger.Info("serving threads", "dir", dir, "storage", kind)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return <-errCh
}
