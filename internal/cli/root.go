// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/backend"
	"github.com/jeranaias/threadchat/internal/config"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/ui/chat"
)

// Backend is everything the commands use from the backend API.
// *backend.Client satisfies it.
type Backend interface {
	chat.Backend

	Health(ctx context.Context) (*backend.HealthResponse, error)
	CheckAllModels(ctx context.Context) ([]backend.ModelStatus, error)
	CheckDNS(ctx context.Context) (*backend.DNSReport, error)
	BaseURL() string
}

// Options holds the persistent flags.
type Options struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
	BackendURL string
}

// App represents the threadchat CLI application.
type App struct {
	Options Options
	Config  *config.Config

	Out io.Writer
	Err io.Writer

	// NewBackend builds the backend client from the loaded config.
	NewBackend func(cfg *config.Config) Backend

	logCloser io.Closer
}

// NewApp creates a new threadchat CLI application.
func NewApp() *App {
	return &App{
		Out: os.Stdout,
		Err: os.Stderr,
		NewBackend: func(cfg *config.Config) Backend {
			return backend.NewClientWithConfig(cfg.BackendClientConfig())
		},
	}
}

// CreateRootCommand creates and configures the root command.
func (app *App) CreateRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "threadchat",
		Short: "Chat with local Ollama models and keep every thread",
		Long: `threadchat is a chat client for local Ollama models. Conversations are
saved as threads by a small backend server, automatically and on request.

Run without a command to open the chat: the full-screen UI on a terminal,
line mode when input or output is redirected.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			app.teardown()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if IsTTY() && IsStdoutTTY() {
				return app.runTUI(cmd.Context(), "")
			}
			return app.runChat(cmd.Context(), "", false)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.Options.ConfigPath, "config", "", "Config file (default ~/.threadchat/config.toml)")
	flags.StringVar(&app.Options.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&app.Options.LogFile, "log-file", "", "Write logs to a file")
	flags.StringVar(&app.Options.BackendURL, "backend", "", "Backend URL (default from config)")

	app.addChatCommands(rootCmd)
	app.addServeCommand(rootCmd)
	app.addThreadCommands(rootCmd)
	app.addModelCommands(rootCmd)
	app.addDNSCommand(rootCmd)
	app.addConfigCommands(rootCmd)
	app.addVersionCommand(rootCmd)

	return rootCmd
}

// setup loads the configuration and configures logging.
func (app *App) setup(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if app.Options.ConfigPath != "" {
		cfg, err = config.LoadFromPath(app.Options.ConfigPath)
		if err != nil {
			return err
		}
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return err
		}
		if err != nil {
			fmt.Fprintf(app.Err, "%s %v (using defaults)\n", WarningStyle.Render("[WARN]"), err)
		}
	}
	if app.Options.BackendURL != "" {
		cfg.Client.BackendURL = app.Options.BackendURL
	}
	app.Config = cfg
	config.SetGlobal(cfg)

	// the full-screen UI owns the terminal; it configures its own log file
	if cmd.Name() == "tui" || (cmd.Parent() == nil && IsTTY() && IsStdoutTTY()) {
		return nil
	}
	closer, err := logging.Configure(app.Options.LogLevel, app.Options.LogFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	app.logCloser = closer
	return nil
}

func (app *App) teardown() {
	if app.logCloser != nil {
		app.logCloser.Close()
		app.logCloser = nil
	}
}

func (app *App) backend() Backend {
	return app.NewBackend(app.Config)
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	app := NewApp()
	rootCmd := app.CreateRootCommand()
	if err := rootCmd.Execute(); err != nil {
		app.teardown()
		DisplayError(app.Err, err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
