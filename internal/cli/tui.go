// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/ui/chat"
	"github.com/jeranaias/threadchat/internal/ui/styles"
)

// addChatCommands adds the tui and chat commands.
func (app *App) addChatCommands(rootCmd *cobra.Command) {
	var tuiModel string
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the full-screen chat",
		Long: `Open the full-screen chat. Logs go to the configured log file
(~/.threadchat/threadchat.log by default) while the UI owns the terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runTUI(cmd.Context(), tuiModel)
		},
	}
	tuiCmd.Flags().StringVarP(&tuiModel, "model", "m", "", "Model to use (default from config)")

	var (
		chatModel string
		connect   bool
	)
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in line mode",
		Long: `Chat in the terminal without the full-screen UI. Works with pipes:

  echo "Why is the sky blue?" | threadchat chat --connect`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runChat(cmd.Context(), chatModel, connect)
		},
	}
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model to use (default from config)")
	chatCmd.Flags().BoolVar(&connect, "connect", false, "Connect the model before reading input")

	rootCmd.AddCommand(tuiCmd, chatCmd)
}

// runTUI runs the Bubble Tea chat until the user quits.
func (app *App) runTUI(ctx context.Context, modelName string) error {
	if err := RequiresTTY("open the full-screen chat"); err != nil {
		return err
	}
	cfg := app.Config

	logFile := app.Options.LogFile
	if logFile == "" {
		path, err := cfg.LogFilePath()
		if err != nil {
			return err
		}
		logFile = path
	}
	closer, err := logging.Configure(app.Options.LogLevel, logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	app.logCloser = closer

	if modelName == "" {
		modelName = cfg.Client.Model
	}

	m := chat.New(chat.Options{
		Backend:        app.backend(),
		Theme:          styles.NewTheme(cfg.UI.Theme),
		Model:          modelName,
		Temperature:    cfg.Client.Temperature,
		MaxTokens:      cfg.Client.MaxTokens,
		StreamSpeed:    cfg.Client.StreamSpeed,
		AutoSave:       cfg.SessionConfig(),
		Markdown:       cfg.UI.Markdown,
		RequestTimeout: time.Duration(cfg.Client.TimeoutSecs) * time.Second,
		Logger:         logging.Component("chat"),
	})

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI failed: %w", err)
	}
	return nil
}

// runChat runs the line-mode chat.
func (app *App) runChat(ctx context.Context, modelName string, connect bool) error {
	return RunChat(ctx, ChatOptions{
		Backend: app.backend(),
		Config:  app.Config,
		Model:   modelName,
		Connect: connect,
		Out:     app.Out,
	})
}
