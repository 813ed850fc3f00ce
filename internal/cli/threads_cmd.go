// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/backend"
	"github.com/jeranaias/threadchat/internal/export"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/storage"
	"github.com/jeranaias/threadchat/internal/util"
)

// addThreadCommands adds the saved thread commands.
func (app *App) addThreadCommands(rootCmd *cobra.Command) {
	threadsCmd := &cobra.Command{
		Use:     "threads",
		Aliases: []string{"thread"},
		Short:   "List, show, export and delete saved threads",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved threads, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.listThreads(cmd.Context())
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showThread(cmd.Context(), args[0])
		},
	}

	var (
		format string
		output string
	)
	exportCmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a saved thread as markdown, json or yaml",
		Long: `Export a saved thread. Without --output the result is printed.

Examples:
  threadchat threads export 1700000000
  threadchat threads export 1700000000 --format json --output ./exports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.exportThread(cmd.Context(), args[0], format, output)
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "md", "Format: md, json or yaml")
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "Write a file into this directory")

	var yes bool
	deleteCmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved thread",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.deleteThread(cmd.Context(), args[0], yes)
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	threadsCmd.AddCommand(listCmd, showCmd, exportCmd, deleteCmd)
	rootCmd.AddCommand(threadsCmd)
}

func (app *App) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(app.Config.Client.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (app *App) listThreads(ctx context.Context) error {
	ctx, cancel := app.requestContext(ctx)
	defer cancel()
	threads, err := app.backend().ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("could not list threads: %w", err)
	}
	if len(threads) == 0 {
		fmt.Fprintln(app.Out, "No saved threads.")
		return nil
	}

	nameWidth := max(16, min(48, GetTerminalWidth()-34))
	fmt.Fprintf(app.Out, "%s %s %s\n",
		DimStyle.Render(util.PadRight("ID", 12)),
		DimStyle.Render(util.PadRight("NAME", nameWidth)),
		DimStyle.Render("CREATED"))
	for _, t := range threads {
		fmt.Fprintf(app.Out, "%s %s %s\n",
			commandStyle.Render(util.PadRight(t.ID, 12)),
			util.PadRight(util.TruncateWidth(util.SingleLine(t.Name), nameWidth), nameWidth),
			DimStyle.Render(threadAge(t.CreatedAt)))
	}
	return nil
}

func (app *App) getThread(ctx context.Context, id string) (*backend.Thread, error) {
	ctx, cancel := app.requestContext(ctx)
	defer cancel()
	t, err := app.backend().GetThread(ctx, id)
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, NewNotFoundError("thread", id)
		}
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	return t, nil
}

func (app *App) showThread(ctx context.Context, id string) error {
	t, err := app.getThread(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintln(app.Out, TitleStyle.Render(t.Name))
	fmt.Fprintln(app.Out, RenderField("ID", t.ID))
	fmt.Fprintln(app.Out, RenderField("Model", t.Model))
	fmt.Fprintln(app.Out, RenderField("Created", threadAge(t.CreatedAt)))
	fmt.Fprintln(app.Out, RenderField("Messages", len(t.Messages)))
	fmt.Fprintln(app.Out, RenderSeparator(min(70, GetTerminalWidth())))

	width := GetTerminalWidth()
	for _, m := range t.Messages {
		if m.IsConnection {
			fmt.Fprintln(app.Out, DimStyle.Render("-- "+m.Content+" --"))
			continue
		}
		label := m.Role.DisplayName()
		switch {
		case m.IsError:
			label = ErrorStyle.Render("Error")
		case m.Role == model.RoleUser:
			label = userLabelStyle.Render(label)
		case m.Role == model.RoleAssistant:
			label = assistantLabelStyle.Render(label)
		default:
			label = DimStyle.Render(label)
		}
		fmt.Fprintln(app.Out, label)
		fmt.Fprintln(app.Out, WrapIndented(m.Content, width, 2))
	}
	return nil
}

func (app *App) exportThread(ctx context.Context, id, formatName, outputDir string) error {
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return NewValidationError("format", formatName, err.Error(), "--format json")
	}
	t, err := app.getThread(ctx, id)
	if err != nil {
		return err
	}
	record := &storage.Thread{
		ID:        t.ID,
		Name:      t.Name,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Model:     t.Model,
		Messages:  t.Messages,
	}

	opts := export.DefaultOptions()
	if outputDir == "" {
		return export.Write(app.Out, record, format, opts)
	}
	opts.OutputDir = outputDir
	exporter, err := export.New(format, opts)
	if err != nil {
		return err
	}
	path, err := export.ExportToFile(record, exporter, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "%s Exported to %s\n", RenderStatus("ok"), path)
	return nil
}

func (app *App) deleteThread(ctx context.Context, id string, yes bool) error {
	if !yes {
		if err := RequiresTTY("confirm the delete (use --yes)"); err != nil {
			return err
		}
		if !PromptYesNo(os.Stdin, app.Out, fmt.Sprintf("Delete thread %s? This cannot be undone.", id)) {
			fmt.Fprintln(app.Out, "Cancelled.")
			return nil
		}
	}

	ctx, cancel := app.requestContext(ctx)
	defer cancel()
	resp, err := app.backend().DeleteThread(ctx, id)
	if err != nil {
		if backend.IsNotFound(err) {
			return NewNotFoundError("thread", id)
		}
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	msg := "Thread deleted."
	if resp != nil && resp.Message != "" {
		msg = resp.Message
	}
	fmt.Fprintf(app.Out, "%s %s\n", RenderStatus("ok"), msg)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// threadAge renders a created_at value relative to now.
func threadAge(createdAt string) string {
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		return humanize.Time(ts)
	}
	return createdAt
}

// PromptYesNo asks question on out and reads the answer from in. Only y
// and yes confirm.
func PromptYesNo(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
