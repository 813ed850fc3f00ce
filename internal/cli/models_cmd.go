// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/backend"
	"github.com/jeranaias/threadchat/internal/server"
	"github.com/jeranaias/threadchat/internal/util"
)

// addModelCommands adds the model catalogue commands and status.
func (app *App) addModelCommands(rootCmd *cobra.Command) {
	modelsCmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"model"},
		Short:   "Check and install models through the backend",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show the model catalogue and what is installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.listModels(cmd.Context())
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check <name>",
		Short: "Check whether a model is installed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.checkModel(cmd.Context(), args[0])
		},
	}

	installCmd := &cobra.Command{
		Use:   "install <name>",
		Short: "Start installing a model",
		Long: `Ask the backend to pull a model from the Ollama registry. The pull runs
on the server; use "threadchat models check <name>" to see when it is done.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.installModel(cmd.Context(), args[0])
		},
	}

	smallCmd := &cobra.Command{
		Use:   "small",
		Short: "Suggest small models for limited hardware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.smallModels(cmd.Context())
		},
	}

	modelsCmd.AddCommand(listCmd, checkCmd, installCmd, smallCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend and Ollama health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.status(cmd.Context())
		},
	}

	rootCmd.AddCommand(modelsCmd, statusCmd)
}

func (app *App) listModels(ctx context.Context) error {
	ctx, cancel := app.requestContext(ctx)
	defer cancel()
	models, err := app.backend().CheckAllModels(ctx)
	if err != nil {
		return fmt.Errorf("could not list models: %w", err)
	}
	for _, m := range models {
		state := "missing"
		if m.Installed {
			state = "installed"
		}
		fmt.Fprintf(app.Out, "%s %s\n", RenderStatus(state), m.Name)
	}
	return nil
}

func (app *App) checkModel(ctx context.Context, name string) error {
	ctx, cancel := app.requestContext(ctx)
	defer cancel()
	resp, err := app.backend().CheckModel(ctx, name)
	if err != nil {
		return fmt.Errorf("could not check model: %w", err)
	}
	switch {
	case resp.Error != "":
		return errors.New(resp.Error)
	case !resp.Exists:
		fmt.Fprintf(app.Out, "%s %s is not installed. Install it with: threadchat models install %s\n",
			RenderStatus("missing"), name, name)
		return NewNotFoundError("model", name)
	}
	fmt.Fprintf(app.Out, "%s %s is installed\n", RenderStatus("ok"), name)
	if resp.Warning != "" {
		fmt.Fprintf(app.Out, "%s %s\n", RenderStatus("warning"), resp.Warning)
	}
	return nil
}

func (app *App) installModel(ctx context.Context, name string) error {
	ctx, cancel := app.requestContext(ctx)
	defer cancel()
	resp, err := app.backend().InstallModel(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to install %s: %w", name, err)
	}
	if resp == nil || !resp.Success {
		detail := "install rejected"
		if resp != nil && resp.Message != "" {
			detail = resp.Message
		}
		return fmt.Errorf("failed to install %s: %s", name, detail)
	}
	fmt.Fprintf(app.Out, "%s %s\n", RenderStatus("pending"), resp.Message)
	return nil
}

func (app *App) smallModels(ctx context.Context) error {
	ctx, cancel := app.requestContext(ctx)
	defer cancel()
	models, err := app.backend().ListSmallModels(ctx)
	if err != nil {
		return fmt.Errorf("could not list small models: %w", err)
	}
	for _, sm := range models {
		state := "missing"
		if sm.Installed {
			state = "installed"
		}
		fmt.Fprintf(app.Out, "%s %s %s %s\n", RenderStatus(state),
			commandStyle.Render(util.PadRight(sm.Name, 22)),
			DimStyle.Render(util.PadRight(sm.Size, 8)),
			sm.Description)
	}
	return nil
}

func (app *App) status(ctx context.Context) error {
	client := app.backend()
	ctx, cancel := app.requestContext(ctx)
	defer cancel()

	fmt.Fprintln(app.Out, TitleStyle.Render("threadchat status"))
	fmt.Fprintln(app.Out, RenderField("Backend", client.BaseURL()))

	health, err := client.Health(ctx)
	if err != nil {
		fmt.Fprintln(app.Out, RenderLabel("Server")+RenderStatus("fail"))
		return fmt.Errorf("backend unreachable: %w", err)
	}
	fmt.Fprintln(app.Out, RenderLabel("Server")+RenderStatus("ok")+" "+health.Version)
	if health.Ollama {
		fmt.Fprintln(app.Out, RenderLabel("Ollama")+RenderStatus("ok")+" "+health.OllamaVersion)
	} else {
		fmt.Fprintln(app.Out, RenderLabel("Ollama")+RenderStatus("fail")+" not running (ollama serve)")
	}
	return nil
}

// =============================================================================
// DNS
// =============================================================================

// addDNSCommand adds the DNS diagnostics command.
func (app *App) addDNSCommand(rootCmd *cobra.Command) {
	var local bool
	dnsCmd := &cobra.Command{
		Use:   "dns",
		Short: "Check that model download hosts resolve",
		Long: `Resolve the hosts model downloads depend on. By default the backend runs
the check; --local runs it on this machine without a backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.checkDNS(cmd.Context(), local)
		},
	}
	dnsCmd.Flags().BoolVar(&local, "local", false, "Resolve from this machine")
	rootCmd.AddCommand(dnsCmd)
}

func (app *App) checkDNS(ctx context.Context, local bool) error {
	var report backend.DNSReport
	if local {
		r := server.CheckDNS(ctx, net.DefaultResolver, "")
		report.System = r.System
		report.SystemDNS = r.SystemDNS
		report.Checks = make(map[string]backend.DNSCheck, len(r.Checks))
		for host, c := range r.Checks {
			report.Checks[host] = backend.DNSCheck(c)
		}
	} else {
		ctx, cancel := app.requestContext(ctx)
		defer cancel()
		r, err := app.backend().CheckDNS(ctx)
		if err != nil {
			return fmt.Errorf("DNS check failed: %w", err)
		}
		report = *r
	}
	return app.printDNSReport(report)
}

func (app *App) printDNSReport(report backend.DNSReport) error {
	fmt.Fprintln(app.Out, RenderField("System", report.System))
	fmt.Fprintln(app.Out, RenderField("Resolvers", strings.Join(report.SystemDNS, ", ")))

	hosts := make([]string, 0, len(report.Checks))
	for host := range report.Checks {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	var failed []string
	for _, host := range hosts {
		c := report.Checks[host]
		if c.Resolved {
			fmt.Fprintf(app.Out, "%s %s %s\n", RenderStatus("resolved"), util.PadRight(host, 28), DimStyle.Render(c.IPAddress))
			continue
		}
		failed = append(failed, host)
		fmt.Fprintf(app.Out, "%s %s %s\n", RenderStatus("fail"), util.PadRight(host, 28), c.Error)
	}
	if len(failed) > 0 {
		return fmt.Errorf("network connectivity issue: could not resolve %s", strings.Join(failed, ", "))
	}
	return nil
}
