// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/server"
)

// Version information, set at build time with -ldflags.
var (
	Version   = server.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// addVersionCommand adds the version command.
func (app *App) addVersionCommand(rootCmd *cobra.Command) {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			detailed, _ := cmd.Flags().GetBool("detailed")
			if !detailed {
				fmt.Fprintf(app.Out, "threadchat %s\n", Version)
				return
			}
			fmt.Fprintf(app.Out, "threadchat %s\n", Version)
			fmt.Fprintln(app.Out, RenderField("Commit", GitCommit))
			fmt.Fprintln(app.Out, RenderField("Built", BuildDate))
			fmt.Fprintln(app.Out, RenderField("Go", runtime.Version()))
			fmt.Fprintln(app.Out, RenderField("Platform", runtime.GOOS+"/"+runtime.GOARCH))
		},
	}
	versionCmd.Flags().Bool("detailed", false, "Show build details")
	rootCmd.AddCommand(versionCmd)
}
