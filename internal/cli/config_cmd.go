// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/config"
)

// addConfigCommands adds the configuration commands.
func (app *App) addConfigCommands(rootCmd *cobra.Command) {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit the configuration",
		Long: `Show and edit ~/.threadchat/config.toml. Keys use dot notation, for
example client.model or autosave.interval_secs.`,
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if asJSON {
				fmt.Fprintln(app.Out, app.Config.String())
				return nil
			}
			return toml.NewEncoder(app.Out).Encode(app.Config)
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := app.configPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return NewValidationError("config", path, "file already exists", "threadchat config init --force")
			}
			if err := config.SaveTOML(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "%s Wrote %s\n", RenderStatus("ok"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := app.Config.Get(args[0])
			if err != nil {
				return NewValidationError("key", args[0], err.Error(), "threadchat config keys")
			}
			fmt.Fprintln(app.Out, toString(v))
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one configuration value and save",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return app.setConfig(args[0], args[1])
		},
	}

	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "List configuration keys",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			for _, k := range config.GetAllKeys() {
				fmt.Fprintln(app.Out, k)
			}
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := app.configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.Out, path)
			return nil
		},
	}

	configCmd.AddCommand(showCmd, initCmd, getCmd, setCmd, keysCmd, pathCmd)
	rootCmd.AddCommand(configCmd)
}

func (app *App) configPath() (string, error) {
	if app.Options.ConfigPath != "" {
		return app.Options.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

// setConfig edits the file on disk, not the effective config, so
// environment overrides are not written back.
func (app *App) setConfig(key, value string) error {
	path, err := app.configPath()
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		loaded, err := config.LoadFromPath(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if err := cfg.Set(key, value); err != nil {
		return NewValidationError("key", key, err.Error(), "threadchat config set client.model qwen2.5:0.5b")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "%s %s = %s\n", RenderStatus("ok"), key, value)
	return nil
}
