// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the threadchat TUI.

All colors use Lip Gloss AdaptiveColor, so one palette serves light and dark
terminals. NewTheme picks the background from the configured mode ("dark",
"light" or "auto"); auto asks the terminal through termenv.

# Usage

	theme := styles.NewTheme(cfg.UI.Theme)
	label := theme.UserLabel.Render("You")

Status lines carry an ASCII indicator next to their color:

	fmt.Println(styles.RenderError("Backend is not reachable"))
*/
package styles
