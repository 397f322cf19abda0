// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the LexAI terminal UI.

All colors use Lip Gloss AdaptiveColor so one palette serves light and dark
terminals.

# Color System (colors.go)

  - Indigo - Brand color for the header and assistant label
  - Gold - Streaming cursor and spinner
  - Emerald, Amber, Rose - Document status and CLI errors

Every colored status also has an ASCII shape in StatusIndicators.

# Theme (theme.go)

NewTheme builds every style for the chat screen. The mode is "auto"
(detected with termenv), "dark" or "light":

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.SetSize(width, height)
	bubble := theme.AssistantBubble.Width(theme.BubbleWidth(cfg.UI.WordWrap))

# Animations (animations.go)

Spinner frame sets and the blinking streaming cursor.
*/
package styles
