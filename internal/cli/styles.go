// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/trygodson/llamatest/internal/ui/styles"
)

// init configures lipgloss for stdout so piped output carries no escapes.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES FOR ALL CLI COMMANDS
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Indigo)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Width(14)

	// SuccessStyle is used for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Bold(true)

	// ErrorStyle is used for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	// WarningStyle is used for warnings
	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// DimStyle is used for hints and secondary text
	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	// PromptStyle is used for the chat prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(styles.Indigo).
			Bold(true)
)

// statusStyle colors a document status with its shape indicator.
func statusStyle(status string) string {
	indicator := styles.StatusIndicators.Pending
	switch status {
	case "Processed":
		indicator = styles.StatusIndicators.Success
	case "Failed":
		indicator = styles.StatusIndicators.Error
	}
	return lipgloss.NewStyle().
		Foreground(styles.DocumentStatusColor(status)).
		Render(indicator + " " + status)
}
