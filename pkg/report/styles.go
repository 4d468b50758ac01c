// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package report

import "github.com/charmbracelet/lipgloss"

var (
	primary = lipgloss.Color("#7C3AED")
	ok      = lipgloss.Color("#10B981")
	warning = lipgloss.Color("#F59E0B")
	danger  = lipgloss.Color("#EF4444")
	muted   = lipgloss.Color("#6B7280")

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primary)

	fitsStyle = lipgloss.NewStyle().
			Foreground(ok).
			Bold(true)

	doesNotFitStyle = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)

	riskStyle = lipgloss.NewStyle().
			Foreground(warning)

	noteStyle = lipgloss.NewStyle().
			Foreground(muted)
)
