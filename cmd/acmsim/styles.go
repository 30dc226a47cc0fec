package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ffff"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ccff")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ff4444"))

	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00ff88"))
)

// field is one label/value line of a summary panel.
type field struct {
	label string
	value string
}

func summary(title string, fields []field) string {
	width := 0
	for _, f := range fields {
		width = max(width, len(f.label))
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(title))
	for _, f := range fields {
		sb.WriteString("\n")
		sb.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", width, f.label)))
		sb.WriteString("  ")
		sb.WriteString(valueStyle.Render(f.value))
	}
	return panelStyle.Render(sb.String())
}
