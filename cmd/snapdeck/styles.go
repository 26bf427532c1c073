package main

import "github.com/charmbracelet/lipgloss"

// Tokyo Night, with light-terminal fallbacks.
var (
	colorText   = lipgloss.AdaptiveColor{Light: "#343b58", Dark: "#c0caf5"}
	colorDim    = lipgloss.AdaptiveColor{Light: "#6c6e75", Dark: "#787fa0"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#2959aa", Dark: "#7aa2f7"}
	colorBorder = lipgloss.AdaptiveColor{Light: "#9699a3", Dark: "#414868"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "#33635c", Dark: "#9ece6a"}
	colorYellow = lipgloss.AdaptiveColor{Light: "#8f5e15", Dark: "#e0af68"}
	colorRed    = lipgloss.AdaptiveColor{Light: "#8c4351", Dark: "#f7768e"}
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(colorText)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	errStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)

	chunkStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)
