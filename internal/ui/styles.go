// Package ui holds the lipgloss styles shared by the TUI and CLI output.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF0000")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#FF00FF")
)

// Base styles reused by UI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	RecordingDotStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)

	IdleDotStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	CapturedDotStyle = lipgloss.NewStyle().
				Foreground(ColorGreen).
				Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	SpeakerHeaderStyle = lipgloss.NewStyle().
				Foreground(ColorCyan).
				Bold(true)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	PanelTitleActiveStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorCyan)

	InputLabelStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Width(18)

	InputFocusedStyle = lipgloss.NewStyle().
				Foreground(ColorCyan).
				Bold(true)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorCyan).
				Padding(0, 1)

	TableCellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// StatusStyleFor colors a job status.
func StatusStyleFor(status string) lipgloss.Style {
	switch status {
	case "completed":
		return NoticeStyle
	case "failed":
		return ErrorTextStyle
	case "processing":
		return SpinnerStyle
	}
	return DimStyle
}

// HighlightSpeakers styles the "=== NAME ===" header lines of a speaker
// transcript in place and returns lines.
func HighlightSpeakers(lines []string) []string {
	for i, l := range lines {
		if IsSpeakerHeader(l) {
			lines[i] = SpeakerHeaderStyle.Render(l)
		}
	}
	return lines
}

// IsSpeakerHeader reports whether line is a "=== NAME ===" header.
func IsSpeakerHeader(line string) bool {
	t := strings.TrimSpace(line)
	return len(t) > 6 && strings.HasPrefix(t, "===") && strings.HasSuffix(t, "===")
}

// Key renders a footer key hint.
func Key(key, desc string) string {
	return FooterKeyStyle.Render(key) + FooterDescStyle.Render(" "+desc)
}
