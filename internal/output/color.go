// Package output provides styled terminal rendering helpers for cohortwatch.
package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette.
var (
	ColorPrimary = lipgloss.Color("#64b5f6")
	ColorSuccess = lipgloss.Color("#66bb6a")
	ColorError   = lipgloss.Color("#ef5350")
	ColorWarning = lipgloss.Color("#fff59d")
	ColorMuted   = lipgloss.Color("#888888")
)

// Shared styles. SetNoColor replaces them with plain renderers.
var (
	StyleHeader  = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleBold    = lipgloss.NewStyle().Bold(true)

	// StyleLabel and StyleValue align "label value" rows in report views.
	StyleLabel = lipgloss.NewStyle().Width(24)
	StyleValue = lipgloss.NewStyle().Bold(true).Width(12)
)

// Severity levels shared by insights and watch alerts.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityPositive = "positive"
	SeverityInfo     = "info"
)

// SetNoColor disables color output globally.
func SetNoColor(disabled bool) {
	if !disabled {
		return
	}
	plain := lipgloss.NewStyle()
	StyleHeader = plain
	StyleSuccess = plain
	StyleError = plain
	StyleWarning = plain
	StyleMuted = plain
	StyleBold = plain
	StyleLabel = plain.Width(24)
	StyleValue = plain.Width(12)
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Configure disables color when requested, when NO_COLOR is set, or when
// stdout is not a terminal.
func Configure(disable bool) {
	if disable || os.Getenv("NO_COLOR") != "" || !IsTerminal(os.Stdout) {
		SetNoColor(true)
	}
}

// SeverityStyle maps a severity to its style. Insight kind "attention" is
// treated as a warning. Unknown severities render muted.
func SeverityStyle(severity string) lipgloss.Style {
	switch severity {
	case SeverityCritical:
		return StyleError
	case SeverityWarning, "attention":
		return StyleWarning
	case SeverityPositive:
		return StyleSuccess
	default:
		return StyleMuted
	}
}

// Marker returns a one-character styled marker for a severity.
func Marker(severity string) string {
	style := SeverityStyle(severity)
	switch severity {
	case SeverityCritical:
		return style.Render("✗")
	case SeverityWarning, "attention":
		return style.Render("!")
	case SeverityPositive:
		return style.Render("✓")
	default:
		return style.Render("·")
	}
}
