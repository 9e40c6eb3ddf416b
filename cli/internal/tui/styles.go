// Package tui renders evolog's user-facing terminal output: styled status
// notifications (lipgloss) and interactive prompts (huh). Colors use
// AdaptiveColor so they read on light and dark terminals; NO_COLOR and
// TERM=dumb disable them.
package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#00D7FF"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}
)

// Styles holds one style per notification level.
type Styles struct {
	Info    lipgloss.Style
	Success lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles returns colored styles, or unstyled ones when color is false.
func NewStyles(color bool) Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return Styles{Info: plain, Success: plain, Warn: plain, Error: plain, Muted: plain}
	}
	return Styles{
		Info:    lipgloss.NewStyle().Foreground(ColorPrimary),
		Success: lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
		Warn:    lipgloss.NewStyle().Foreground(ColorWarning),
		Error:   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	}
}

// HasColorSupport is false when NO_COLOR is set (any value) or TERM=dumb.
func HasColorSupport() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}
