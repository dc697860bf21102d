// Package style holds the terminal styles used for kiosk status lines.
package style

import "github.com/charmbracelet/lipgloss"

var (
	// Success is used for recorded punches and enrollments
	Success = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")). // Green
		Bold(true)

	// Warning is used for rejected faces
	Warning = lipgloss.NewStyle().
		Foreground(lipgloss.Color("11")). // Yellow
		Bold(true)

	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")). // Red
		Bold(true)

	// Info is used for in-progress states
	Info = lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")) // Blue

	Dim = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")) // Gray

	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
	ArrowPrefix   = Info.Render("→")
)
