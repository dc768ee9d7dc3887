package theme

import (
	"fmt"

	"github.com/pterm/pterm"
)

// Theme defines the colour scheme and styling for the application
type Theme struct {
	// Log level colours
	Debug *pterm.Style
	Info  *pterm.Style
	Warn  *pterm.Style
	Error *pterm.Style

	// Component colours
	Success   *pterm.Style
	Highlight *pterm.Style
	Muted     *pterm.Style

	// Functional colours
	Endpoint      pterm.Color
	Counts        pterm.Color
	HealthHealthy pterm.Color
	HealthBanned  pterm.Color
	HealthUnknown pterm.Color
}

// Default returns the default application theme
func Default() *Theme {
	return &Theme{
		Debug: pterm.NewStyle(pterm.FgLightBlue),
		Info:  pterm.NewStyle(pterm.FgGreen),
		Warn:  pterm.NewStyle(pterm.FgYellow, pterm.Bold),
		Error: pterm.NewStyle(pterm.FgRed, pterm.Bold),

		Success:   pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		Highlight: pterm.NewStyle(pterm.FgCyan, pterm.Bold),
		Muted:     pterm.NewStyle(pterm.FgGray),

		Endpoint:      pterm.FgCyan,
		Counts:        pterm.FgMagenta,
		HealthHealthy: pterm.FgGreen,
		HealthBanned:  pterm.FgRed,
		HealthUnknown: pterm.FgGray,
	}
}

// Plain returns a theme with no colour emphasis, for dumb terminals
func Plain() *Theme {
	none := pterm.NewStyle(pterm.FgDefault)
	return &Theme{
		Debug:         none,
		Info:          none,
		Warn:          none,
		Error:         none,
		Success:       none,
		Highlight:     none,
		Muted:         none,
		Endpoint:      pterm.FgDefault,
		Counts:        pterm.FgDefault,
		HealthHealthy: pterm.FgDefault,
		HealthBanned:  pterm.FgDefault,
		HealthUnknown: pterm.FgDefault,
	}
}

// GetTheme resolves a theme by name, defaulting on unknown names
func GetTheme(name string) *Theme {
	switch name {
	case "plain", "none":
		return Plain()
	default:
		return Default()
	}
}

// Hyperlink emits an OSC 8 terminal hyperlink
func Hyperlink(uri, label string) string {
	return fmt.Sprintf("\x1b]8;;%s\x07%s\x1b]8;;\x07", uri, label)
}

// ColourSplash styles banner text
func ColourSplash(text string) string {
	return pterm.NewStyle(pterm.FgCyan).Sprint(text)
}

// ColourVersion styles version strings
func ColourVersion(text string) string {
	return pterm.NewStyle(pterm.FgMagenta, pterm.Bold).Sprint(text)
}

// StyleUrl styles link text
func StyleUrl(text string) string {
	return pterm.NewStyle(pterm.FgBlue, pterm.Underscore).Sprint(text)
}
