// Package styles provides colour themes and styling for CLI output.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// Theme defines the colour palette used by the CLI.
type Theme struct {
	// Primary is the main accent colour.
	Primary lipgloss.Color

	// Secondary is the secondary accent colour.
	Secondary lipgloss.Color

	// Muted is for less important text.
	Muted lipgloss.Color

	// Success indicates positive outcomes.
	Success lipgloss.Color

	// Warning indicates caution.
	Warning lipgloss.Color

	// Error indicates problems.
	Error lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:   lipgloss.Color("#7C3AED"), // Purple
		Secondary: lipgloss.Color("#06B6D4"), // Cyan
		Muted:     lipgloss.Color("#6C7086"), // Medium gray
		Success:   lipgloss.Color("#A6E3A1"), // Green
		Warning:   lipgloss.Color("#F9E2AF"), // Yellow
		Error:     lipgloss.Color("#F38BA8"), // Red
	}
}

// Styles contains pre-configured lipgloss styles.
type Styles struct {
	theme *Theme

	// Title style for headers.
	Title lipgloss.Style

	// Label style for field names.
	Label lipgloss.Style

	// Muted style for less important text.
	Muted lipgloss.Style

	// Error style for error messages.
	Error lipgloss.Style

	// Success style for success messages.
	Success lipgloss.Style

	// Warning style for warning messages.
	Warning lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	return &Styles{
		theme: theme,

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Primary),

		Label: lipgloss.NewStyle().
			Foreground(theme.Secondary),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Error: lipgloss.NewStyle().
			Foreground(theme.Error),

		Success: lipgloss.NewStyle().
			Foreground(theme.Success),

		Warning: lipgloss.NewStyle().
			Foreground(theme.Warning),
	}
}

// DefaultStyles returns styles with the default theme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// Theme returns the theme used by these styles.
func (s *Styles) Theme() *Theme {
	return s.theme
}

// Status returns the style matching a document status.
func (s *Styles) Status(status domain.Status) lipgloss.Style {
	switch status {
	case domain.StatusProcessed, domain.StatusPublished:
		return s.Success
	case domain.StatusFailed:
		return s.Error
	case domain.StatusCancelled, domain.StatusDraft:
		return s.Muted
	default:
		return s.Warning
	}
}

// Severity returns the style matching a validation error severity.
func (s *Styles) Severity(sev domain.Severity) lipgloss.Style {
	if sev == domain.SeverityCritical {
		return s.Error.Bold(true)
	}
	return s.Error
}

// Score returns the style for a validation score out of 100.
func (s *Styles) Score(score int) lipgloss.Style {
	switch {
	case score >= 80:
		return s.Success
	case score >= 50:
		return s.Warning
	default:
		return s.Error
	}
}
