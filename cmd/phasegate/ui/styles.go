// Package ui provides the terminal styling and the live status view for
// the phasegate CLI.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"phasegate/internal/types"
)

// Semantic colors shared by all views.
var (
	ColorSuccess = lipgloss.Color("#8BC34A") // green: approved
	ColorError   = lipgloss.Color("#e53935") // red: rejected
	ColorWarning = lipgloss.Color("#FFC107") // yellow: under review
	ColorInfo    = lipgloss.Color("#2196F3") // blue: awaiting work
	ColorMuted   = lipgloss.Color("#808080")
	ColorAccent  = lipgloss.Color("#4db6ac")
)

// Styles holds the lipgloss styles used by the status views.
type Styles struct {
	Title  lipgloss.Style
	Body   lipgloss.Style
	Bold   lipgloss.Style
	Muted  lipgloss.Style
	Accent lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Footer lipgloss.Style
}

// DefaultStyles returns the standard phasegate styling.
func DefaultStyles() Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Body:   lipgloss.NewStyle(),
		Bold:   lipgloss.NewStyle().Bold(true),
		Muted:  lipgloss.NewStyle().Foreground(ColorMuted),
		Accent: lipgloss.NewStyle().Foreground(ColorAccent),

		Success: lipgloss.NewStyle().Foreground(ColorSuccess),
		Error:   lipgloss.NewStyle().Foreground(ColorError),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning),
		Info:    lipgloss.NewStyle().Foreground(ColorInfo),

		Footer: lipgloss.NewStyle().Foreground(ColorMuted).Padding(0, 1),
	}
}

// RenderState colors a phase state.
func (s Styles) RenderState(state types.PhaseState) string {
	switch state {
	case types.PhaseApproved:
		return s.Success.Render(string(state))
	case types.PhaseRejected:
		return s.Error.Render(string(state))
	case types.PhaseSubmittedForReview:
		return s.Warning.Render(string(state))
	case types.PhaseAwaitingWork:
		return s.Info.Render(string(state))
	}
	return s.Muted.Render(string(state))
}

// RenderOutcome colors text by verdict outcome.
func (s Styles) RenderOutcome(outcome types.VerdictOutcome, text string) string {
	if outcome == types.OutcomeApproved {
		return s.Success.Render(text)
	}
	return s.Error.Render(text)
}
