// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the claudechat TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// COLOR PALETTES
// =============================================================================

// palette holds the semantic colors a theme is built from.
type palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Success   lipgloss.Color
	Surface   lipgloss.Color
	Border    lipgloss.Color
}

var darkPalette = palette{
	Primary:   lipgloss.Color("#c2703d"), // terracotta
	Secondary: lipgloss.Color("#7aa2f7"),
	Text:      lipgloss.Color("#c0caf5"),
	Muted:     lipgloss.Color("#565f89"),
	Error:     lipgloss.Color("#f7768e"),
	Warning:   lipgloss.Color("#e0af68"),
	Success:   lipgloss.Color("#9ece6a"),
	Surface:   lipgloss.Color("#1a1b26"),
	Border:    lipgloss.Color("#3b4261"),
}

var lightPalette = palette{
	Primary:   lipgloss.Color("#b15c2e"),
	Secondary: lipgloss.Color("#2e5cb1"),
	Text:      lipgloss.Color("#343b58"),
	Muted:     lipgloss.Color("#8990b3"),
	Error:     lipgloss.Color("#8c4351"),
	Warning:   lipgloss.Color("#8f5e15"),
	Success:   lipgloss.Color("#485e30"),
	Surface:   lipgloss.Color("#e1e2e7"),
	Border:    lipgloss.Color("#a8aecb"),
}

// =============================================================================
// THEME
// =============================================================================

// Theme holds the styled components for the application.
type Theme struct {
	ColorProfile termenv.Profile
	IsDark       bool

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	// Message bubbles
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserBubble     lipgloss.Style
	Assistant      lipgloss.Style
	ErrorBox       lipgloss.Style
	CancelledNote  lipgloss.Style
	Timestamp      lipgloss.Style

	// Input area
	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// Status bar
	StatusBar    lipgloss.Style
	StatusKey    lipgloss.Style
	StatusDesc   lipgloss.Style
	StatusTokens lipgloss.Style
	StatusCost   lipgloss.Style

	// Spinner / streaming state
	Spinner      lipgloss.Style
	ThinkingText lipgloss.Style

	// History overlay
	HistoryBox      lipgloss.Style
	HistoryTitle    lipgloss.Style
	HistoryItem     lipgloss.Style
	HistorySelected lipgloss.Style
	HistoryMeta     lipgloss.Style
}

// NewTheme builds a theme for the named variant ("dark" or "light"),
// detecting the terminal's color capability.
func NewTheme(name string) *Theme {
	p := darkPalette
	isDark := true
	if name == "light" {
		p = lightPalette
		isDark = false
	}

	t := &Theme{
		ColorProfile: termenv.ColorProfile(),
		IsDark:       isDark,
	}

	t.Header = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(p.Border).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(p.Primary)
	t.HeaderModel = lipgloss.NewStyle().Foreground(p.Muted)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(p.Secondary)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(p.Primary)
	t.UserBubble = lipgloss.NewStyle().Foreground(p.Text)
	t.Assistant = lipgloss.NewStyle().Foreground(p.Text)
	t.ErrorBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(p.Error).
		Foreground(p.Error).
		Padding(0, 1)
	t.CancelledNote = lipgloss.NewStyle().Italic(true).Foreground(p.Warning)
	t.Timestamp = lipgloss.NewStyle().Foreground(p.Muted)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(p.Border).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().Bold(true).Foreground(p.Primary)

	t.StatusBar = lipgloss.NewStyle().Foreground(p.Muted)
	t.StatusKey = lipgloss.NewStyle().Bold(true).Foreground(p.Secondary)
	t.StatusDesc = lipgloss.NewStyle().Foreground(p.Muted)
	t.StatusTokens = lipgloss.NewStyle().Foreground(p.Success)
	t.StatusCost = lipgloss.NewStyle().Bold(true).Foreground(p.Warning)

	t.Spinner = lipgloss.NewStyle().Foreground(p.Primary)
	t.ThinkingText = lipgloss.NewStyle().Italic(true).Foreground(p.Muted)

	t.HistoryBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(p.Border).
		Padding(1, 2)
	t.HistoryTitle = lipgloss.NewStyle().Bold(true).Foreground(p.Primary)
	t.HistoryItem = lipgloss.NewStyle().Foreground(p.Text)
	t.HistorySelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(p.Surface).
		Background(p.Primary)
	t.HistoryMeta = lipgloss.NewStyle().Foreground(p.Muted)

	return t
}

// GlamourStyle returns the glamour style name matching the theme variant.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}
