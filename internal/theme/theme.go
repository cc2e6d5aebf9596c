package theme

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme captures the lipgloss styles used across the TUI.
type Theme struct {
	Message    lipgloss.Style
	Header     lipgloss.Style
	StepActive lipgloss.Style
	StepDone   lipgloss.Style
	Dim        lipgloss.Style
	Title      lipgloss.Style
	Label      lipgloss.Style
	User       lipgloss.Style
	Assistant  lipgloss.Style
	Status     lipgloss.Style
	Notice     lipgloss.Style
	Error      lipgloss.Style
}

// Default is the canonical name of the built-in default theme.
const Default = "default"

var themes = map[string]Theme{
	Default: {
		Message:    lipgloss.NewStyle().Foreground(lipgloss.Color("69")),
		Header:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		StepActive: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		StepDone:   lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		Dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		Label:      lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Italic(true),
		User:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Assistant:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
		Status:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Notice:     lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	},
	"high_contrast": {
		Message:    lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true),
		Header:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		StepActive: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		StepDone:   lipgloss.NewStyle().Foreground(lipgloss.Color("118")).Bold(true),
		Dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		Title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
		Label:      lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Italic(true),
		User:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33")),
		Assistant:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("201")),
		Status:     lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		Notice:     lipgloss.NewStyle().Foreground(lipgloss.Color("118")).Bold(true),
		Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	},
}

// Names returns the sorted list of available theme names.
func Names() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForName returns the theme with the provided name, defaulting if unknown.
func ForName(name string) Theme {
	key := strings.ToLower(strings.TrimSpace(name))
	if theme, ok := themes[key]; ok {
		return theme
	}
	return themes[Default]
}
