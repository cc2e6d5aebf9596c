// Package tui is the terminal front end for the note wizard.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"podnote/internal/app"
)

// Run starts the interactive wizard session.
func Run(ctx context.Context, application *app.App) error {
	program := tea.NewProgram(newModel(ctx, application), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
