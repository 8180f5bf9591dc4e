package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/tasks"
	"github.com/desertthunder/cadence/internal/ui"
)

// useFileLogger redirects logs to $XDG_STATE_HOME/cadence/tui.log to avoid interfering with TUI rendering.
// The returned func restores the previous logger.
func (r *Runner) useFileLogger() (func(), error) {
	logPath, err := xdg.StateFile(filepath.Join("cadence", "tui.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve log path: %w", err)
	}
	fileLogger, err := shared.NewFileLogger(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, shared.ParseLogLevel(r.config.Log.Level))

	previous := r.logger
	r.SetLogger(fileLogger)
	return func() { r.SetLogger(previous) }, nil
}

// runTUI registers t and monitors the manager in the terminal UI until the user quits.
func (r *Runner) runTUI(ctx context.Context, s *session, t *tasks.Transaction) error {
	model := ui.NewModel(ctx, s.Manager)
	model.Follow(t)
	if err := t.Register(); err != nil {
		return err
	}

	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	// Quitting cancels everything, but the worker may still be winding down.
	<-t.Finished()
	return nil
}
