package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xvierd/stepflow/internal/services"
)

// Run shows the focus screen until the user quits or ctx is cancelled.
// When ctx ends first the unload guard runs here, so callers always get
// the decision that was taken for the live session.
func Run(ctx context.Context, deps Deps) (services.UnloadDecision, error) {
	p := tea.NewProgram(NewModel(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil {
			return deps.Guard.OnUnload(), nil
		}
		return services.UnloadDecision{}, err
	}
	if m, ok := final.(Model); ok {
		return m.Unload(), nil
	}
	return services.UnloadDecision{}, nil
}
