package ports

import (
	"context"

	"github.com/xvierd/stepflow/internal/domain"
)

// Breakdowner splits a task into short actionable steps.
// Implementations may fail, time out or return nothing.
type Breakdowner interface {
	Breakdown(ctx context.Context, title, description string) ([]string, error)
}

// Notifier announces lifecycle moments. Calls are cosmetic; callers ignore
// failures.
type Notifier interface {
	SessionStarted(taskTitle string, minutes int) error
	SessionCompleted(summary domain.CompletionSummary) error
	BreakStarted(breakType domain.BreakType, minutes int) error
	BreakCompleted(breakType domain.BreakType) error
}

// SettingsProvider supplies the current user settings.
type SettingsProvider interface {
	Settings() domain.Settings
}

// Beacon delivers a best-effort, non-blocking end-of-session report when a
// client goes away.
type Beacon interface {
	Send(sessionID string, elapsedSeconds int, note string)
}
