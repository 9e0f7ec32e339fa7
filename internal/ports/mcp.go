package ports

import (
	"context"
	"time"

	"github.com/xvierd/stepflow/internal/domain"
)

// MCPHandler defines the interface for MCP server operations.
// This is a driving port (called by the application layer).
type MCPHandler interface {
	// Start begins serving MCP requests.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the server.
	Stop() error

	// IsRunning returns true if the server is active.
	IsRunning() bool
}

// FocusProvider is the application facade used by the MCP server and the
// HTTP API. It is implemented by the services layer.
type FocusProvider interface {
	// GetCurrentState returns the state a client renders.
	GetCurrentState(ctx context.Context) (*domain.CurrentState, error)

	// ListTasks returns all tasks, optionally filtered.
	ListTasks(ctx context.Context, status *domain.TaskStatus) ([]*domain.Task, error)

	// GetTask returns a task with its steps. The live copy is returned when
	// the task is bound to the running session.
	GetTask(ctx context.Context, id string) (*domain.Task, error)

	// SearchTasks fuzzy-matches pending task titles.
	SearchTasks(ctx context.Context, query string) ([]*domain.Task, error)

	// GetTaskHistory returns session history for a specific task.
	GetTaskHistory(ctx context.Context, taskID string) ([]*domain.Session, error)

	// GetRecentSessions returns sessions started within the given window
	// before the provider's current time.
	GetRecentSessions(ctx context.Context, within time.Duration, limit int) ([]*domain.Session, error)

	// GetStreak returns the current streak in days.
	GetStreak(ctx context.Context) (int, error)

	CreateTask(ctx context.Context, title, description string, steps []string, useAI bool) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	CompleteTask(ctx context.Context, id string) error

	AddStep(ctx context.Context, taskID, title string) (*domain.TaskStep, error)
	ToggleStep(ctx context.Context, taskID, stepID string) (*domain.TaskStep, error)
	EditStep(ctx context.Context, taskID, stepID, title string) (*domain.TaskStep, error)
	RemoveStep(ctx context.Context, taskID, stepID string) error

	StartSession(ctx context.Context, taskID string) (*domain.Session, error)
	PauseSession(ctx context.Context) error
	ResumeSession(ctx context.Context) error
	StopSession(ctx context.Context, reason string) (*domain.Session, error)
	LogDistraction(ctx context.Context, text string) error

	TakeBreak(ctx context.Context) error
	EndBreak(ctx context.Context) error
	ContinueTask(ctx context.Context) (*domain.Session, error)
	ResumeAfterBreak(ctx context.Context) (*domain.Session, error)
	DeclineResume(ctx context.Context) error

	// EndSessionByBeacon records an interrupted session reported by a
	// client that is going away.
	EndSessionByBeacon(ctx context.Context, sessionID string, elapsedSeconds int, note string) error
}
