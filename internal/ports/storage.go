// Package ports defines the interfaces (driven and driving ports) between
// the focus core and the infrastructure around it: storage, AI breakdown,
// notifications, settings and clients.
package ports

import (
	"context"
	"time"

	"github.com/xvierd/stepflow/internal/domain"
)

// TaskRepository defines the interface for task persistence.
// This is a driven port (implemented by adapters).
type TaskRepository interface {
	// Save persists a new task together with its steps, assigning IDs to
	// the task and any step that has none.
	Save(ctx context.Context, task *domain.Task) error

	// FindByID retrieves a task and its ordered steps.
	FindByID(ctx context.Context, id string) (*domain.Task, error)

	// FindAll retrieves all tasks, optionally filtered by status.
	FindAll(ctx context.Context, status *domain.TaskStatus) ([]*domain.Task, error)

	// FindPending returns all tasks that are not completed.
	FindPending(ctx context.Context) ([]*domain.Task, error)

	// Search returns pending tasks whose title fuzzy-matches the query.
	Search(ctx context.Context, query string) ([]*domain.Task, error)

	// Update writes status, title, description and time spent.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task and its steps.
	Delete(ctx context.Context, id string) error
}

// StepRepository defines the interface for task step persistence.
type StepRepository interface {
	// Create persists a new step, assigning its ID.
	Create(ctx context.Context, step *domain.TaskStep) error

	// Update writes title, done flag and order of a step.
	Update(ctx context.Context, step *domain.TaskStep) error

	// Toggle sets the done flag of a step.
	Toggle(ctx context.Context, stepID string, done bool) error

	// Delete removes a step.
	Delete(ctx context.Context, stepID string) error

	// ListByTask returns the steps of a task by order index.
	ListByTask(ctx context.Context, taskID string) ([]*domain.TaskStep, error)

	// ResetAll clears the done flag on every step of a task.
	ResetAll(ctx context.Context, taskID string) error
}

// SessionRepository defines the interface for focus session persistence.
type SessionRepository interface {
	// Create persists a new session, assigning its ID.
	Create(ctx context.Context, session *domain.Session) error

	// Update writes the terminal outcome of a session.
	Update(ctx context.Context, session *domain.Session) error

	// FindByID retrieves a session by its unique identifier.
	FindByID(ctx context.Context, id string) (*domain.Session, error)

	// FindActive retrieves the most recent session that never ended.
	FindActive(ctx context.Context) (*domain.Session, error)

	// FindByTask retrieves all sessions associated with a task.
	FindByTask(ctx context.Context, taskID string) ([]*domain.Session, error)

	// FindRecent retrieves sessions started since the given time.
	FindRecent(ctx context.Context, since time.Time) ([]*domain.Session, error)

	// FindOrphaned returns unended sessions started before the cutoff.
	FindOrphaned(ctx context.Context, startedBefore time.Time) ([]*domain.Session, error)

	// CountCompletedSince counts completed sessions since the given time.
	CountCompletedSince(ctx context.Context, since time.Time) (int, error)
}

// StreakQuery answers how many consecutive days had focus activity.
type StreakQuery interface {
	CurrentStreak(ctx context.Context, now time.Time) (int, error)
}

// StateRepository stores small opaque client state blobs by key.
type StateRepository interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Storage is the combined repository interface.
// This is a driven port (implemented by adapters).
type Storage interface {
	Tasks() TaskRepository
	Steps() StepRepository
	Sessions() SessionRepository
	Streaks() StreakQuery
	State() StateRepository

	// Close closes the storage connection.
	Close() error

	// Migrate runs database migrations.
	Migrate() error
}
