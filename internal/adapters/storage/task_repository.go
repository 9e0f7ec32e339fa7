package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

const taskColumns = `id, title, description, status, total_time_spent, created_at, updated_at, completed_at`

// taskRepository implements ports.TaskRepository using SQLite.
type taskRepository struct {
	db *sql.DB
}

// newTaskRepository creates a new task repository.
func newTaskRepository(db *sql.DB) ports.TaskRepository {
	return &taskRepository{db: db}
}

// Save persists a task and its steps in one transaction.
func (r *taskRepository) Save(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = domain.NewID()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.Title,
		task.Description,
		string(task.Status),
		task.TotalTimeSpent,
		utc(task.CreatedAt),
		utc(task.UpdatedAt),
		utcPtr(task.CompletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("task %s already exists: %w", task.ID, domain.ErrInvalidTaskID)
		}
		return fmt.Errorf("failed to save task: %w", err)
	}

	for i, step := range task.Steps {
		if step.ID == "" {
			step.ID = domain.NewID()
		}
		step.TaskID = task.ID
		step.OrderIndex = i
		if err := insertStep(ctx, tx, step); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task: %w", err)
	}
	return nil
}

// FindByID retrieves a task by its unique identifier.
func (r *taskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	if err := r.attachSteps(ctx, []*domain.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

// FindAll retrieves all tasks, optionally filtered by status.
func (r *taskRepository) FindAll(ctx context.Context, status *domain.TaskStatus) ([]*domain.Task, error) {
	var query string
	var args []interface{}

	if status != nil {
		query = `SELECT ` + taskColumns + ` FROM tasks WHERE status = ? ORDER BY created_at DESC`
		args = append(args, string(*status))
	} else {
		query = `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC`
	}

	return r.queryTasks(ctx, query, args...)
}

// FindPending returns all tasks that are not completed, in-progress first.
func (r *taskRepository) FindPending(ctx context.Context) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status != ?
		ORDER BY
			CASE status
				WHEN 'in_progress' THEN 0
				WHEN 'pending' THEN 1
				ELSE 2
			END,
			updated_at DESC
	`

	return r.queryTasks(ctx, query, string(domain.StatusCompleted))
}

// Search does a fuzzy search over pending task titles, best match first.
func (r *taskRepository) Search(ctx context.Context, query string) ([]*domain.Task, error) {
	tasks, err := r.FindPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks for fuzzy search: %w", err)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return tasks, nil
	}

	titles := make([]string, len(tasks))
	for i, task := range tasks {
		titles[i] = task.Title
	}

	matches := fuzzy.Find(query, titles)

	result := make([]*domain.Task, 0, len(matches))
	for _, match := range matches {
		result = append(result, tasks[match.Index])
	}
	return result, nil
}

// Update writes the mutable task fields. Steps are stored separately.
func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	query := `
		UPDATE tasks
		SET title = ?, description = ?, status = ?, total_time_spent = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`

	task.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		task.Title,
		task.Description,
		string(task.Status),
		task.TotalTimeSpent,
		utc(task.UpdatedAt),
		utcPtr(task.CompletedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// Delete removes a task; its steps go with it.
func (r *taskRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// queryTasks runs a task query and loads the steps of every row. Rows are
// closed before the step query since the pool holds one connection.
func (r *taskRepository) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := r.attachSteps(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) attachSteps(ctx context.Context, tasks []*domain.Task) error {
	for _, task := range tasks {
		steps, err := listSteps(ctx, r.db, task.ID)
		if err != nil {
			return err
		}
		task.Steps = steps
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var completedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.TotalTimeSpent,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	task.Steps = []*domain.TaskStep{}
	return &task, nil
}
