package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// stepRepository implements ports.StepRepository using SQLite.
type stepRepository struct {
	db *sql.DB
}

// newStepRepository creates a new step repository.
func newStepRepository(db *sql.DB) ports.StepRepository {
	return &stepRepository{db: db}
}

// Create persists a new step. A step without an ID gets one.
func (r *stepRepository) Create(ctx context.Context, step *domain.TaskStep) error {
	if step.ID == "" {
		step.ID = domain.NewID()
	}
	return insertStep(ctx, r.db, step)
}

// Update writes title, done flag and order of a step.
func (r *stepRepository) Update(ctx context.Context, step *domain.TaskStep) error {
	step.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE task_steps SET title = ?, done = ?, order_index = ?, updated_at = ?
		WHERE id = ?
	`, step.Title, step.Done, step.OrderIndex, utc(step.UpdatedAt), step.ID)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}
	return requireRow(result, domain.ErrStepNotFound)
}

// Toggle sets the done flag of a step.
func (r *stepRepository) Toggle(ctx context.Context, stepID string, done bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE task_steps SET done = ?, updated_at = ? WHERE id = ?
	`, done, utc(time.Now()), stepID)
	if err != nil {
		return fmt.Errorf("failed to toggle step: %w", err)
	}
	return requireRow(result, domain.ErrStepNotFound)
}

// Delete removes a step and closes the gap in the order of its siblings.
func (r *stepRepository) Delete(ctx context.Context, stepID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var taskID string
	var order int
	err = tx.QueryRowContext(ctx, `SELECT task_id, order_index FROM task_steps WHERE id = ?`, stepID).
		Scan(&taskID, &order)
	if err == sql.ErrNoRows {
		return domain.ErrStepNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to find step: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_steps WHERE id = ?`, stepID); err != nil {
		return fmt.Errorf("failed to delete step: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE task_steps SET order_index = order_index - 1
		WHERE task_id = ? AND order_index > ?
	`, taskID, order); err != nil {
		return fmt.Errorf("failed to renumber steps: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step delete: %w", err)
	}
	return nil
}

// ListByTask returns the steps of a task in order.
func (r *stepRepository) ListByTask(ctx context.Context, taskID string) ([]*domain.TaskStep, error) {
	return listSteps(ctx, r.db, taskID)
}

// ResetAll clears the done flag on every step of a task.
func (r *stepRepository) ResetAll(ctx context.Context, taskID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE task_steps SET done = 0, updated_at = ? WHERE task_id = ?
	`, utc(time.Now()), taskID)
	if err != nil {
		return fmt.Errorf("failed to reset steps: %w", err)
	}
	return nil
}

func insertStep(ctx context.Context, db execer, step *domain.TaskStep) error {
	now := time.Now()
	if step.CreatedAt.IsZero() {
		step.CreatedAt = now
	}
	if step.UpdatedAt.IsZero() {
		step.UpdatedAt = now
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO task_steps (id, task_id, title, done, order_index, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		step.ID,
		step.TaskID,
		step.Title,
		step.Done,
		step.OrderIndex,
		utc(step.CreatedAt),
		utc(step.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("step %s already exists: %w", step.ID, domain.ErrInvalidTaskID)
		}
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

func listSteps(ctx context.Context, db *sql.DB, taskID string) ([]*domain.TaskStep, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, task_id, title, done, order_index, created_at, updated_at
		FROM task_steps
		WHERE task_id = ?
		ORDER BY order_index ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	steps := []*domain.TaskStep{}
	for rows.Next() {
		var step domain.TaskStep
		if err := rows.Scan(
			&step.ID,
			&step.TaskID,
			&step.Title,
			&step.Done,
			&step.OrderIndex,
			&step.CreatedAt,
			&step.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, &step)
	}
	return steps, rows.Err()
}

func requireRow(result sql.Result, notFound error) error {
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
