// Package domain contains the core business entities for stepflow.
// These entities represent tasks broken into small steps and the focus
// sessions run against them, independent of storage or presentation.
package domain

import (
	"errors"
	"strings"
	"time"
)

// Common domain errors.
var (
	ErrInvalidTaskID        = errors.New("invalid task ID")
	ErrEmptyTaskTitle       = errors.New("task title cannot be empty")
	ErrEmptyStepTitle       = errors.New("step title cannot be empty")
	ErrTaskNotFound         = errors.New("task not found")
	ErrStepNotFound         = errors.New("step not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrNoTask               = errors.New("cannot start a session without a task")
	ErrNoSteps              = errors.New("task needs at least one step before a session can start")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrSessionAlreadyActive = errors.New("session already active")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionTerminal      = errors.New("session already ended")
	ErrInvalidStatus        = errors.New("invalid session status")
	ErrBreakActive          = errors.New("break in progress")
	ErrNoBreak              = errors.New("no break in progress")
	ErrNothingToResume      = errors.New("no task to resume")
	ErrEmptyDistraction     = errors.New("distraction text cannot be empty")
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

// TaskStep is one small, actionable unit of a task.
type TaskStep struct {
	ID         string
	TaskID     string
	Title      string
	Done       bool
	OrderIndex int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Task represents a unit of work broken into ordered steps.
type Task struct {
	ID             string
	Title          string
	Description    string
	Status         TaskStatus
	TotalTimeSpent int // seconds
	Steps          []*TaskStep
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// NewTask creates a transient task with the given title and steps.
// The task has no ID until it is saved.
func NewTask(title, description string, steps []string) (*Task, error) {
	title = strings.TrimSpace(title)
	if err := validateTaskTitle(title); err != nil {
		return nil, err
	}

	now := time.Now()
	task := &Task{
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      StatusPending,
		Steps:       []*TaskStep{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// Blank step titles are dropped.
	for _, s := range steps {
		_, _ = task.AddStep(s)
	}
	return task, nil
}

// validateTaskTitle ensures the title is not empty.
func validateTaskTitle(title string) error {
	if title == "" {
		return ErrEmptyTaskTitle
	}
	return nil
}

// IsTransient reports whether the task has not been persisted yet.
func (t *Task) IsTransient() bool {
	return t.ID == ""
}

// Start marks the task as in progress.
func (t *Task) Start() {
	if t.Status == StatusCompleted {
		return
	}
	t.Status = StatusInProgress
	t.UpdatedAt = time.Now()
}

// Complete marks the task as completed.
func (t *Task) Complete() {
	now := time.Now()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// Reopen moves a completed task back to in progress.
func (t *Task) Reopen() {
	t.Status = StatusInProgress
	t.CompletedAt = nil
	t.UpdatedAt = time.Now()
}

// AddTimeSpent credits focused seconds to the task.
func (t *Task) AddTimeSpent(seconds int) {
	if seconds <= 0 {
		return
	}
	t.TotalTimeSpent += seconds
	t.UpdatedAt = time.Now()
}

// AddStep appends a step at the end of the task.
func (t *Task) AddStep(title string) (*TaskStep, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyStepTitle
	}
	now := time.Now()
	step := &TaskStep{
		TaskID:     t.ID,
		Title:      title,
		OrderIndex: len(t.Steps),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.Steps = append(t.Steps, step)
	t.UpdatedAt = now
	return step, nil
}

// Step returns the step with the given ID.
func (t *Task) Step(id string) (*TaskStep, error) {
	for _, s := range t.Steps {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, ErrStepNotFound
}

// StepAt returns the step at the given zero-based position.
func (t *Task) StepAt(index int) (*TaskStep, error) {
	if index < 0 || index >= len(t.Steps) {
		return nil, ErrStepNotFound
	}
	return t.Steps[index], nil
}

// ToggleStep flips the done flag of a step.
func (t *Task) ToggleStep(id string) (*TaskStep, error) {
	step, err := t.Step(id)
	if err != nil {
		return nil, err
	}
	step.Done = !step.Done
	step.UpdatedAt = time.Now()
	t.UpdatedAt = step.UpdatedAt
	return step, nil
}

// EditStep renames a step.
func (t *Task) EditStep(id, title string) (*TaskStep, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyStepTitle
	}
	step, err := t.Step(id)
	if err != nil {
		return nil, err
	}
	step.Title = title
	step.UpdatedAt = time.Now()
	t.UpdatedAt = step.UpdatedAt
	return step, nil
}

// RemoveStep deletes a step and renumbers the remaining ones.
func (t *Task) RemoveStep(id string) error {
	idx := -1
	for i, s := range t.Steps {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrStepNotFound
	}
	t.Steps = append(t.Steps[:idx], t.Steps[idx+1:]...)
	for i, s := range t.Steps {
		s.OrderIndex = i
	}
	t.UpdatedAt = time.Now()
	return nil
}

// ResetSteps clears the done flag on every step.
func (t *Task) ResetSteps() {
	now := time.Now()
	for _, s := range t.Steps {
		s.Done = false
		s.UpdatedAt = now
	}
	t.UpdatedAt = now
}

// CompletedSteps returns how many steps are done.
func (t *Task) CompletedSteps() int {
	n := 0
	for _, s := range t.Steps {
		if s.Done {
			n++
		}
	}
	return n
}

// AllStepsDone reports whether the task has steps and all of them are done.
func (t *Task) AllStepsDone() bool {
	if len(t.Steps) == 0 {
		return false
	}
	return t.CompletedSteps() == len(t.Steps)
}

// IsActive returns true if the task is currently being worked on.
func (t *Task) IsActive() bool {
	return t.Status == StatusInProgress
}
