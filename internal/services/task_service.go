// Package services implements the application layer (use cases)
// following hexagonal architecture principles.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

// DefaultBreakdownTimeout bounds one AI breakdown call.
const DefaultBreakdownTimeout = 20 * time.Second

// StepsListener is called when a local change leaves every step of a task
// done that was not before.
type StepsListener func(task *domain.Task)

// TaskService handles task and step use cases.
//
// Step edits are applied to the in-memory task first and mirrored to storage
// through the Syncer. Every mutation of a task held by a running session goes
// through this service so one lock covers it.
type TaskService struct {
	mu        sync.Mutex
	storage   ports.Storage
	syncer    *Syncer
	breakdown ports.Breakdowner
	logger    zerolog.Logger

	breakdownTimeout time.Duration
	listeners        []StepsListener
}

// NewTaskService creates a new task service.
func NewTaskService(storage ports.Storage, syncer *Syncer, logger zerolog.Logger) *TaskService {
	return &TaskService{
		storage:          storage,
		syncer:           syncer,
		logger:           logger.With().Str("component", "tasks").Logger(),
		breakdownTimeout: DefaultBreakdownTimeout,
	}
}

// SetBreakdowner sets the AI step generator. Nil disables it.
func (s *TaskService) SetBreakdowner(b ports.Breakdowner, timeout time.Duration) {
	s.breakdown = b
	if timeout > 0 {
		s.breakdownTimeout = timeout
	}
}

// OnStepsCompleted registers a listener for tasks whose last open step
// was just finished.
func (s *TaskService) OnStepsCompleted(fn StepsListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// CreateTaskRequest contains the data needed to create a new task.
type CreateTaskRequest struct {
	Title       string
	Description string
	Steps       []string
	UseAI       bool
}

// CreateTask validates and saves a new task. When UseAI is set and no steps
// were given, the breakdowner is asked for steps; if it fails or returns
// nothing the task is saved without steps and the caller must add them
// manually before a session can start.
func (s *TaskService) CreateTask(ctx context.Context, req CreateTaskRequest) (*domain.Task, error) {
	task, err := domain.NewTask(req.Title, req.Description, req.Steps)
	if err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	if req.UseAI && len(task.Steps) == 0 {
		for _, step := range s.suggestSteps(ctx, task.Title, task.Description) {
			_, _ = task.AddStep(step)
		}
	}

	if err := s.storage.Tasks().Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	return task, nil
}

// SuggestSteps asks the breakdowner for steps. Failures, timeouts and empty
// answers all yield nil.
func (s *TaskService) SuggestSteps(ctx context.Context, title, description string) []string {
	return s.suggestSteps(ctx, title, description)
}

func (s *TaskService) suggestSteps(ctx context.Context, title, description string) []string {
	if s.breakdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.breakdownTimeout)
	defer cancel()

	steps, err := s.breakdown.Breakdown(ctx, title, description)
	if err != nil {
		s.logger.Warn().Err(err).Str("title", title).Msg("AI breakdown failed, falling back to manual steps")
		return nil
	}
	if len(steps) == 0 {
		s.logger.Warn().Str("title", title).Msg("AI breakdown returned no steps")
	}
	return steps
}

// Persist saves a transient task so it gets a durable ID. Persisted tasks
// are left alone.
func (s *TaskService) Persist(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !task.IsTransient() {
		return nil
	}
	if err := s.storage.Tasks().Save(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// ListTasksRequest contains filters for listing tasks.
type ListTasksRequest struct {
	Status      *domain.TaskStatus
	OnlyPending bool
}

// ListTasks retrieves tasks based on filters.
func (s *TaskService) ListTasks(ctx context.Context, req ListTasksRequest) ([]*domain.Task, error) {
	if req.OnlyPending {
		return s.storage.Tasks().FindPending(ctx)
	}
	return s.storage.Tasks().FindAll(ctx, req.Status)
}

// GetTask retrieves a single task by ID.
func (s *TaskService) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return s.storage.Tasks().FindByID(ctx, id)
}

// SearchTasks fuzzy-matches pending tasks by title.
func (s *TaskService) SearchTasks(ctx context.Context, query string) ([]*domain.Task, error) {
	return s.storage.Tasks().Search(ctx, query)
}

// CompleteTask marks a stored task as completed.
func (s *TaskService) CompleteTask(ctx context.Context, id string) error {
	task, err := s.storage.Tasks().FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find task: %w", err)
	}

	task.Complete()
	return s.storage.Tasks().Update(ctx, task)
}

// DeleteTask removes a task.
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	return s.storage.Tasks().Delete(ctx, id)
}

// AddStep appends a step to the task.
func (s *TaskService) AddStep(task *domain.Task, title string) (*domain.TaskStep, error) {
	s.mu.Lock()
	wasDone := task.AllStepsDone()
	step, err := task.AddStep(title)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !task.IsTransient() {
		step.ID = domain.NewID()
		created := *step
		s.sync("create_step", task.ID, func(ctx context.Context) error {
			return s.storage.Steps().Create(ctx, &created)
		})
	}
	out := *step
	s.mu.Unlock()

	s.notifyIfCompleted(task, wasDone)
	return &out, nil
}

// ToggleStep flips the done flag of a step.
func (s *TaskService) ToggleStep(task *domain.Task, stepID string) (*domain.TaskStep, error) {
	s.mu.Lock()
	wasDone := task.AllStepsDone()
	step, err := task.ToggleStep(stepID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !task.IsTransient() {
		id, done := step.ID, step.Done
		s.sync("toggle_step", task.ID, func(ctx context.Context) error {
			return s.storage.Steps().Toggle(ctx, id, done)
		})
	}
	out := *step
	s.mu.Unlock()

	s.notifyIfCompleted(task, wasDone)
	return &out, nil
}

// EditStep renames a step.
func (s *TaskService) EditStep(task *domain.Task, stepID, title string) (*domain.TaskStep, error) {
	s.mu.Lock()
	wasDone := task.AllStepsDone()
	step, err := task.EditStep(stepID, title)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !task.IsTransient() {
		updated := *step
		s.sync("edit_step", task.ID, func(ctx context.Context) error {
			return s.storage.Steps().Update(ctx, &updated)
		})
	}
	out := *step
	s.mu.Unlock()

	s.notifyIfCompleted(task, wasDone)
	return &out, nil
}

// RemoveStep deletes a step.
func (s *TaskService) RemoveStep(task *domain.Task, stepID string) error {
	s.mu.Lock()
	wasDone := task.AllStepsDone()
	if err := task.RemoveStep(stepID); err != nil {
		s.mu.Unlock()
		return err
	}
	if !task.IsTransient() {
		s.sync("delete_step", task.ID, func(ctx context.Context) error {
			return s.storage.Steps().Delete(ctx, stepID)
		})
	}
	s.mu.Unlock()

	s.notifyIfCompleted(task, wasDone)
	return nil
}

// ResetSteps clears every done flag so the task can be worked end to end
// again.
func (s *TaskService) ResetSteps(task *domain.Task) {
	s.mu.Lock()
	task.ResetSteps()
	if task.Status == domain.StatusCompleted {
		task.Reopen()
		s.syncTaskLocked(task)
	}
	if !task.IsTransient() {
		id := task.ID
		s.sync("reset_steps", id, func(ctx context.Context) error {
			return s.storage.Steps().ResetAll(ctx, id)
		})
	}
	s.mu.Unlock()
}

// MarkStarted moves the task to in progress.
func (s *TaskService) MarkStarted(task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.Status != domain.StatusPending {
		return
	}
	task.Start()
	s.syncTaskLocked(task)
}

// CreditSession adds focused seconds to the task and completes it when all
// of its steps are done. It reports whether the task is now completed.
func (s *TaskService) CreditSession(task *domain.Task, seconds int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.AddTimeSpent(seconds)
	if task.AllStepsDone() && task.Status != domain.StatusCompleted {
		task.Complete()
	}
	s.syncTaskLocked(task)
	return task.Status == domain.StatusCompleted
}

// Progress returns the done and total step counts of the task.
func (s *TaskService) Progress(task *domain.Task) (done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return task.CompletedSteps(), len(task.Steps)
}

// AllStepsDone reports whether every step of the task is done.
func (s *TaskService) AllStepsDone(task *domain.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return task.AllStepsDone()
}

// Snapshot returns a deep copy of the task that callers may read freely.
func (s *TaskService) Snapshot(task *domain.Task) *domain.Task {
	if task == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *task
	cp.Steps = make([]*domain.TaskStep, len(task.Steps))
	for i, step := range task.Steps {
		st := *step
		cp.Steps[i] = &st
	}
	if task.CompletedAt != nil {
		at := *task.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

func (s *TaskService) syncTaskLocked(task *domain.Task) {
	if task.IsTransient() {
		return
	}
	cp := *task
	cp.Steps = nil
	s.sync("update_task", task.ID, func(ctx context.Context) error {
		return s.storage.Tasks().Update(ctx, &cp)
	})
}

func (s *TaskService) sync(name, taskID string, fn SyncFunc) {
	_ = s.syncer.Enqueue(name, map[string]string{"taskID": taskID}, fn)
}

func (s *TaskService) notifyIfCompleted(task *domain.Task, wasDone bool) {
	s.mu.Lock()
	nowDone := task.AllStepsDone()
	listeners := append([]StepsListener(nil), s.listeners...)
	s.mu.Unlock()
	if wasDone || !nowDone {
		return
	}

	for _, fn := range listeners {
		fn(task)
	}
}
