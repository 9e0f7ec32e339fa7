package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xvierd/stepflow/internal/clock"
	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

// StateService implements ports.FocusProvider on top of the controller, the
// orchestrator and storage. It serves the MCP server and the HTTP API.
type StateService struct {
	storage ports.Storage
	tasks   *TaskService
	focus   *FocusController
	breaks  *BreakOrchestrator
	clock   clock.Clock
}

// NewStateService creates a new state service.
func NewStateService(storage ports.Storage, tasks *TaskService, focus *FocusController, breaks *BreakOrchestrator) *StateService {
	return &StateService{
		storage: storage,
		tasks:   tasks,
		focus:   focus,
		breaks:  breaks,
		clock:   clock.RealClock{},
	}
}

// SetClock replaces the clock used for history and streak queries.
func (s *StateService) SetClock(c clock.Clock) {
	s.clock = c
}

// GetCurrentState implements ports.FocusProvider.
func (s *StateService) GetCurrentState(ctx context.Context) (*domain.CurrentState, error) {
	state := s.focus.State()
	if streak, err := s.storage.Streaks().CurrentStreak(ctx, s.clock.Now()); err == nil {
		state.Streak = streak
	}
	return &state, nil
}

// ListTasks implements ports.FocusProvider.
func (s *StateService) ListTasks(ctx context.Context, status *domain.TaskStatus) ([]*domain.Task, error) {
	return s.tasks.ListTasks(ctx, ListTasksRequest{Status: status})
}

// GetTask implements ports.FocusProvider.
func (s *StateService) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if live := s.liveTask(id); live != nil {
		return s.tasks.Snapshot(live), nil
	}
	return s.tasks.GetTask(ctx, id)
}

// SearchTasks implements ports.FocusProvider.
func (s *StateService) SearchTasks(ctx context.Context, query string) ([]*domain.Task, error) {
	return s.tasks.SearchTasks(ctx, query)
}

// GetTaskHistory implements ports.FocusProvider.
func (s *StateService) GetTaskHistory(ctx context.Context, taskID string) ([]*domain.Session, error) {
	return s.storage.Sessions().FindByTask(ctx, taskID)
}

// GetRecentSessions implements ports.FocusProvider.
func (s *StateService) GetRecentSessions(ctx context.Context, within time.Duration, limit int) ([]*domain.Session, error) {
	sessions, err := s.storage.Sessions().FindRecent(ctx, s.clock.Now().Add(-within))
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(sessions) > limit {
		return sessions[:limit], nil
	}
	return sessions, nil
}

// GetStreak implements ports.FocusProvider.
func (s *StateService) GetStreak(ctx context.Context) (int, error) {
	return s.storage.Streaks().CurrentStreak(ctx, s.clock.Now())
}

// CreateTask implements ports.FocusProvider.
func (s *StateService) CreateTask(ctx context.Context, title, description string, steps []string, useAI bool) (*domain.Task, error) {
	return s.tasks.CreateTask(ctx, CreateTaskRequest{
		Title:       title,
		Description: description,
		Steps:       steps,
		UseAI:       useAI,
	})
}

// DeleteTask implements ports.FocusProvider.
func (s *StateService) DeleteTask(ctx context.Context, id string) error {
	if s.liveTask(id) != nil {
		return domain.ErrSessionAlreadyActive
	}
	return s.tasks.DeleteTask(ctx, id)
}

// CompleteTask implements ports.FocusProvider.
func (s *StateService) CompleteTask(ctx context.Context, id string) error {
	if s.liveTask(id) != nil {
		return domain.ErrSessionAlreadyActive
	}
	return s.tasks.CompleteTask(ctx, id)
}

// AddStep implements ports.FocusProvider.
func (s *StateService) AddStep(ctx context.Context, taskID, title string) (*domain.TaskStep, error) {
	task, err := s.editableTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.tasks.AddStep(task, title)
}

// ToggleStep implements ports.FocusProvider. Finishing the last open step
// of the running task completes the session.
func (s *StateService) ToggleStep(ctx context.Context, taskID, stepID string) (*domain.TaskStep, error) {
	task, err := s.editableTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.tasks.ToggleStep(task, stepID)
}

// EditStep implements ports.FocusProvider.
func (s *StateService) EditStep(ctx context.Context, taskID, stepID, title string) (*domain.TaskStep, error) {
	task, err := s.editableTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.tasks.EditStep(task, stepID, title)
}

// RemoveStep implements ports.FocusProvider.
func (s *StateService) RemoveStep(ctx context.Context, taskID, stepID string) error {
	task, err := s.editableTask(ctx, taskID)
	if err != nil {
		return err
	}
	return s.tasks.RemoveStep(task, stepID)
}

// StartSession implements ports.FocusProvider.
func (s *StateService) StartSession(ctx context.Context, taskID string) (*domain.Session, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, domain.ErrNoTask
	}
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return s.focus.Start(ctx, task)
}

// PauseSession implements ports.FocusProvider.
func (s *StateService) PauseSession(_ context.Context) error {
	return s.focus.Pause()
}

// ResumeSession implements ports.FocusProvider.
func (s *StateService) ResumeSession(_ context.Context) error {
	return s.focus.Resume()
}

// StopSession implements ports.FocusProvider.
func (s *StateService) StopSession(_ context.Context, reason string) (*domain.Session, error) {
	return s.focus.ConfirmStop(reason)
}

// LogDistraction implements ports.FocusProvider.
func (s *StateService) LogDistraction(_ context.Context, text string) error {
	return s.focus.LogDistraction(text)
}

// TakeBreak implements ports.FocusProvider.
func (s *StateService) TakeBreak(_ context.Context) error {
	return s.breaks.TakeBreak()
}

// EndBreak implements ports.FocusProvider.
func (s *StateService) EndBreak(_ context.Context) error {
	return s.breaks.EndBreak()
}

// ContinueTask implements ports.FocusProvider.
func (s *StateService) ContinueTask(ctx context.Context) (*domain.Session, error) {
	return s.breaks.ContinueTask(ctx)
}

// ResumeAfterBreak implements ports.FocusProvider.
func (s *StateService) ResumeAfterBreak(ctx context.Context) (*domain.Session, error) {
	return s.breaks.ResumeAfterBreak(ctx)
}

// DeclineResume implements ports.FocusProvider.
func (s *StateService) DeclineResume(_ context.Context) error {
	s.breaks.DeclineResume()
	return nil
}

// EndSessionByBeacon implements ports.FocusProvider. If the session is the
// one this process is running, the local countdown is dropped too.
func (s *StateService) EndSessionByBeacon(ctx context.Context, sessionID string, elapsedSeconds int, note string) error {
	if strings.TrimSpace(note) == "" {
		note = domain.NoteInterruptedByClose
	}
	if snap, ok := s.focus.unloadSnapshot(); ok && snap.SessionID == sessionID {
		s.focus.Detach()
	}
	return interruptSession(ctx, s.storage, sessionID, elapsedSeconds, note, s.clock.Now())
}

// liveTask returns the running session's task when it has the given ID.
func (s *StateService) liveTask(id string) *domain.Task {
	if live := s.focus.ActiveTask(); live != nil && live.ID == id {
		return live
	}
	return nil
}

func (s *StateService) editableTask(ctx context.Context, id string) (*domain.Task, error) {
	if live := s.liveTask(id); live != nil {
		return live, nil
	}
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

var _ ports.FocusProvider = (*StateService)(nil)
