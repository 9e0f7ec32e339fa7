package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

func TestFocusController_StartWithoutTaskFailsFast(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.focus.Start(ctx, nil)
	require.ErrorIs(t, err, domain.ErrNoTask)

	state := h.focus.State()
	assert.Nil(t, state.ActiveSession)
	assert.Equal(t, domain.TimerState{}, state.Timer)

	recent, err := h.store.Sessions().FindRecent(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, recent, "no session record may be created")
	assert.Zero(t, h.notifier.started)
	assert.Zero(t, h.events.count(EventSessionStarted))
}

func TestFocusController_StartRequiresSteps(t *testing.T) {
	h := newHarness(t)

	task := h.newTask("No steps yet")
	_, err := h.focus.Start(context.Background(), task)
	assert.ErrorIs(t, err, domain.ErrNoSteps)
}

func TestFocusController_StartPersistsTransientTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := domain.NewTask("Draft blog post", "", []string{"outline", "write"})
	require.NoError(t, err)
	require.True(t, task.IsTransient())

	session, err := h.focus.Start(ctx, task)
	require.NoError(t, err)

	assert.False(t, task.IsTransient())
	require.NotNil(t, session.TaskID)
	assert.Equal(t, task.ID, *session.TaskID)
	assert.Equal(t, 1500, session.PlannedDuration)
	assert.Equal(t, 2, session.TotalSteps)

	stored := h.storedTask(task.ID)
	assert.Len(t, stored.Steps, 2)
	assert.Equal(t, domain.StatusInProgress, stored.Status)

	state := h.focus.State()
	require.NotNil(t, state.ActiveSession)
	assert.True(t, state.Timer.Running)
	assert.Equal(t, 1500, state.Timer.Remaining)
	assert.Equal(t, 1, h.notifier.started)
}

func TestFocusController_StartWhileActive(t *testing.T) {
	h := newHarness(t)
	task := h.newTask("Busy", "a")

	_, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)

	_, err = h.focus.Start(context.Background(), task)
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyActive)
}

func TestFocusController_SettingsReadAtStart(t *testing.T) {
	h := newHarness(t)
	h.settings.set(func(s *domain.Settings) { s.DefaultSessionDuration = 10 * time.Minute })
	task := h.newTask("Short", "a")

	session, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 600, session.PlannedDuration)

	h.settings.set(func(s *domain.Settings) { s.DefaultSessionDuration = 50 * time.Minute })
	assert.Equal(t, 600, h.focus.State().Timer.Total, "running countdown keeps its duration")
}

func TestFocusController_StopEarlyAccounting(t *testing.T) {
	h := newHarness(t)
	task := h.newTask("Write tests", "one", "two")

	session, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)

	h.advance(400 * time.Second)
	require.NoError(t, h.focus.RequestStop())
	assert.Equal(t, domain.PromptStopReason, h.focus.State().Prompt)

	stopped, err := h.focus.ConfirmStop("got distracted")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusSkipped, stopped.Status)

	stored := h.storedSession(session.ID)
	assert.Equal(t, domain.SessionStatusSkipped, stored.Status)
	assert.Equal(t, 400, stored.ActualDuration)
	assert.Contains(t, stored.Notes, "got distracted")
	require.NotNil(t, stored.EndedAt)
	assert.True(t, stored.EndedAt.Equal(h.clock.Now()))

	state := h.focus.State()
	assert.Nil(t, state.ActiveSession)
	assert.Nil(t, state.ActiveTask)
	assert.Equal(t, domain.PromptNone, state.Prompt)
}

func TestFocusController_CancelStopKeepsSession(t *testing.T) {
	h := newHarness(t)
	task := h.newTask("Keep going", "a")

	_, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)
	h.advance(60 * time.Second)

	require.NoError(t, h.focus.RequestStop())
	h.focus.CancelStop()

	state := h.focus.State()
	require.NotNil(t, state.ActiveSession)
	assert.Equal(t, domain.PromptNone, state.Prompt)
	assert.True(t, state.Timer.Running)
	assert.Equal(t, 1440, state.Timer.Remaining)
}

func TestFocusController_PauseDoesNotTouchStoredRow(t *testing.T) {
	h := newHarness(t)
	task := h.newTask("Pause me", "a")

	session, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)

	h.advance(100 * time.Second)
	require.NoError(t, h.focus.Pause())
	assert.Equal(t, domain.SessionStatusPaused, h.focus.State().ActiveSession.Status)

	stored := h.storedSession(session.ID)
	assert.Equal(t, domain.SessionStatusActive, stored.Status)

	h.clock.Advance(time.Hour)
	require.NoError(t, h.focus.Resume())
	h.advance(50 * time.Second)
	assert.Equal(t, 1350, h.focus.State().Timer.Remaining)
}

func TestFocusController_EndToEndWithPause(t *testing.T) {
	h := newHarness(t)
	task := h.newTask("Deep work", "a", "b")

	session, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)

	h.advance(1200 * time.Second)
	require.NoError(t, h.focus.Pause())
	h.clock.Advance(300 * time.Second)
	require.NoError(t, h.focus.Resume())
	h.advance(300 * time.Second)

	assert.Equal(t, 1, h.events.count(EventSessionCompleted))
	stored := h.storedSession(session.ID)
	assert.Equal(t, domain.SessionStatusCompleted, stored.Status)
	assert.Equal(t, 1500, stored.ActualDuration)
}

func TestFocusController_NaturalCompletion(t *testing.T) {
	h := newHarness(t)
	task := h.newTask("Complete me", "a", "b")

	session, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)
	_, err = h.tasks.ToggleStep(task, task.Steps[0].ID)
	require.NoError(t, err)

	h.advance(1500 * time.Second)

	stored := h.storedSession(session.ID)
	assert.Equal(t, domain.SessionStatusCompleted, stored.Status)
	assert.Equal(t, 1500, stored.ActualDuration, "completed sessions are credited the planned duration")
	assert.Equal(t, 1, stored.CompletedSteps)
	assert.Equal(t, 2, stored.TotalSteps)

	storedTask := h.storedTask(task.ID)
	assert.Equal(t, 1500, storedTask.TotalTimeSpent)
	assert.Equal(t, domain.StatusInProgress, storedTask.Status)

	state := h.focus.State()
	assert.Nil(t, state.ActiveSession)
	assert.Equal(t, domain.PromptCompletion, state.Prompt)
	require.NotNil(t, state.Summary)
	assert.Equal(t, "Complete me", state.Summary.TaskTitle)
	assert.Equal(t, 1, state.Summary.Streak)
	require.Len(t, h.notifier.completed, 1)
}

func TestFocusController_CompletionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	task := h.newTask("Once", "a")

	session, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)

	h.advance(1500 * time.Second)
	first := h.storedSession(session.ID)

	// A late step toggle and further ticks after completion change nothing.
	_, err = h.tasks.ToggleStep(task, task.Steps[0].ID)
	require.NoError(t, err)
	h.advance(10 * time.Second)

	_, err = h.focus.ConfirmStop("too late")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	second := h.storedSession(session.ID)
	assert.Equal(t, 1, h.events.count(EventSessionCompleted))
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.ActualDuration, second.ActualDuration)
	assert.Equal(t, first.Notes, second.Notes)
}

func TestFocusController_AutoCompletesWhenAllStepsDone(t *testing.T) {
	h := newHarness(t)
	h.settings.set(func(s *domain.Settings) { s.AutoStartBreaks = true })
	task := h.newTask("Auto", "a", "b")

	session, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)
	h.advance(200 * time.Second)

	_, err = h.tasks.ToggleStep(task, task.Steps[0].ID)
	require.NoError(t, err)
	assert.Zero(t, h.events.count(EventSessionCompleted))

	_, err = h.tasks.ToggleStep(task, task.Steps[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.events.count(EventSessionCompleted))

	stored := h.storedSession(session.ID)
	assert.Equal(t, domain.SessionStatusCompleted, stored.Status)
	assert.Equal(t, 1500, stored.ActualDuration)
	assert.Equal(t, 2, stored.CompletedSteps)

	storedTask := h.storedTask(task.ID)
	assert.Equal(t, domain.StatusCompleted, storedTask.Status)
	assert.Equal(t, 1500, storedTask.TotalTimeSpent)

	state := h.focus.State()
	assert.Equal(t, domain.PromptCelebration, state.Prompt, "celebration never auto-starts a break")
	assert.False(t, state.Break.Active)
	require.NotNil(t, state.Summary)
	assert.True(t, state.Summary.TaskCompleted)
}

func TestFocusController_AutoCompleteIgnoresOtherTasks(t *testing.T) {
	h := newHarness(t)
	active := h.newTask("Active", "a")
	other := h.newTask("Other", "x")

	_, err := h.focus.Start(context.Background(), active)
	require.NoError(t, err)

	_, err = h.tasks.ToggleStep(other, other.Steps[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, h.focus.State().ActiveSession)
}

func TestFocusController_EditsOnFinishedTaskKeepSessionRunning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.newTask("Already done", "a", "b")
	for _, step := range task.Steps {
		_, err := h.tasks.ToggleStep(task, step.ID)
		require.NoError(t, err)
	}

	_, err := h.focus.Start(ctx, task)
	require.NoError(t, err)
	h.advance(60 * time.Second)

	_, err = h.tasks.EditStep(task, task.Steps[0].ID, "a renamed")
	require.NoError(t, err)
	require.NoError(t, h.tasks.RemoveStep(task, task.Steps[1].ID))
	assert.Zero(t, h.events.count(EventSessionCompleted))
	state := h.focus.State()
	assert.True(t, state.IsSessionActive())

	added, err := h.tasks.AddStep(task, "c")
	require.NoError(t, err)
	assert.Zero(t, h.events.count(EventSessionCompleted))

	// Finishing the new step is a real transition to all done.
	_, err = h.tasks.ToggleStep(task, added.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.events.count(EventSessionCompleted))
}

func TestFocusController_PersistenceFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, func(s ports.Storage) ports.Storage { return failingStorage{s} })
	task := h.newTask("Offline", "a", "b")

	session, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)
	h.advance(1500 * time.Second)

	assert.Equal(t, domain.PromptCompletion, h.focus.State().Prompt)
	stored := h.storedSession(session.ID)
	assert.Equal(t, domain.SessionStatusActive, stored.Status, "the stored row stays stale")
}

func TestFocusController_LogDistraction(t *testing.T) {
	h := newHarness(t)
	task := h.newTask("Focus", "a")

	assert.ErrorIs(t, h.focus.LogDistraction("slack"), domain.ErrNoActiveSession)

	session, err := h.focus.Start(context.Background(), task)
	require.NoError(t, err)

	assert.ErrorIs(t, h.focus.LogDistraction("   "), domain.ErrEmptyDistraction)
	require.NoError(t, h.focus.LogDistraction("slack"))
	require.NoError(t, h.focus.LogDistraction("phone"))
	assert.Len(t, h.focus.State().ActiveSession.Distractions, 2)

	_, err = h.focus.ConfirmStop("")
	require.NoError(t, err)

	stored := h.storedSession(session.ID)
	require.Len(t, stored.Distractions, 2)
	assert.Equal(t, "slack", stored.Distractions[0].Text)
}

func TestFocusController_Reattach(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.newTask("Interrupted", "a")

	session := domain.NewSession(&task.ID, 1500, h.clock.Now().Add(-10*time.Minute))
	require.NoError(t, h.store.Sessions().Create(ctx, session))

	require.NoError(t, h.focus.Reattach(ctx, session, task))
	state := h.focus.State()
	require.NotNil(t, state.ActiveSession)
	assert.Equal(t, 900, state.Timer.Remaining)

	h.advance(900 * time.Second)
	assert.Equal(t, domain.SessionStatusCompleted, h.storedSession(session.ID).Status)
}

func TestFocusController_ReattachExpiredCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.newTask("Long gone", "a")

	session := domain.NewSession(&task.ID, 1500, h.clock.Now().Add(-time.Hour))
	require.NoError(t, h.store.Sessions().Create(ctx, session))

	require.NoError(t, h.focus.Reattach(ctx, session, task))
	assert.Nil(t, h.focus.State().ActiveSession)
	assert.Equal(t, domain.SessionStatusCompleted, h.storedSession(session.ID).Status)
}
