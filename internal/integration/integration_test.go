package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xvierd/stepflow/internal/adapters/notification"
	"github.com/xvierd/stepflow/internal/adapters/storage"
	"github.com/xvierd/stepflow/internal/clock"
	"github.com/xvierd/stepflow/internal/config"
	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
	"github.com/xvierd/stepflow/internal/services"
	"github.com/xvierd/stepflow/internal/timer"
)

// stack is one process worth of services over a shared database file.
type stack struct {
	store   ports.Storage
	syncer  *services.Syncer
	tasks   *services.TaskService
	focus   *services.FocusController
	breaks  *services.BreakOrchestrator
	state   *services.StateService
	cleanup *services.CleanupService
	guard   *services.UnloadGuard
}

type env struct {
	dbPath     string
	configPath string
	clock      *clock.Manual
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	return &env{
		dbPath:     filepath.Join(dir, "test.db"),
		configPath: filepath.Join(dir, "config.toml"),
		clock:      clock.NewManual(time.Date(2026, 4, 6, 9, 0, 0, 0, time.Local)),
	}
}

// open builds a fresh stack, as a new process would.
func (e *env) open(t *testing.T) *stack {
	t.Helper()

	store, err := storage.New(e.dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	cfg, err := config.LoadFrom(e.configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	logger := zerolog.Nop()
	notifier := notification.New(false)
	settings := config.NewProvider(e.configPath, cfg)

	s := &stack{store: store}
	s.syncer = services.NewSyncer(logger, 1, 0)
	s.tasks = services.NewTaskService(store, s.syncer, logger)
	s.focus = services.NewFocusController(store, s.tasks, s.syncer, settings, logger,
		services.WithFocusClock(e.clock),
		services.WithFocusTickInterval(0),
		services.WithNotifier(notifier),
	)
	s.breaks = services.NewBreakOrchestrator(s.focus, s.tasks, settings, notifier, logger,
		timer.WithTickInterval(0))
	s.breaks.SetStateStore(store.State(), s.syncer)
	s.state = services.NewStateService(store, s.tasks, s.focus, s.breaks)
	s.state.SetClock(e.clock)
	s.cleanup = services.NewCleanupService(store, e.clock, logger)
	s.guard = services.NewUnloadGuard(s.focus, services.NewStoreBeacon(store, s.syncer, e.clock))
	return s
}

// close flushes pending writes and releases the database.
func (s *stack) close(t *testing.T) {
	t.Helper()
	if err := s.syncer.Shutdown(context.Background()); err != nil {
		t.Fatalf("failed to flush writes: %v", err)
	}
	if err := s.store.Close(); err != nil {
		t.Fatalf("failed to close storage: %v", err)
	}
}

func (e *env) advance(s *stack, d time.Duration) {
	e.clock.Advance(d)
	s.focus.Tick()
}

// TestSessionSurvivesRestart covers a process that goes away mid-session
// without reporting and a later one that picks the session up again.
func TestSessionSurvivesRestart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first := e.open(t)
	task, err := first.state.CreateTask(ctx, "Refactor parser", "", []string{"lexer", "grammar", "tests"}, false)
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	session, err := first.state.StartSession(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	live := first.focus.ActiveTask()
	if _, err := first.tasks.ToggleStep(live, live.Steps[0].ID); err != nil {
		t.Fatalf("failed to toggle step: %v", err)
	}
	e.advance(first, 10*time.Minute)
	first.close(t)

	second := e.open(t)
	defer second.close(t)

	active, err := second.store.Sessions().FindActive(ctx)
	if err != nil {
		t.Fatalf("failed to find active session: %v", err)
	}
	if active == nil || active.ID != session.ID {
		t.Fatalf("expected session %s to still be active, got %+v", session.ID, active)
	}
	stored, err := second.tasks.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to load task: %v", err)
	}
	if !stored.Steps[0].Done {
		t.Error("expected the first step to stay done across the restart")
	}

	if err := second.focus.Reattach(ctx, active, stored); err != nil {
		t.Fatalf("failed to reattach: %v", err)
	}
	if remaining := second.focus.State().Timer.Remaining; remaining != 900 {
		t.Errorf("expected 900s remaining, got %d", remaining)
	}

	e.advance(second, 15*time.Minute)
	state := second.focus.State()
	if state.Prompt != domain.PromptCompletion {
		t.Errorf("expected completion prompt, got %q", state.Prompt)
	}
	second.syncer.Drain()

	done, err := second.store.Sessions().FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if done.Status != domain.SessionStatusCompleted {
		t.Errorf("expected completed, got %v", done.Status)
	}
	if done.ActualDuration != 1500 {
		t.Errorf("expected actual duration 1500, got %d", done.ActualDuration)
	}
	if done.CompletedSteps != 1 || done.TotalSteps != 3 {
		t.Errorf("expected 1/3 steps, got %d/%d", done.CompletedSteps, done.TotalSteps)
	}

	credited, err := second.tasks.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to load task: %v", err)
	}
	if credited.TotalTimeSpent != 1500 {
		t.Errorf("expected 1500s credited to the task, got %d", credited.TotalTimeSpent)
	}
}

// TestUnloadMarksSessionInterrupted covers a client closing while the
// countdown runs.
func TestUnloadMarksSessionInterrupted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	s := e.open(t)
	defer s.close(t)

	task, err := s.state.CreateTask(ctx, "Inbox zero", "", []string{"archive"}, false)
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	session, err := s.state.StartSession(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	e.advance(s, 5*time.Minute)

	decision := s.guard.OnUnload()
	if !decision.Beacon || decision.Elapsed != 300 {
		t.Fatalf("expected a beacon with 300s, got %+v", decision)
	}
	s.syncer.Drain()

	stored, err := s.store.Sessions().FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if stored.Status != domain.SessionStatusSkipped {
		t.Errorf("expected skipped, got %v", stored.Status)
	}
	if stored.ActualDuration != 300 {
		t.Errorf("expected 300s, got %d", stored.ActualDuration)
	}
	if stored.Notes != domain.NoteInterruptedByClose {
		t.Errorf("unexpected notes %q", stored.Notes)
	}

	active, err := s.store.Sessions().FindActive(ctx)
	if err != nil {
		t.Fatalf("failed to check active session: %v", err)
	}
	if active != nil {
		t.Error("expected no active session after unload")
	}

	// A second report for the same session changes nothing.
	if err := s.state.EndSessionByBeacon(ctx, session.ID, 900, ""); err != nil {
		t.Fatalf("repeated beacon failed: %v", err)
	}
	again, _ := s.store.Sessions().FindByID(ctx, session.ID)
	if again.ActualDuration != 300 {
		t.Errorf("expected the first report to stand, got %d", again.ActualDuration)
	}
}

// TestCycleAndOrphansAcrossRestart covers the long-break count and orphan
// sweep that a new process performs on startup.
func TestCycleAndOrphansAcrossRestart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := config.Set(e.configPath, "focus.sessions_before_long", "2"); err != nil {
		t.Fatalf("failed to set config: %v", err)
	}

	first := e.open(t)
	task, err := first.state.CreateTask(ctx, "Write tests", "", []string{"unit", "integration"}, false)
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	if _, err := first.state.StartSession(ctx, task.ID); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	e.advance(first, 25*time.Minute)
	if got := first.breaks.Cycle(); got != 1 {
		t.Fatalf("expected cycle 1, got %d", got)
	}
	if err := first.state.DeclineResume(ctx); err != nil {
		t.Fatalf("failed to dismiss: %v", err)
	}
	first.breaks.Dismiss()

	orphan, err := first.state.StartSession(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to start second session: %v", err)
	}
	first.close(t)

	e.clock.Advance(2 * time.Hour)
	second := e.open(t)
	defer second.close(t)

	if err := second.breaks.RestoreCycle(ctx); err != nil {
		t.Fatalf("failed to restore cycle: %v", err)
	}
	if got := second.breaks.Cycle(); got != 1 {
		t.Errorf("expected restored cycle 1, got %d", got)
	}

	swept, err := second.cleanup.SweepOrphans(ctx, services.DefaultOrphanGrace, "")
	if err != nil {
		t.Fatalf("failed to sweep: %v", err)
	}
	if len(swept) != 1 || swept[0].ID != orphan.ID {
		t.Fatalf("expected session %s to be swept, got %d sessions", orphan.ID, len(swept))
	}
	if swept[0].ActualDuration != 0 || swept[0].Notes != domain.NoteOrphaned {
		t.Errorf("unexpected sweep result: %+v", swept[0])
	}

	history, err := second.state.GetTaskHistory(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to load history: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 sessions in history, got %d", len(history))
	}
}
