package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
	"github.com/xvierd/stepflow/internal/timer"
)

// NextAction is what follows a completed focus session.
type NextAction int

const (
	// ActionCelebrate shows the celebration prompt. Never starts a break.
	ActionCelebrate NextAction = iota
	// ActionStartBreak starts a break right away.
	ActionStartBreak
	// ActionPrompt shows the completion prompt: continue or take a break.
	ActionPrompt
)

// Decide picks the transition after a completed session.
func Decide(summary domain.CompletionSummary, settings domain.Settings) NextAction {
	switch {
	case summary.TaskCompleted:
		return ActionCelebrate
	case settings.AutoStartBreaks:
		return ActionStartBreak
	default:
		return ActionPrompt
	}
}

// BreakOrchestrator runs the break timer and the prompts between sessions.
// It borrows the task of the last session to resume it later; the focus
// controller stays its owner.
type BreakOrchestrator struct {
	mu       sync.Mutex
	focus    *FocusController
	tasks    *TaskService
	settings ports.SettingsProvider
	notifier ports.Notifier
	logger   zerolog.Logger
	timer    *timer.BreakTimer

	prompt     domain.Prompt
	summary    *domain.CompletionSummary
	lastTask   *domain.Task
	resumeTask *domain.Task
	cycle      int

	state  ports.StateRepository
	syncer *Syncer
}

const cycleStateKey = "break_cycle"

type cycleState struct {
	Cycle int `json:"cycle"`
}

// NewBreakOrchestrator creates an orchestrator and hooks it into focus.
// Timer options apply to the break timer.
func NewBreakOrchestrator(
	focus *FocusController,
	tasks *TaskService,
	settings ports.SettingsProvider,
	notifier ports.Notifier,
	logger zerolog.Logger,
	opts ...timer.Option,
) *BreakOrchestrator {
	o := &BreakOrchestrator{
		focus:    focus,
		tasks:    tasks,
		settings: settings,
		notifier: notifier,
		logger:   logger.With().Str("component", "breaks").Logger(),
	}
	o.timer = timer.NewBreakTimer(o, opts...)
	focus.setBreakHandler(o)
	return o
}

// SetStateStore makes the session count toward the next long break survive
// restarts. Writes go through syncer.
func (o *BreakOrchestrator) SetStateStore(repo ports.StateRepository, syncer *Syncer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = repo
	o.syncer = syncer
}

// RestoreCycle loads the saved session count. A missing value leaves the
// count at zero.
func (o *BreakOrchestrator) RestoreCycle(ctx context.Context) error {
	o.mu.Lock()
	repo := o.state
	o.mu.Unlock()
	if repo == nil {
		return nil
	}

	raw, err := repo.Load(ctx, cycleStateKey)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	var st cycleState
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("failed to decode break cycle: %w", err)
	}

	o.mu.Lock()
	o.cycle = st.Cycle
	o.mu.Unlock()
	return nil
}

// Cycle returns the number of sessions completed since the last long break.
func (o *BreakOrchestrator) Cycle() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cycle
}

func (o *BreakOrchestrator) saveCycleLocked() {
	if o.state == nil || o.syncer == nil {
		return
	}
	repo := o.state
	raw, err := json.Marshal(cycleState{Cycle: o.cycle})
	if err != nil {
		return
	}
	err = o.syncer.Enqueue("save_break_cycle", map[string]string{"cycle": strconv.Itoa(o.cycle)}, func(ctx context.Context) error {
		return repo.Save(ctx, cycleStateKey, raw)
	})
	if err != nil {
		o.logger.Warn().Err(err).Msg("failed to queue break cycle")
	}
}

// SessionStarting stops any break and clears the prompts. A focus session
// and a break never run together.
func (o *BreakOrchestrator) SessionStarting() {
	o.timer.Reset()

	o.mu.Lock()
	o.clearLocked()
	o.mu.Unlock()
}

// AfterSession applies the decision table to a completed session.
func (o *BreakOrchestrator) AfterSession(task *domain.Task, summary domain.CompletionSummary) {
	settings := o.settings.Settings()

	o.mu.Lock()
	o.cycle++
	o.saveCycleLocked()
	o.lastTask = task
	s := summary
	o.summary = &s

	action := Decide(summary, settings)
	switch action {
	case ActionCelebrate:
		o.prompt = domain.PromptCelebration
	case ActionPrompt:
		o.prompt = domain.PromptCompletion
	}
	o.mu.Unlock()

	if action == ActionStartBreak {
		o.startBreak(task)
		return
	}
	o.focus.publish(Event{Type: EventPromptChanged, Prompt: o.Prompt(), Summary: &s})
}

// ContinueTask starts a new session on the last task with every step reset,
// so the task can be redone end to end. Valid from the completion and
// celebration prompts.
func (o *BreakOrchestrator) ContinueTask(ctx context.Context) (*domain.Session, error) {
	o.mu.Lock()
	if (o.prompt != domain.PromptCompletion && o.prompt != domain.PromptCelebration) || o.lastTask == nil {
		o.mu.Unlock()
		return nil, domain.ErrNothingToResume
	}
	task := o.lastTask
	o.mu.Unlock()

	o.tasks.ResetSteps(task)
	return o.focus.Start(ctx, task)
}

// TakeBreak starts a break. After a completion prompt the last task is kept
// for resuming; otherwise the break stands alone.
func (o *BreakOrchestrator) TakeBreak() error {
	if o.focus.ActiveTask() != nil {
		return domain.ErrSessionAlreadyActive
	}
	if o.timer.IsActive() {
		return domain.ErrBreakActive
	}

	o.mu.Lock()
	task := o.lastTask
	o.mu.Unlock()

	o.startBreak(task)
	return nil
}

func (o *BreakOrchestrator) startBreak(task *domain.Task) {
	settings := o.settings.Settings()

	o.mu.Lock()
	breakType, seconds := settings.BreakFor(o.cycle)
	o.resumeTask = task
	o.prompt = domain.PromptNone
	o.timer.Start(breakType, seconds)
	o.mu.Unlock()

	o.notify(func(n ports.Notifier) error {
		return n.BreakStarted(breakType, seconds/60)
	})
	o.focus.publish(Event{Type: EventBreakStarted, BreakType: breakType, Remaining: seconds})
	o.logger.Info().Str("type", string(breakType)).Int("seconds", seconds).Msg("break started")
}

// EndBreak finishes the break early. The break-complete prompt follows as if
// it had run out.
func (o *BreakOrchestrator) EndBreak() error {
	if !o.timer.IsActive() {
		return domain.ErrNoBreak
	}
	o.timer.End()
	return nil
}

// PauseBreak pauses the break timer.
func (o *BreakOrchestrator) PauseBreak() {
	o.timer.Pause()
}

// ResumeBreak continues a paused break.
func (o *BreakOrchestrator) ResumeBreak() {
	o.timer.Resume()
}

// Tick advances the break by one second. The background loop does this on
// its own; clients without the loop call it.
func (o *BreakOrchestrator) Tick() {
	o.timer.Tick()
}

// ResumeAfterBreak starts a new session on the task captured when the break
// began. Step progress is kept.
func (o *BreakOrchestrator) ResumeAfterBreak(ctx context.Context) (*domain.Session, error) {
	o.mu.Lock()
	if o.prompt != domain.PromptBreakComplete || o.resumeTask == nil {
		o.mu.Unlock()
		return nil, domain.ErrNothingToResume
	}
	task := o.resumeTask
	o.mu.Unlock()

	return o.focus.Start(ctx, task)
}

// DeclineResume ends the flow after a break without starting a session.
func (o *BreakOrchestrator) DeclineResume() {
	o.timer.Reset()

	o.mu.Lock()
	o.clearLocked()
	o.mu.Unlock()

	o.focus.publish(Event{Type: EventPromptChanged, Prompt: domain.PromptNone})
}

// Dismiss closes the completion or celebration prompt.
func (o *BreakOrchestrator) Dismiss() {
	o.mu.Lock()
	if o.prompt != domain.PromptCompletion && o.prompt != domain.PromptCelebration {
		o.mu.Unlock()
		return
	}
	o.prompt = domain.PromptNone
	o.summary = nil
	o.mu.Unlock()

	o.focus.publish(Event{Type: EventPromptChanged, Prompt: domain.PromptNone})
}

// Prompt returns the prompt a client should show.
func (o *BreakOrchestrator) Prompt() domain.Prompt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.prompt
}

// ResumeTask returns the task a break-complete prompt would resume.
func (o *BreakOrchestrator) ResumeTask() *domain.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resumeTask
}

// Snapshot returns the break state, the prompt and the last summary.
func (o *BreakOrchestrator) Snapshot() (domain.BreakState, domain.Prompt, *domain.CompletionSummary) {
	brk := o.timer.State()

	o.mu.Lock()
	defer o.mu.Unlock()

	var summary *domain.CompletionSummary
	if o.summary != nil {
		s := *o.summary
		summary = &s
	}
	return brk, o.prompt, summary
}

// OnBreakTick implements timer.BreakListener.
func (o *BreakOrchestrator) OnBreakTick(remaining int) {
	o.focus.publish(Event{Type: EventBreakTick, Remaining: remaining})
}

// OnBreakComplete implements timer.BreakListener.
func (o *BreakOrchestrator) OnBreakComplete(breakType domain.BreakType) {
	o.mu.Lock()
	o.prompt = domain.PromptBreakComplete
	o.summary = nil
	if breakType == domain.BreakLong {
		o.cycle = 0
		o.saveCycleLocked()
	}
	o.mu.Unlock()

	o.notify(func(n ports.Notifier) error {
		return n.BreakCompleted(breakType)
	})
	o.focus.publish(Event{Type: EventBreakCompleted, BreakType: breakType, Prompt: domain.PromptBreakComplete})
	o.logger.Info().Str("type", string(breakType)).Msg("break completed")
}

func (o *BreakOrchestrator) notify(fn func(ports.Notifier) error) {
	if o.notifier == nil || !o.settings.Settings().NotificationsEnabled {
		return
	}
	if err := fn(o.notifier); err != nil {
		o.logger.Debug().Err(err).Msg("notification failed")
	}
}

func (o *BreakOrchestrator) clearLocked() {
	o.prompt = domain.PromptNone
	o.summary = nil
	o.lastTask = nil
	o.resumeTask = nil
}
