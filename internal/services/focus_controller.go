package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xvierd/stepflow/internal/clock"
	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
	"github.com/xvierd/stepflow/internal/timer"
)

// breakHandler is the part of the break orchestrator the controller talks to.
type breakHandler interface {
	SessionStarting()
	AfterSession(task *domain.Task, summary domain.CompletionSummary)
	Snapshot() (domain.BreakState, domain.Prompt, *domain.CompletionSummary)
}

// FocusController drives one focus session at a time through
// NoSession -> Active <-> Paused -> Completed | Skipped.
//
// The controller owns the current session and task. Persistence after the
// session is created runs through the Syncer; a failed write is logged and
// the local flow carries on.
type FocusController struct {
	mu       sync.Mutex
	storage  ports.Storage
	tasks    *TaskService
	syncer   *Syncer
	settings ports.SettingsProvider
	notifier ports.Notifier
	git      ports.GitDetector
	workDir  string
	clock    clock.Clock
	interval time.Duration
	logger   zerolog.Logger
	breaks   breakHandler
	bus      eventBus

	starting      bool
	session       *domain.Session
	task          *domain.Task
	countdown     *timer.Countdown
	stopRequested bool
}

// FocusOption configures a FocusController.
type FocusOption func(*FocusController)

// WithFocusClock sets the clock used for timestamps and the countdown.
func WithFocusClock(c clock.Clock) FocusOption {
	return func(f *FocusController) {
		f.clock = c
	}
}

// WithFocusTickInterval sets the countdown loop period. Zero disables the
// loop and the caller drives the countdown.
func WithFocusTickInterval(d time.Duration) FocusOption {
	return func(f *FocusController) {
		f.interval = d
	}
}

// WithNotifier sets the notification sink.
func WithNotifier(n ports.Notifier) FocusOption {
	return func(f *FocusController) {
		f.notifier = n
	}
}

// WithGitDetector records git context on new sessions.
func WithGitDetector(d ports.GitDetector, workDir string) FocusOption {
	return func(f *FocusController) {
		f.git = d
		f.workDir = workDir
	}
}

// NewFocusController creates a controller with no session.
func NewFocusController(
	storage ports.Storage,
	tasks *TaskService,
	syncer *Syncer,
	settings ports.SettingsProvider,
	logger zerolog.Logger,
	opts ...FocusOption,
) *FocusController {
	c := &FocusController{
		storage:  storage,
		tasks:    tasks,
		syncer:   syncer,
		settings: settings,
		clock:    clock.RealClock{},
		interval: timer.DefaultTickInterval,
		logger:   logger.With().Str("component", "focus").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	tasks.OnStepsCompleted(c.onStepsCompleted)
	return c
}

// Subscribe registers fn for every published event and returns a function
// that removes it.
func (c *FocusController) Subscribe(fn EventFunc) func() {
	return c.bus.subscribe(fn)
}

func (c *FocusController) publish(ev Event) {
	c.bus.publish(ev)
}

func (c *FocusController) setBreakHandler(h breakHandler) {
	c.mu.Lock()
	c.breaks = h
	c.mu.Unlock()
}

// Start begins a focus session on task. A transient task is saved first so
// the session can reference it. The session length is read from the
// settings at this moment.
func (c *FocusController) Start(ctx context.Context, task *domain.Task) (*domain.Session, error) {
	if task == nil {
		return nil, domain.ErrNoTask
	}

	c.mu.Lock()
	if c.starting || (c.session != nil && !c.session.IsTerminal()) {
		c.mu.Unlock()
		return nil, domain.ErrSessionAlreadyActive
	}
	if _, total := c.tasks.Progress(task); total == 0 {
		c.mu.Unlock()
		return nil, domain.ErrNoSteps
	}
	c.starting = true
	breaks := c.breaks
	c.mu.Unlock()

	session, err := c.createSession(ctx, task)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	if breaks != nil {
		breaks.SessionStarting()
	}

	c.mu.Lock()
	c.session = session
	c.task = task
	c.stopRequested = false
	c.countdown = c.newCountdown(session.PlannedDuration)
	c.countdown.Start()
	out := *session
	c.mu.Unlock()

	c.tasks.MarkStarted(task)
	c.notify(func(n ports.Notifier) error {
		return n.SessionStarted(task.Title, session.PlannedDuration/60)
	})
	c.publish(Event{Type: EventSessionStarted, SessionID: session.ID, Remaining: session.PlannedDuration})

	c.logger.Info().Str("sessionID", session.ID).Str("taskID", task.ID).
		Int("planned", session.PlannedDuration).Msg("session started")
	return &out, nil
}

// createSession saves the task if needed and creates the session record.
func (c *FocusController) createSession(ctx context.Context, task *domain.Task) (*domain.Session, error) {
	if err := c.tasks.Persist(ctx, task); err != nil {
		return nil, err
	}

	settings := c.settings.Settings()
	planned := settings.SessionSeconds()
	if planned <= 0 {
		return nil, domain.ErrInvalidDuration
	}

	taskID := task.ID
	session := domain.NewSession(&taskID, planned, c.clock.Now())
	_, session.TotalSteps = c.tasks.Progress(task)

	if c.git != nil {
		dir := c.workDir
		if dir == "" {
			dir, _ = os.Getwd()
		}
		if info, err := c.git.Detect(ctx, dir); err == nil && info != nil {
			session.SetGitContext(info.Branch, info.Commit)
		}
	}

	if err := c.storage.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// Reattach resumes a session left active by an earlier process. The
// remaining time is what is left of the planned duration since it started;
// a session that has run out completes right away.
func (c *FocusController) Reattach(ctx context.Context, session *domain.Session, task *domain.Task) error {
	if task == nil {
		return domain.ErrNoTask
	}
	if session == nil || session.IsTerminal() {
		return domain.ErrNoActiveSession
	}

	c.mu.Lock()
	if c.starting || (c.session != nil && !c.session.IsTerminal()) {
		c.mu.Unlock()
		return domain.ErrSessionAlreadyActive
	}
	breaks := c.breaks
	c.mu.Unlock()

	if breaks != nil {
		breaks.SessionStarting()
	}

	elapsed := int(c.clock.Now().Sub(session.StartedAt) / time.Second)
	remaining := session.PlannedDuration - elapsed

	c.mu.Lock()
	session.Status = domain.SessionStatusActive
	c.session = session
	c.task = task
	c.stopRequested = false
	c.countdown = c.newCountdown(session.PlannedDuration)
	cd := c.countdown
	if remaining > 0 {
		cd.Restore(remaining)
		cd.Start()
	}
	c.mu.Unlock()

	c.logger.Info().Str("sessionID", session.ID).Int("remaining", remaining).Msg("session reattached")
	if remaining <= 0 {
		cd.Skip()
		return nil
	}
	c.publish(Event{Type: EventSessionResumed, SessionID: session.ID, Remaining: remaining})
	return nil
}

func (c *FocusController) newCountdown(total int) *timer.Countdown {
	run := &focusRun{c: c}
	cd := timer.NewCountdown(total, run, timer.WithClock(c.clock), timer.WithTickInterval(c.interval))
	run.cd = cd
	return cd
}

// Pause freezes the countdown. The stored session row is not touched.
func (c *FocusController) Pause() error {
	c.mu.Lock()
	if !c.hasSessionLocked() {
		c.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	cd := c.countdown
	c.mu.Unlock()

	// Pause settles the clock first and may complete the session.
	cd.Pause()

	c.mu.Lock()
	state := cd.State()
	if c.countdown != cd || !state.Paused {
		c.mu.Unlock()
		return nil
	}
	c.session.Status = domain.SessionStatusPaused
	id := c.session.ID
	c.mu.Unlock()

	c.publish(Event{Type: EventSessionPaused, SessionID: id, Remaining: state.Remaining})
	return nil
}

// Resume continues a paused countdown.
func (c *FocusController) Resume() error {
	c.mu.Lock()
	if !c.hasSessionLocked() {
		c.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	c.countdown.Start()
	c.session.Status = domain.SessionStatusActive
	id := c.session.ID
	remaining := c.countdown.State().Remaining
	c.mu.Unlock()

	c.publish(Event{Type: EventSessionResumed, SessionID: id, Remaining: remaining})
	return nil
}

// RequestStop opens the stop-reason prompt. The countdown keeps running.
func (c *FocusController) RequestStop() error {
	c.mu.Lock()
	if !c.hasSessionLocked() {
		c.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	c.stopRequested = true
	id := c.session.ID
	c.mu.Unlock()

	c.publish(Event{Type: EventStopRequested, SessionID: id, Prompt: domain.PromptStopReason})
	return nil
}

// CancelStop closes the stop-reason prompt without changing the session.
func (c *FocusController) CancelStop() {
	c.mu.Lock()
	if !c.stopRequested {
		c.mu.Unlock()
		return
	}
	c.stopRequested = false
	var id string
	if c.session != nil {
		id = c.session.ID
	}
	c.mu.Unlock()

	c.publish(Event{Type: EventStopCancelled, SessionID: id})
}

// ConfirmStop ends the session early as skipped. The actual duration is the
// consumed part of the countdown and reason becomes the session note.
func (c *FocusController) ConfirmStop(reason string) (*domain.Session, error) {
	c.mu.Lock()
	if !c.hasSessionLocked() {
		c.mu.Unlock()
		return nil, domain.ErrNoActiveSession
	}

	state := c.countdown.State()
	c.countdown.Close()
	done, total := c.tasks.Progress(c.task)

	session := c.session
	err := session.End(domain.SessionEnd{
		Status:         domain.SessionStatusSkipped,
		ActualDuration: session.PlannedDuration - state.Remaining,
		CompletedSteps: done,
		TotalSteps:     total,
		Notes:          reason,
		EndedAt:        c.clock.Now(),
	})
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.clearLocked()
	out := *session
	c.mu.Unlock()

	c.persistSession(&out)
	c.publish(Event{Type: EventSessionStopped, SessionID: out.ID})

	c.logger.Info().Str("sessionID", out.ID).Int("actual", out.ActualDuration).
		Str("reason", out.Notes).Msg("session stopped")
	return &out, nil
}

// Detach drops the local session without writing it. Used when the process
// is going away and a beacon has already been sent.
func (c *FocusController) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.countdown != nil {
		c.countdown.Close()
	}
	c.clearLocked()
}

// LogDistraction records a distraction on the running session.
func (c *FocusController) LogDistraction(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyDistraction
	}

	c.mu.Lock()
	if !c.hasSessionLocked() {
		c.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	c.session.AddDistraction(text, c.clock.Now())
	id := c.session.ID
	c.mu.Unlock()

	c.publish(Event{Type: EventDistraction, SessionID: id})
	return nil
}

// ActiveTask returns the live task bound to the running session, or nil.
// Edits must go through the TaskService.
func (c *FocusController) ActiveTask() *domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasSessionLocked() {
		return nil
	}
	return c.task
}

// State returns a snapshot for rendering.
func (c *FocusController) State() domain.CurrentState {
	c.mu.Lock()
	var state domain.CurrentState
	if c.hasSessionLocked() {
		sess := *c.session
		sess.Distractions = append([]domain.Distraction(nil), c.session.Distractions...)
		state.ActiveSession = &sess
		state.ActiveTask = c.tasks.Snapshot(c.task)
		state.Timer = c.countdown.State()
		if c.stopRequested {
			state.Prompt = domain.PromptStopReason
		}
	}
	breaks := c.breaks
	c.mu.Unlock()

	if breaks != nil {
		brk, prompt, summary := breaks.Snapshot()
		state.Break = brk
		if state.Prompt == domain.PromptNone {
			state.Prompt = prompt
			state.Summary = summary
		}
	}
	return state
}

// Tick re-reads the clock of the running countdown. The background loop does
// this on its own; clients without the loop call it.
func (c *FocusController) Tick() {
	c.mu.Lock()
	cd := c.countdown
	c.mu.Unlock()

	if cd != nil {
		cd.Tick()
	}
}

// UnloadSnapshot describes the running session for the unload guard.
type UnloadSnapshot struct {
	SessionID string
	Planned   int
	Remaining int
	Running   bool
	Paused    bool
}

func (c *FocusController) unloadSnapshot() (UnloadSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasSessionLocked() {
		return UnloadSnapshot{}, false
	}
	state := c.countdown.State()
	return UnloadSnapshot{
		SessionID: c.session.ID,
		Planned:   c.session.PlannedDuration,
		Remaining: state.Remaining,
		Running:   state.Running,
		Paused:    state.Paused,
	}, true
}

// onStepsCompleted skips the countdown when the active task's last open
// step was just done, so the natural completion path runs.
func (c *FocusController) onStepsCompleted(task *domain.Task) {
	c.mu.Lock()
	if !c.hasSessionLocked() || c.task == nil || !sameTask(c.task, task) {
		c.mu.Unlock()
		return
	}
	cd := c.countdown
	allDone := c.tasks.AllStepsDone(c.task)
	c.mu.Unlock()

	if allDone {
		c.logger.Debug().Str("taskID", task.ID).Msg("all steps done, completing session")
		cd.Skip()
	}
}

// complete handles the countdown reaching zero or being skipped.
func (c *FocusController) complete(cd *timer.Countdown) {
	c.mu.Lock()
	if c.countdown != cd || !c.hasSessionLocked() {
		c.mu.Unlock()
		return
	}

	session := c.session
	task := c.task
	done, total := c.tasks.Progress(task)
	now := c.clock.Now()
	if err := session.End(domain.SessionEnd{
		Status:         domain.SessionStatusCompleted,
		ActualDuration: session.PlannedDuration,
		CompletedSteps: done,
		TotalSteps:     total,
		EndedAt:        now,
	}); err != nil {
		c.mu.Unlock()
		return
	}
	c.clearLocked()
	out := *session
	breaks := c.breaks
	c.mu.Unlock()

	c.persistSession(&out)
	taskCompleted := c.tasks.CreditSession(task, out.ActualDuration)

	summary := domain.CompletionSummary{
		SessionID:      out.ID,
		Duration:       out.ActualDuration,
		TaskID:         task.ID,
		TaskTitle:      task.Title,
		CompletedSteps: done,
		TotalSteps:     total,
		TaskCompleted:  taskCompleted,
	}
	streak, err := c.storage.Streaks().CurrentStreak(context.Background(), now)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read streak")
	} else {
		summary.Streak = streak
	}

	c.notify(func(n ports.Notifier) error {
		return n.SessionCompleted(summary)
	})
	c.publish(Event{Type: EventSessionCompleted, SessionID: out.ID, Summary: &summary})
	c.logger.Info().Str("sessionID", out.ID).Bool("taskCompleted", taskCompleted).Msg("session completed")

	if breaks != nil {
		breaks.AfterSession(task, summary)
	}
}

func (c *FocusController) persistSession(session *domain.Session) {
	cp := *session
	_ = c.syncer.Enqueue("end_session", map[string]string{"sessionID": cp.ID}, func(ctx context.Context) error {
		return c.storage.Sessions().Update(ctx, &cp)
	})
}

func (c *FocusController) notify(fn func(ports.Notifier) error) {
	if c.notifier == nil || !c.settings.Settings().NotificationsEnabled {
		return
	}
	if err := fn(c.notifier); err != nil {
		c.logger.Debug().Err(err).Msg("notification failed")
	}
}

func (c *FocusController) hasSessionLocked() bool {
	return c.session != nil && !c.session.IsTerminal() && c.countdown != nil
}

func (c *FocusController) clearLocked() {
	c.session = nil
	c.task = nil
	c.countdown = nil
	c.stopRequested = false
}

func sameTask(a, b *domain.Task) bool {
	if a == b {
		return true
	}
	return a.ID != "" && a.ID == b.ID
}

// focusRun binds countdown events to the run that produced them, so a late
// event from an earlier countdown never touches a newer session.
type focusRun struct {
	c  *FocusController
	cd *timer.Countdown
}

func (r *focusRun) OnTick(remaining int) {
	r.c.mu.Lock()
	current := r.c.countdown == r.cd
	var id string
	if current && r.c.session != nil {
		id = r.c.session.ID
	}
	r.c.mu.Unlock()

	if current {
		r.c.publish(Event{Type: EventTick, SessionID: id, Remaining: remaining})
	}
}

func (r *focusRun) OnComplete() {
	r.c.complete(r.cd)
}
