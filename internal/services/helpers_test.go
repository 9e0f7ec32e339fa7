package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/xvierd/stepflow/internal/adapters/storage"
	"github.com/xvierd/stepflow/internal/clock"
	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
	"github.com/xvierd/stepflow/internal/timer"
)

type staticSettings struct {
	mu sync.Mutex
	s  domain.Settings
}

func (p *staticSettings) Settings() domain.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.s
}

func (p *staticSettings) set(fn func(*domain.Settings)) {
	p.mu.Lock()
	fn(&p.s)
	p.mu.Unlock()
}

type fakeNotifier struct {
	mu        sync.Mutex
	started   int
	completed []domain.CompletionSummary
	breaks    []domain.BreakType
	breakEnds int
	err       error
}

func (n *fakeNotifier) SessionStarted(string, int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started++
	return n.err
}

func (n *fakeNotifier) SessionCompleted(s domain.CompletionSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, s)
	return n.err
}

func (n *fakeNotifier) BreakStarted(t domain.BreakType, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.breaks = append(n.breaks, t)
	return n.err
}

func (n *fakeNotifier) BreakCompleted(domain.BreakType) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.breakEnds++
	return n.err
}

type beaconCall struct {
	sessionID string
	elapsed   int
	note      string
}

type fakeBeacon struct {
	mu    sync.Mutex
	calls []beaconCall
}

func (b *fakeBeacon) Send(sessionID string, elapsed int, note string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, beaconCall{sessionID, elapsed, note})
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// failingSessions fails every Update so terminal writes are lost.
type failingSessions struct {
	ports.SessionRepository
}

func (failingSessions) Update(context.Context, *domain.Session) error {
	return errors.New("backend unavailable")
}

type failingStorage struct {
	ports.Storage
}

func (s failingStorage) Sessions() ports.SessionRepository {
	return failingSessions{s.Storage.Sessions()}
}

type harness struct {
	t        *testing.T
	store    ports.Storage
	clock    *clock.Manual
	syncer   *Syncer
	settings *staticSettings
	notifier *fakeNotifier
	tasks    *TaskService
	focus    *FocusController
	breaks   *BreakOrchestrator
	events   *eventRecorder
}

func newHarness(t *testing.T, wrap ...func(ports.Storage) ports.Storage) *harness {
	t.Helper()

	store, err := storage.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var s ports.Storage = store
	for _, w := range wrap {
		s = w(s)
	}

	h := &harness{
		t:        t,
		store:    s,
		clock:    clock.NewManual(time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)),
		settings: &staticSettings{s: domain.DefaultSettings()},
		notifier: &fakeNotifier{},
		events:   &eventRecorder{},
	}

	h.syncer = NewSyncer(zerolog.Nop(), 1, 0)
	t.Cleanup(func() { _ = h.syncer.Shutdown(context.Background()) })

	h.tasks = NewTaskService(s, h.syncer, zerolog.Nop())
	h.focus = NewFocusController(s, h.tasks, h.syncer, h.settings, zerolog.Nop(),
		WithFocusClock(h.clock),
		WithFocusTickInterval(0),
		WithNotifier(h.notifier),
	)
	h.breaks = NewBreakOrchestrator(h.focus, h.tasks, h.settings, h.notifier, zerolog.Nop(),
		timer.WithTickInterval(0))
	h.focus.Subscribe(h.events.record)
	return h
}

// newTask saves a task with the given steps.
func (h *harness) newTask(title string, steps ...string) *domain.Task {
	h.t.Helper()
	task, err := h.tasks.CreateTask(context.Background(), CreateTaskRequest{Title: title, Steps: steps})
	require.NoError(h.t, err)
	return task
}

// advance moves the clock and lets the countdown observe it.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.focus.Tick()
}

func (h *harness) storedSession(id string) *domain.Session {
	h.t.Helper()
	h.syncer.Drain()
	s, err := h.store.Sessions().FindByID(context.Background(), id)
	require.NoError(h.t, err)
	return s
}

func (h *harness) storedTask(id string) *domain.Task {
	h.t.Helper()
	h.syncer.Drain()
	task, err := h.store.Tasks().FindByID(context.Background(), id)
	require.NoError(h.t, err)
	return task
}
