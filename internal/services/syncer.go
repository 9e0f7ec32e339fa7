package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrSyncQueueFull is returned when a job cannot be queued without blocking.
	ErrSyncQueueFull = errors.New("sync queue is full")

	// ErrSyncerClosed is returned when a job is queued after shutdown.
	ErrSyncerClosed = errors.New("syncer is closed")
)

const (
	defaultSyncWorkers = 1
	defaultSyncQueue   = 128
	defaultSyncTimeout = 10 * time.Second
)

// SyncFunc is one remote reconciliation call.
type SyncFunc func(ctx context.Context) error

type syncJob struct {
	name   string
	fields map[string]string
	fn     SyncFunc
}

// Syncer runs persistence calls in the background after the local state has
// already changed. Failed jobs are logged and dropped. With a single worker
// jobs run in the order they were queued.
type Syncer struct {
	queue   chan syncJob
	logger  zerolog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
	workers sync.WaitGroup
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithSyncTimeout bounds each job.
func WithSyncTimeout(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		s.timeout = d
	}
}

// NewSyncer starts a syncer with the given number of workers and queue size.
// Non-positive values fall back to defaults.
func NewSyncer(logger zerolog.Logger, workers, queueSize int, opts ...SyncerOption) *Syncer {
	if workers <= 0 {
		workers = defaultSyncWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultSyncQueue
	}
	s := &Syncer{
		queue:   make(chan syncJob, queueSize),
		logger:  logger.With().Str("component", "syncer").Logger(),
		timeout: defaultSyncTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := 0; i < workers; i++ {
		s.workers.Add(1)
		go s.work()
	}
	return s
}

// Enqueue schedules fn without waiting for it. Fields are attached to the
// log line written if the job fails.
func (s *Syncer) Enqueue(name string, fields map[string]string, fn SyncFunc) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn().Str("job", name).Msg("dropping sync job after shutdown")
		return ErrSyncerClosed
	}

	s.pending.Add(1)
	select {
	case s.queue <- syncJob{name: name, fields: fields, fn: fn}:
		return nil
	default:
		s.pending.Done()
		s.logger.Error().Str("job", name).Msg("sync queue full, dropping job")
		return ErrSyncQueueFull
	}
}

// Drain blocks until every queued job has finished.
func (s *Syncer) Drain() {
	s.pending.Wait()
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to be done.
func (s *Syncer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Syncer) work() {
	defer s.workers.Done()
	for job := range s.queue {
		s.run(job)
	}
}

func (s *Syncer) run(job syncJob) {
	defer s.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", job.name).Interface("panic", r).Msg("sync job panicked")
		}
	}()

	if err := job.fn(ctx); err != nil {
		ev := s.logger.Error().Err(err).Str("job", job.name)
		for k, v := range job.fields {
			ev = ev.Str(k, v)
		}
		ev.Msg("sync failed")
	}
}
