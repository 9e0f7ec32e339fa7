package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSyncer_RunsJobsInOrder(t *testing.T) {
	s := NewSyncer(zerolog.Nop(), 1, 10)
	defer func() { _ = s.Shutdown(context.Background()) }()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, s.Enqueue("job", nil, func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	s.Drain()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSyncer_LogsFailures(t *testing.T) {
	out := &syncBuffer{}
	s := NewSyncer(zerolog.New(out), 1, 10)
	defer func() { _ = s.Shutdown(context.Background()) }()

	require.NoError(t, s.Enqueue("update_session", map[string]string{"sessionID": "s-1"}, func(context.Context) error {
		return errors.New("disk full")
	}))
	require.NoError(t, s.Enqueue("boom", nil, func(context.Context) error {
		panic("bad job")
	}))
	s.Drain()

	logged := out.String()
	assert.Contains(t, logged, "sync failed")
	assert.Contains(t, logged, "disk full")
	assert.Contains(t, logged, `"sessionID":"s-1"`)
	assert.Contains(t, logged, "sync job panicked")
}

func TestSyncer_QueueFull(t *testing.T) {
	s := NewSyncer(zerolog.Nop(), 1, 1)
	defer func() { _ = s.Shutdown(context.Background()) }()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Enqueue("block", nil, func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, s.Enqueue("queued", nil, func(context.Context) error { return nil }))
	err := s.Enqueue("overflow", nil, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrSyncQueueFull)

	close(release)
	s.Drain()
}

func TestSyncer_ShutdownDrainsAndRejects(t *testing.T) {
	s := NewSyncer(zerolog.Nop(), 2, 10)

	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Enqueue("job", nil, func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, int32(4), ran.Load())

	err := s.Enqueue("late", nil, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrSyncerClosed)
	assert.NoError(t, s.Shutdown(context.Background()), "shutdown is repeatable")
}
