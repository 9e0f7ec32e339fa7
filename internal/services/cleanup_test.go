package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xvierd/stepflow/internal/domain"
)

func TestCleanupService_SweepOrphans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	orphan := domain.NewSession(nil, 1500, now.Add(-2*time.Hour))
	recent := domain.NewSession(nil, 1500, now.Add(-40*time.Minute))
	kept := domain.NewSession(nil, 1500, now.Add(-3*time.Hour))
	for _, s := range []*domain.Session{orphan, recent, kept} {
		require.NoError(t, h.store.Sessions().Create(ctx, s))
	}

	svc := NewCleanupService(h.store, h.clock, zerolog.Nop())
	swept, err := svc.SweepOrphans(ctx, DefaultOrphanGrace, kept.ID)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, orphan.ID, swept[0].ID)

	stored, err := h.store.Sessions().FindByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusSkipped, stored.Status)
	assert.Equal(t, domain.NoteOrphaned, stored.Notes)
	assert.Zero(t, stored.ActualDuration)

	// 40 minutes is past the planned 25 but inside the grace period.
	stored, err = h.store.Sessions().FindByID(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, stored.Status)

	swept, err = svc.SweepOrphans(ctx, DefaultOrphanGrace, kept.ID)
	require.NoError(t, err)
	assert.Empty(t, swept)
}
