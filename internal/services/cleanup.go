package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xvierd/stepflow/internal/clock"
	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

// DefaultOrphanGrace is added to the planned duration before an unended
// session counts as orphaned.
const DefaultOrphanGrace = 30 * time.Minute

// CleanupService reconciles sessions no client will ever end.
type CleanupService struct {
	storage ports.Storage
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewCleanupService creates a cleanup service.
func NewCleanupService(storage ports.Storage, clk clock.Clock, logger zerolog.Logger) *CleanupService {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &CleanupService{
		storage: storage,
		clock:   clk,
		logger:  logger.With().Str("component", "cleanup").Logger(),
	}
}

// SweepOrphans marks active or paused sessions that outlived their planned
// duration plus grace as skipped with no credited time. The session with
// keepID is never touched. It returns the swept sessions.
func (s *CleanupService) SweepOrphans(ctx context.Context, grace time.Duration, keepID string) ([]*domain.Session, error) {
	if grace < 0 {
		grace = 0
	}
	now := s.clock.Now()

	candidates, err := s.storage.Sessions().FindOrphaned(ctx, now.Add(-grace))
	if err != nil {
		return nil, fmt.Errorf("failed to find orphaned sessions: %w", err)
	}

	var swept []*domain.Session
	for _, session := range candidates {
		if session.ID == keepID {
			continue
		}
		deadline := session.StartedAt.Add(time.Duration(session.PlannedDuration)*time.Second + grace)
		if now.Before(deadline) {
			continue
		}
		if err := session.End(domain.SessionEnd{
			Status:         domain.SessionStatusSkipped,
			CompletedSteps: session.CompletedSteps,
			TotalSteps:     session.TotalSteps,
			Notes:          domain.NoteOrphaned,
			EndedAt:        now,
		}); err != nil {
			continue
		}
		if err := s.storage.Sessions().Update(ctx, session); err != nil {
			return swept, fmt.Errorf("failed to update session %s: %w", session.ID, err)
		}
		s.logger.Info().Str("sessionID", session.ID).Msg("swept orphaned session")
		swept = append(swept, session)
	}
	return swept, nil
}
