package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xvierd/stepflow/internal/clock"
	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

// UnloadDecision tells a closing client what the guard did and whether it
// should ask the user before leaving.
type UnloadDecision struct {
	// Beacon is set when an interrupted-session report was sent.
	Beacon bool
	// Confirm is set when running work would be lost.
	Confirm bool
	// Elapsed is the consumed part of the countdown reported in the beacon.
	Elapsed int
}

// UnloadGuard reports the running session as interrupted when the client
// goes away.
type UnloadGuard struct {
	focus  *FocusController
	beacon ports.Beacon
}

// NewUnloadGuard creates a guard for the focus controller.
func NewUnloadGuard(focus *FocusController, beacon ports.Beacon) *UnloadGuard {
	return &UnloadGuard{focus: focus, beacon: beacon}
}

// Preview returns what OnUnload would decide without sending anything.
func (g *UnloadGuard) Preview() UnloadDecision {
	snap, ok := g.focus.unloadSnapshot()
	if !ok {
		return UnloadDecision{}
	}
	return UnloadDecision{
		Beacon:  true,
		Confirm: snap.Running && !snap.Paused,
		Elapsed: snap.Planned - snap.Remaining,
	}
}

// OnUnload sends the beacon for an active session, running or paused, and
// drops the local session. With no session it does nothing.
func (g *UnloadGuard) OnUnload() UnloadDecision {
	snap, ok := g.focus.unloadSnapshot()
	if !ok {
		return UnloadDecision{}
	}
	elapsed := snap.Planned - snap.Remaining
	g.beacon.Send(snap.SessionID, elapsed, domain.NoteInterruptedByClose)
	g.focus.Detach()

	return UnloadDecision{
		Beacon:  true,
		Confirm: snap.Running && !snap.Paused,
		Elapsed: elapsed,
	}
}

// StoreBeacon is the in-process beacon: it queues the interrupted-session
// write on the Syncer and returns at once.
type StoreBeacon struct {
	storage ports.Storage
	syncer  *Syncer
	clock   clock.Clock
}

// NewStoreBeacon creates a beacon writing through storage.
func NewStoreBeacon(storage ports.Storage, syncer *Syncer, clk clock.Clock) *StoreBeacon {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &StoreBeacon{storage: storage, syncer: syncer, clock: clk}
}

// Send implements ports.Beacon.
func (b *StoreBeacon) Send(sessionID string, elapsedSeconds int, note string) {
	endedAt := b.clock.Now()
	_ = b.syncer.Enqueue("beacon", map[string]string{"sessionID": sessionID}, func(ctx context.Context) error {
		return interruptSession(ctx, b.storage, sessionID, elapsedSeconds, note, endedAt)
	})
}

// interruptSession marks a stored session skipped. A session that already
// ended is left unchanged.
func interruptSession(ctx context.Context, storage ports.Storage, sessionID string, elapsed int, note string, endedAt time.Time) error {
	session, err := storage.Sessions().FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session.IsTerminal() {
		return nil
	}
	if err := session.End(domain.SessionEnd{
		Status:         domain.SessionStatusSkipped,
		ActualDuration: elapsed,
		CompletedSteps: session.CompletedSteps,
		TotalSteps:     session.TotalSteps,
		Notes:          note,
		EndedAt:        endedAt,
	}); err != nil {
		return err
	}
	if err := storage.Sessions().Update(ctx, session); err != nil && !errors.Is(err, domain.ErrSessionTerminal) {
		return err
	}
	return nil
}
