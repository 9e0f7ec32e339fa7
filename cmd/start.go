package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xvierd/stepflow/internal/adapters/tui"
	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/services"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start [task]",
	Short: "Start a focus session on a task",
	Long: `Start a focus session and open the timer screen.

Without an argument a picker lists the open tasks. With one, the task is
looked up by ID, then by fuzzy title match. A session left running by an
earlier process on the same task is picked up where it stands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := breakService.RestoreCycle(ctx); err != nil {
			logger.Warn().Err(err).Msg("could not restore break cycle")
		}

		active, err := storageAdapter.Sessions().FindActive(ctx)
		if err != nil {
			return fmt.Errorf("failed to check active session: %w", err)
		}
		if _, err := cleanupService.SweepOrphans(ctx, services.DefaultOrphanGrace, activeID(active)); err != nil {
			logger.Warn().Err(err).Msg("orphan sweep failed")
		}

		task, err := pickTask(ctx, joinArgs(args))
		if err != nil {
			if errors.Is(err, tui.ErrAborted) {
				return nil
			}
			return err
		}

		if active != nil && active.TaskID != nil && *active.TaskID == task.ID {
			if err := focusController.Reattach(ctx, active, task); err != nil {
				return fmt.Errorf("failed to resume session: %w", err)
			}
		} else {
			if active != nil {
				if err := stateService.EndSessionByBeacon(ctx, active.ID, elapsedOf(active), domain.NoteInterruptedByClose); err != nil {
					return fmt.Errorf("failed to end previous session: %w", err)
				}
			}
			if _, err := focusController.Start(ctx, task); err != nil {
				return fmt.Errorf("failed to start session: %w", err)
			}
		}

		decision, err := tui.Run(ctx, tui.Deps{
			Focus:         focusController,
			Breaks:        breakService,
			Tasks:         taskService,
			Guard:         unloadGuard,
			Notifications: notifier,
			Theme:         appConfig.Theme,
		})
		if err != nil {
			return err
		}
		if decision.Beacon {
			fmt.Fprintf(cmd.OutOrStdout(), "Session interrupted after %s.\n", formatSeconds(decision.Elapsed))
		}
		return nil
	},
}

// pickTask resolves the task for a new session, opening the picker when
// no reference is given.
func pickTask(ctx context.Context, ref string) (*domain.Task, error) {
	if ref != "" {
		return resolveTask(ctx, ref)
	}
	tasks, err := taskService.ListTasks(ctx, services.ListTasksRequest{OnlyPending: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, errors.New("no open tasks; add one with: stepflow add <title> -s <step>")
	}
	picked, err := tui.PickTask(tasks, appConfig.Theme)
	if err != nil {
		return nil, err
	}
	return taskService.GetTask(ctx, picked.ID)
}

func activeID(s *domain.Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}

// elapsedOf is how long a stored session has run, capped at its plan.
func elapsedOf(s *domain.Session) int {
	elapsed := int(time.Since(s.StartedAt) / time.Second)
	if elapsed > s.PlannedDuration {
		elapsed = s.PlannedDuration
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}
