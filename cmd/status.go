package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running session, if any",
	Long: `Show the session recorded as running in the database, how much of it
is left, and the progress of its task.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		active, err := storageAdapter.Sessions().FindActive(ctx)
		if err != nil {
			return fmt.Errorf("failed to get active session: %w", err)
		}
		streak, err := stateService.GetStreak(ctx)
		if err != nil {
			return fmt.Errorf("failed to get streak: %w", err)
		}

		out := cmd.OutOrStdout()
		if active == nil {
			if jsonOutput {
				return printJSON(out, map[string]interface{}{"active": false, "streak": streak})
			}
			fmt.Fprintln(out, "No active session.")
			fmt.Fprintf(out, "Streak: %d day(s)\n", streak)
			return nil
		}

		remaining := active.PlannedDuration - elapsedOf(active)
		var title string
		var done, total int
		if active.TaskID != nil {
			if task, err := taskService.GetTask(ctx, *active.TaskID); err == nil {
				title = task.Title
				done, total = progressOf(task)
			}
		}

		if jsonOutput {
			data := sessionData(active)
			data["active"] = true
			data["remaining_seconds"] = remaining
			data["task_title"] = title
			data["steps_done"] = done
			data["steps_total"] = total
			data["streak"] = streak
			return printJSON(out, data)
		}

		fmt.Fprintf(out, "Session %s (%s)\n", shortID(active.ID), active.Status)
		if title != "" {
			fmt.Fprintf(out, "   Task: %s  %d/%d steps\n", title, done, total)
		}
		fmt.Fprintf(out, "   Started: %s\n", active.StartedAt.Local().Format(time.Kitchen))
		fmt.Fprintf(out, "   Remaining: %s\n", clockString(remaining))
		if active.GitBranch != "" {
			fmt.Fprintf(out, "   Branch: %s\n", active.GitBranch)
		}
		fmt.Fprintf(out, "Streak: %d day(s)\n", streak)
		return nil
	},
}

func clockString(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
