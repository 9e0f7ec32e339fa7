package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xvierd/stepflow/internal/domain"
)

var (
	historyHours int
	historyLimit int
	historyTask  string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var sessions []*domain.Session
		var err error
		if historyTask != "" {
			task, rerr := resolveTask(ctx, historyTask)
			if rerr != nil {
				return rerr
			}
			sessions, err = stateService.GetTaskHistory(ctx, task.ID)
			if err == nil && historyLimit > 0 && len(sessions) > historyLimit {
				sessions = sessions[:historyLimit]
			}
		} else {
			if historyHours <= 0 {
				return fmt.Errorf("--hours must be positive")
			}
			sessions, err = stateService.GetRecentSessions(ctx, time.Duration(historyHours)*time.Hour, historyLimit)
		}
		if err != nil {
			return fmt.Errorf("failed to load sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			list := make([]map[string]interface{}, 0, len(sessions))
			for _, s := range sessions {
				list = append(list, sessionData(s))
			}
			return printJSON(out, map[string]interface{}{"sessions": list, "count": len(list)})
		}

		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		titles := map[string]string{}
		for _, s := range sessions {
			title := "-"
			if s.TaskID != nil {
				if cached, ok := titles[*s.TaskID]; ok {
					title = cached
				} else if task, err := taskService.GetTask(ctx, *s.TaskID); err == nil {
					title = task.Title
					titles[*s.TaskID] = title
				}
			}
			fmt.Fprintf(out, "%s  %-9s %6s  %d/%d  %s\n",
				s.StartedAt.Local().Format("2006-01-02 15:04"),
				s.Status,
				formatSeconds(s.ActualDuration),
				s.CompletedSteps, s.TotalSteps,
				title)
			if s.Notes != "" {
				fmt.Fprintf(out, "    %s\n", s.Notes)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyHours, "hours", 24, "How far back to look")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of sessions (0 for all)")
	historyCmd.Flags().StringVar(&historyTask, "task", "", "Only sessions of this task")
}
