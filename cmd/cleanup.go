package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xvierd/stepflow/internal/services"
)

var cleanupGrace time.Duration

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "End sessions that no client will ever finish",
	Long: `Mark running or paused sessions as skipped once they are older than
their planned duration plus the grace period. These are left behind when a
client crashes before reporting how the session ended.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		swept, err := cleanupService.SweepOrphans(context.Background(), cleanupGrace, "")
		if err != nil {
			return fmt.Errorf("failed to sweep sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			ids := make([]string, 0, len(swept))
			for _, s := range swept {
				ids = append(ids, s.ID)
			}
			return printJSON(out, map[string]interface{}{"swept": ids, "count": len(ids)})
		}
		if len(swept) == 0 {
			fmt.Fprintln(out, "Nothing to clean up.")
			return nil
		}
		fmt.Fprintf(out, "Ended %d orphaned session(s).\n", len(swept))
		return nil
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupGrace, "grace", services.DefaultOrphanGrace, "Extra time past the planned duration before a session counts as orphaned")
}
