package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// streakCmd represents the streak command
var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show consecutive days with a completed session",
	RunE: func(cmd *cobra.Command, args []string) error {
		streak, err := stateService.GetStreak(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get streak: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]interface{}{"streak": streak})
		}
		switch streak {
		case 0:
			fmt.Fprintln(out, "No streak yet. Complete a session today to start one.")
		case 1:
			fmt.Fprintln(out, "🔥 1 day streak")
		default:
			fmt.Fprintf(out, "🔥 %d day streak\n", streak)
		}
		return nil
	},
}
