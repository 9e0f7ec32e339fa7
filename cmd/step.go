package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xvierd/stepflow/internal/domain"
)

// stepCmd groups the step subcommands
var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Manage the steps of a task",
	Long: `Add, check off, rename or remove the steps of a task. Steps are
addressed by their number as shown by 'stepflow show'.`,
}

var stepAddCmd = &cobra.Command{
	Use:   "add <task> <title>",
	Short: "Append a step to a task",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		task, err := resolveTask(ctx, args[0])
		if err != nil {
			return err
		}
		step, err := stateService.AddStep(ctx, task.ID, joinArgs(args[1:]))
		if err != nil {
			return fmt.Errorf("failed to add step: %w", err)
		}
		syncer.Drain()

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]interface{}{"task_id": task.ID, "step_id": step.ID, "title": step.Title})
		}
		fmt.Fprintf(out, "Step %d added to %s: %s\n", len(task.Steps)+1, task.Title, step.Title)
		return nil
	},
}

var stepDoneCmd = &cobra.Command{
	Use:     "done <task> <number>",
	Aliases: []string{"toggle"},
	Short:   "Toggle a step between done and open",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		task, n, err := taskAndStep(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		step, err := stepAt(task, n)
		if err != nil {
			return err
		}
		toggled, err := stateService.ToggleStep(ctx, task.ID, step.ID)
		if err != nil {
			return fmt.Errorf("failed to toggle step: %w", err)
		}
		syncer.Drain()

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]interface{}{"task_id": task.ID, "step_id": toggled.ID, "done": toggled.Done})
		}
		state := "open"
		if toggled.Done {
			state = "done"
		}
		fmt.Fprintf(out, "Step %d is %s: %s\n", n, state, toggled.Title)
		return nil
	},
}

var stepEditCmd = &cobra.Command{
	Use:   "edit <task> <number> <title>",
	Short: "Rename a step",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		task, n, err := taskAndStep(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		step, err := stepAt(task, n)
		if err != nil {
			return err
		}
		edited, err := stateService.EditStep(ctx, task.ID, step.ID, joinArgs(args[2:]))
		if err != nil {
			return fmt.Errorf("failed to edit step: %w", err)
		}
		syncer.Drain()
		fmt.Fprintf(cmd.OutOrStdout(), "Step %d renamed: %s\n", n, edited.Title)
		return nil
	},
}

var stepRemoveCmd = &cobra.Command{
	Use:     "rm <task> <number>",
	Aliases: []string{"remove"},
	Short:   "Remove a step",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		task, n, err := taskAndStep(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		step, err := stepAt(task, n)
		if err != nil {
			return err
		}
		if err := stateService.RemoveStep(ctx, task.ID, step.ID); err != nil {
			return fmt.Errorf("failed to remove step: %w", err)
		}
		syncer.Drain()
		fmt.Fprintf(cmd.OutOrStdout(), "Step %d removed: %s\n", n, step.Title)
		return nil
	},
}

func init() {
	stepCmd.AddCommand(stepAddCmd, stepDoneCmd, stepEditCmd, stepRemoveCmd)
}

func taskAndStep(ctx context.Context, ref, number string) (*domain.Task, int, error) {
	n, err := strconv.Atoi(number)
	if err != nil {
		return nil, 0, fmt.Errorf("step number must be an integer: %q", number)
	}
	task, err := resolveTask(ctx, ref)
	if err != nil {
		return nil, 0, err
	}
	return task, n, nil
}
