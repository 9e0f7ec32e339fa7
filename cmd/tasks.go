package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xvierd/stepflow/internal/adapters/tui"
	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/services"
)

var (
	addSteps       []string
	addDescription string
	addAI          bool

	listStatus string
	listAll    bool
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a new task",
	Long: `Add a task with its steps. Steps come from repeated --step flags, or from
the AI breakdown with --ai when an API key is configured. A task needs at
least one step before a session can start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		title := joinArgs(args)
		if title == "" {
			var err error
			title, err = tui.Prompt("Task:", "what do you want to get done?", appConfig.Theme)
			if err != nil {
				return err
			}
		}

		task, err := taskService.CreateTask(ctx, services.CreateTaskRequest{
			Title:       title,
			Description: addDescription,
			Steps:       addSteps,
			UseAI:       addAI,
		})
		if err != nil {
			return fmt.Errorf("failed to add task: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, taskData(task))
		}

		fmt.Fprintf(out, "Task added: %s (ID: %s)\n", task.Title, shortID(task.ID))
		printSteps(out, task)
		if len(task.Steps) == 0 {
			fmt.Fprintln(out, "No steps yet. Add some with: stepflow step add", shortID(task.ID), "<title>")
		}
		return nil
	},
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long:  `List open tasks, or filter by status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		req := services.ListTasksRequest{OnlyPending: !listAll && listStatus == ""}
		if listStatus != "" {
			status := domain.TaskStatus(listStatus)
			req.Status = &status
		}

		tasks, err := taskService.ListTasks(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			list := make([]map[string]interface{}, 0, len(tasks))
			for _, task := range tasks {
				list = append(list, taskData(task))
			}
			return printJSON(out, map[string]interface{}{"tasks": list, "count": len(list)})
		}

		if len(tasks) == 0 {
			fmt.Fprintln(out, "No tasks found.")
			return nil
		}
		fmt.Fprintf(out, "Tasks (%d):\n\n", len(tasks))
		for _, task := range tasks {
			done, total := progressOf(task)
			fmt.Fprintf(out, "%s %s  %d/%d steps  (ID: %s)\n", statusIcon(task.Status), task.Title, done, total, shortID(task.ID))
		}
		return nil
	},
}

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <task>",
	Short: "Show a task with its steps and sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		task, err := resolveTask(ctx, joinArgs(args))
		if err != nil {
			return err
		}
		sessions, err := stateService.GetTaskHistory(ctx, task.ID)
		if err != nil {
			return fmt.Errorf("failed to load sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			data := taskData(task)
			list := make([]map[string]interface{}, 0, len(sessions))
			for _, s := range sessions {
				list = append(list, sessionData(s))
			}
			data["sessions"] = list
			return printJSON(out, data)
		}

		fmt.Fprintf(out, "%s %s (ID: %s)\n", statusIcon(task.Status), task.Title, task.ID)
		if task.Description != "" {
			fmt.Fprintf(out, "   %s\n", task.Description)
		}
		fmt.Fprintf(out, "   Time spent: %s\n", formatSeconds(task.TotalTimeSpent))
		fmt.Fprintln(out)
		printSteps(out, task)
		fmt.Fprintf(out, "\nSessions: %d\n", len(sessions))
		return nil
	},
}

// completeCmd represents the complete command
var completeCmd = &cobra.Command{
	Use:   "complete <task>",
	Short: "Complete a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		task, err := resolveTask(ctx, joinArgs(args))
		if err != nil {
			return err
		}
		if err := stateService.CompleteTask(ctx, task.ID); err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task completed: %s\n", task.Title)
		return nil
	},
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <task>",
	Short: "Delete a task",
	Long:  `Delete a task and its steps. This cannot be undone.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		task, err := resolveTask(ctx, joinArgs(args))
		if err != nil {
			return err
		}
		if err := stateService.DeleteTask(ctx, task.ID); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]interface{}{"deleted": true, "task_id": task.ID})
		}
		fmt.Fprintf(out, "Task '%s' deleted.\n", task.Title)
		return nil
	},
}

func init() {
	addCmd.Flags().StringArrayVarP(&addSteps, "step", "s", nil, "A step of the task (repeatable)")
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Task description")
	addCmd.Flags().BoolVar(&addAI, "ai", false, "Ask the AI breakdown for steps when none are given")

	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, in_progress, completed)")
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "List all tasks (default: open only)")
}

// resolveTask finds a task by full ID, ID prefix or fuzzy title match.
func resolveTask(ctx context.Context, ref string) (*domain.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrInvalidTaskID
	}

	task, err := stateService.GetTask(ctx, ref)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, domain.ErrTaskNotFound) {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	all, err := taskService.ListTasks(ctx, services.ListTasksRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	var byPrefix []*domain.Task
	for _, t := range all {
		if strings.HasPrefix(t.ID, ref) {
			byPrefix = append(byPrefix, t)
		}
	}
	if len(byPrefix) == 1 {
		return stateService.GetTask(ctx, byPrefix[0].ID)
	}

	matches, err := stateService.SearchTasks(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to search tasks: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, ref)
	}
	return stateService.GetTask(ctx, matches[0].ID)
}

// stepAt returns the step with the 1-based number n.
func stepAt(task *domain.Task, n int) (*domain.TaskStep, error) {
	if n < 1 || n > len(task.Steps) {
		return nil, fmt.Errorf("%w: step %d of %d", domain.ErrStepNotFound, n, len(task.Steps))
	}
	return task.Steps[n-1], nil
}

func printSteps(out io.Writer, task *domain.Task) {
	for i, step := range task.Steps {
		box := "[ ]"
		if step.Done {
			box = "[x]"
		}
		fmt.Fprintf(out, "  %d. %s %s\n", i+1, box, step.Title)
	}
}

func progressOf(task *domain.Task) (done, total int) {
	for _, s := range task.Steps {
		if s.Done {
			done++
		}
	}
	return done, len(task.Steps)
}

func statusIcon(status domain.TaskStatus) string {
	switch status {
	case domain.StatusPending:
		return "⏳"
	case domain.StatusInProgress:
		return "▶️"
	case domain.StatusCompleted:
		return "✅"
	default:
		return "❓"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func taskData(task *domain.Task) map[string]interface{} {
	steps := make([]map[string]interface{}, 0, len(task.Steps))
	for _, s := range task.Steps {
		steps = append(steps, map[string]interface{}{
			"id":    s.ID,
			"title": s.Title,
			"done":  s.Done,
			"order": s.OrderIndex,
		})
	}
	data := map[string]interface{}{
		"id":                 task.ID,
		"title":              task.Title,
		"description":        task.Description,
		"status":             string(task.Status),
		"total_time_seconds": task.TotalTimeSpent,
		"steps":              steps,
		"created_at":         task.CreatedAt.Format("2006-01-02T15:04:05"),
	}
	if task.CompletedAt != nil {
		data["completed_at"] = task.CompletedAt.Format("2006-01-02T15:04:05")
	}
	return data
}

func sessionData(s *domain.Session) map[string]interface{} {
	data := map[string]interface{}{
		"id":              s.ID,
		"status":          string(s.Status),
		"planned_seconds": s.PlannedDuration,
		"actual_seconds":  s.ActualDuration,
		"started_at":      s.StartedAt.Format("2006-01-02T15:04:05"),
		"completed_steps": s.CompletedSteps,
		"total_steps":     s.TotalSteps,
		"notes":           s.Notes,
		"distractions":    len(s.Distractions),
		"git_branch":      s.GitBranch,
		"git_commit":      s.GitCommit,
	}
	if s.TaskID != nil {
		data["task_id"] = *s.TaskID
	}
	if s.EndedAt != nil {
		data["ended_at"] = s.EndedAt.Format("2006-01-02T15:04:05")
	}
	return data
}

func formatSeconds(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
