// Package mcp provides the MCP (Model Context Protocol) server implementation.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// Server implements the MCP server using mark3labs/mcp-go.
type Server struct {
	server   *server.MCPServer
	provider ports.FocusProvider

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewServer creates a new MCP server instance.
func NewServer(provider ports.FocusProvider, version string) *Server {
	s := &Server{provider: provider}
	s.server = server.NewMCPServer(
		"stepflow",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	s.registerTools()
	return s
}

type toolHandler = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// registerTools registers all available MCP tools.
func (s *Server) registerTools() {
	taskID := mcp.WithString("task_id", mcp.Required(), mcp.Description("The ID of the task"))
	stepID := mcp.WithString("step_id", mcp.Required(), mcp.Description("The ID of the step"))

	tools := []struct {
		tool    mcp.Tool
		handler toolHandler
	}{
		{mcp.NewTool("get_current_state",
			mcp.WithDescription("Get the focus state: active task with steps, timer, break, pending prompt and streak"),
		), s.handleGetCurrentState},
		{mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks, optionally filtered by status"),
			mcp.WithString("status",
				mcp.Description("Filter tasks by status"),
				mcp.Enum(string(domain.StatusPending), string(domain.StatusInProgress), string(domain.StatusCompleted)),
			),
		), s.handleListTasks},
		{mcp.NewTool("get_task",
			mcp.WithDescription("Get one task with its steps"),
			taskID,
		), s.handleGetTask},
		{mcp.NewTool("search_tasks",
			mcp.WithDescription("Fuzzy search open tasks by title"),
			mcp.WithString("query", mcp.Required(), mcp.Description("Text to match against task titles")),
		), s.handleSearchTasks},
		{mcp.NewTool("get_task_history",
			mcp.WithDescription("Get focus session history for a task"),
			taskID,
		), s.handleGetTaskHistory},
		{mcp.NewTool("get_recent_sessions",
			mcp.WithDescription("Get sessions started recently"),
			mcp.WithNumber("hours", mcp.Description("How far back to look (default: 24)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of sessions (default: 20)")),
		), s.handleGetRecentSessions},
		{mcp.NewTool("get_streak",
			mcp.WithDescription("Get the number of consecutive days with at least one focus session"),
		), s.handleGetStreak},
		{mcp.NewTool("create_task",
			mcp.WithDescription("Create a task. A session can only start on a task with at least one step"),
			mcp.WithString("title", mcp.Required(), mcp.Description("The title of the task")),
			mcp.WithString("description", mcp.Description("Optional description of the task")),
			mcp.WithArray("steps", mcp.Description("Ordered step titles"), mcp.WithStringItems()),
			mcp.WithBoolean("use_ai", mcp.Description("Ask the AI breakdown for steps when none are given")),
		), s.handleCreateTask},
		{mcp.NewTool("complete_task",
			mcp.WithDescription("Mark a task as completed"),
			taskID,
		), s.handleCompleteTask},
		{mcp.NewTool("delete_task",
			mcp.WithDescription("Delete a task and its steps"),
			taskID,
		), s.handleDeleteTask},
		{mcp.NewTool("add_step",
			mcp.WithDescription("Append a step to a task"),
			taskID,
			mcp.WithString("title", mcp.Required(), mcp.Description("The step title")),
		), s.handleAddStep},
		{mcp.NewTool("toggle_step",
			mcp.WithDescription("Mark a step done or not done. Finishing the last step of the running task completes the session"),
			taskID, stepID,
		), s.handleToggleStep},
		{mcp.NewTool("edit_step",
			mcp.WithDescription("Rename a step"),
			taskID, stepID,
			mcp.WithString("title", mcp.Required(), mcp.Description("The new step title")),
		), s.handleEditStep},
		{mcp.NewTool("remove_step",
			mcp.WithDescription("Remove a step from a task"),
			taskID, stepID,
		), s.handleRemoveStep},
		{mcp.NewTool("start_session",
			mcp.WithDescription("Start a focus session on a task"),
			taskID,
		), s.handleStartSession},
		{mcp.NewTool("pause_session",
			mcp.WithDescription("Pause the running focus session"),
		), s.simple("pause session", s.provider.PauseSession)},
		{mcp.NewTool("resume_session",
			mcp.WithDescription("Resume a paused focus session"),
		), s.simple("resume session", s.provider.ResumeSession)},
		{mcp.NewTool("stop_session",
			mcp.WithDescription("Stop the session early. It is recorded as skipped with the reason"),
			mcp.WithString("reason", mcp.Required(), mcp.Description("Why the session ended early")),
		), s.handleStopSession},
		{mcp.NewTool("log_distraction",
			mcp.WithDescription("Log a distraction on the running session"),
			mcp.WithString("text", mcp.Required(), mcp.Description("What pulled attention away")),
		), s.handleLogDistraction},
		{mcp.NewTool("take_break",
			mcp.WithDescription("Start a break"),
		), s.simple("take break", s.provider.TakeBreak)},
		{mcp.NewTool("end_break",
			mcp.WithDescription("End the running break early"),
		), s.simple("end break", s.provider.EndBreak)},
		{mcp.NewTool("continue_task",
			mcp.WithDescription("After a completed session, start again on the same task with every step reset"),
		), s.sessionAction("continue task", s.provider.ContinueTask)},
		{mcp.NewTool("resume_after_break",
			mcp.WithDescription("After a break, start a new session on the same task keeping step progress"),
		), s.sessionAction("resume after break", s.provider.ResumeAfterBreak)},
		{mcp.NewTool("decline_resume",
			mcp.WithDescription("After a break, do not start another session"),
		), s.simple("decline resume", s.provider.DeclineResume)},
	}

	for _, t := range tools {
		s.server.AddTool(t.tool, t.handler)
	}
}

// Start serves MCP requests on stdio until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		cancel()
	}()
	return server.NewStdioServer(s.server).Listen(ctx, os.Stdin, os.Stdout)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// IsRunning returns true if the server is active.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

var _ ports.MCPHandler = (*Server)(nil)

func (s *Server) handleGetCurrentState(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.provider.GetCurrentState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current state: %w", err)
	}

	result := map[string]interface{}{
		"active_task":    nil,
		"active_session": nil,
		"timer": map[string]interface{}{
			"total_seconds":     state.Timer.Total,
			"remaining_seconds": state.Timer.Remaining,
			"running":           state.Timer.Running,
			"paused":            state.Timer.Paused,
		},
		"break": map[string]interface{}{
			"active":            state.Break.Active,
			"type":              string(state.Break.Type),
			"remaining_seconds": state.Break.Remaining,
		},
		"prompt": string(state.Prompt),
		"streak": state.Streak,
	}
	if state.ActiveTask != nil {
		result["active_task"] = taskData(state.ActiveTask)
	}
	if state.ActiveSession != nil {
		result["active_session"] = sessionData(state.ActiveSession)
	}
	if state.Summary != nil {
		result["summary"] = map[string]interface{}{
			"task_title":      state.Summary.TaskTitle,
			"duration":        state.Summary.Duration,
			"completed_steps": state.Summary.CompletedSteps,
			"total_steps":     state.Summary.TotalSteps,
			"task_completed":  state.Summary.TaskCompleted,
		}
	}
	return jsonResult(result)
}

func (s *Server) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var status *domain.TaskStatus
	if raw := request.GetString("status", ""); raw != "" {
		st := domain.TaskStatus(raw)
		status = &st
	}

	tasks, err := s.provider.ListTasks(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	list := make([]map[string]interface{}, 0, len(tasks))
	for _, task := range tasks {
		list = append(list, taskData(task))
	}
	result := map[string]interface{}{
		"tasks":       list,
		"total_count": len(list),
	}
	if status != nil {
		result["filter_status"] = string(*status)
	}
	return jsonResult(result)
}

func (s *Server) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required: " + err.Error()), nil
	}
	task, err := s.provider.GetTask(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get task: %v", err)), nil
	}
	return jsonResult(taskData(task))
}

func (s *Server) handleSearchTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required: " + err.Error()), nil
	}
	tasks, err := s.provider.SearchTasks(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search tasks: %w", err)
	}
	list := make([]map[string]interface{}, 0, len(tasks))
	for _, task := range tasks {
		list = append(list, taskData(task))
	}
	return jsonResult(map[string]interface{}{"query": query, "tasks": list})
}

func (s *Server) handleGetTaskHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required: " + err.Error()), nil
	}

	sessions, err := s.provider.GetTaskHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get task history: %w", err)
	}

	list := make([]map[string]interface{}, 0, len(sessions))
	focused := 0
	for _, session := range sessions {
		list = append(list, sessionData(session))
		focused += session.ActualDuration
	}
	return jsonResult(map[string]interface{}{
		"task_id":         id,
		"sessions":        list,
		"total_sessions":  len(list),
		"focused_seconds": focused,
	})
}

func (s *Server) handleGetRecentSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hours := request.GetFloat("hours", 24)
	limit := int(request.GetFloat("limit", 20))
	if hours <= 0 {
		return mcp.NewToolResultError("hours must be positive"), nil
	}

	window := time.Duration(hours * float64(time.Hour))
	sessions, err := s.provider.GetRecentSessions(ctx, window, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent sessions: %w", err)
	}
	list := make([]map[string]interface{}, 0, len(sessions))
	for _, session := range sessions {
		list = append(list, sessionData(session))
	}
	return jsonResult(map[string]interface{}{"sessions": list, "total_count": len(list)})
}

func (s *Server) handleGetStreak(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	streak, err := s.provider.GetStreak(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return jsonResult(map[string]interface{}{"streak_days": streak})
}

func (s *Server) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title is required: " + err.Error()), nil
	}
	description := request.GetString("description", "")
	steps := request.GetStringSlice("steps", nil)
	if len(steps) == 0 {
		// Some clients send a single newline separated string.
		if raw := request.GetString("steps", ""); raw != "" {
			steps = strings.Split(raw, "\n")
		}
	}

	task, err := s.provider.CreateTask(ctx, title, description, steps, request.GetBool("use_ai", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}

	result := taskData(task)
	if len(task.Steps) == 0 {
		result["warning"] = "task has no steps; add at least one before starting a session"
	}
	return jsonResult(result)
}

func (s *Server) handleCompleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required: " + err.Error()), nil
	}
	if err := s.provider.CompleteTask(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to complete task: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{"task_id": id, "status": string(domain.StatusCompleted)})
}

func (s *Server) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required: " + err.Error()), nil
	}
	if err := s.provider.DeleteTask(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete task: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{"task_id": id, "deleted": true})
}

func (s *Server) handleAddStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required: " + err.Error()), nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title is required: " + err.Error()), nil
	}
	step, err := s.provider.AddStep(ctx, id, title)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add step: %v", err)), nil
	}
	return jsonResult(stepData(step))
}

func (s *Server) handleToggleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, sid, errResult := stepArgs(request)
	if errResult != nil {
		return errResult, nil
	}
	step, err := s.provider.ToggleStep(ctx, id, sid)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to toggle step: %v", err)), nil
	}
	return jsonResult(stepData(step))
}

func (s *Server) handleEditStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, sid, errResult := stepArgs(request)
	if errResult != nil {
		return errResult, nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title is required: " + err.Error()), nil
	}
	step, err := s.provider.EditStep(ctx, id, sid, title)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to edit step: %v", err)), nil
	}
	return jsonResult(stepData(step))
}

func (s *Server) handleRemoveStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, sid, errResult := stepArgs(request)
	if errResult != nil {
		return errResult, nil
	}
	if err := s.provider.RemoveStep(ctx, id, sid); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to remove step: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{"task_id": id, "step_id": sid, "removed": true})
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required: " + err.Error()), nil
	}
	session, err := s.provider.StartSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start session: %v", err)), nil
	}
	return jsonResult(sessionData(session))
}

func (s *Server) handleStopSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reason, err := request.RequireString("reason")
	if err != nil {
		return mcp.NewToolResultError("reason is required: " + err.Error()), nil
	}
	session, err := s.provider.StopSession(ctx, reason)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to stop session: %v", err)), nil
	}
	return jsonResult(sessionData(session))
}

func (s *Server) handleLogDistraction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required: " + err.Error()), nil
	}
	if err := s.provider.LogDistraction(ctx, text); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to log distraction: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{"logged": text})
}

// simple wraps a provider call without arguments or payload.
func (s *Server) simple(action string, fn func(context.Context) error) toolHandler {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := fn(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err)), nil
		}
		return s.handleGetCurrentState(ctx, mcp.CallToolRequest{})
	}
}

// sessionAction wraps a provider call that starts a session.
func (s *Server) sessionAction(action string, fn func(context.Context) (*domain.Session, error)) toolHandler {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		session, err := fn(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err)), nil
		}
		return jsonResult(sessionData(session))
	}
}

func stepArgs(request mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return "", "", mcp.NewToolResultError("task_id is required: " + err.Error())
	}
	sid, err := request.RequireString("step_id")
	if err != nil {
		return "", "", mcp.NewToolResultError("step_id is required: " + err.Error())
	}
	return id, sid, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func taskData(task *domain.Task) map[string]interface{} {
	steps := make([]map[string]interface{}, 0, len(task.Steps))
	done := 0
	for _, step := range task.Steps {
		steps = append(steps, stepData(step))
		if step.Done {
			done++
		}
	}
	data := map[string]interface{}{
		"id":                 task.ID,
		"title":              task.Title,
		"description":        task.Description,
		"status":             string(task.Status),
		"total_time_seconds": task.TotalTimeSpent,
		"steps":              steps,
		"completed_steps":    done,
		"created_at":         task.CreatedAt.Format(timeLayout),
	}
	if task.CompletedAt != nil {
		data["completed_at"] = task.CompletedAt.Format(timeLayout)
	}
	return data
}

func stepData(step *domain.TaskStep) map[string]interface{} {
	return map[string]interface{}{
		"id":    step.ID,
		"title": step.Title,
		"done":  step.Done,
		"order": step.OrderIndex,
	}
}

func sessionData(session *domain.Session) map[string]interface{} {
	data := map[string]interface{}{
		"id":                session.ID,
		"status":            string(session.Status),
		"planned_seconds":   session.PlannedDuration,
		"actual_seconds":    session.ActualDuration,
		"started_at":        session.StartedAt.Format(timeLayout),
		"completed_steps":   session.CompletedSteps,
		"total_steps":       session.TotalSteps,
		"notes":             session.Notes,
		"distraction_count": len(session.Distractions),
	}
	if session.TaskID != nil {
		data["task_id"] = *session.TaskID
	}
	if session.EndedAt != nil {
		data["ended_at"] = session.EndedAt.Format(timeLayout)
	}
	if len(session.Distractions) > 0 {
		data["distractions"] = session.Distractions
	}
	if session.GitBranch != "" {
		data["git_branch"] = session.GitBranch
		data["git_commit"] = session.GitCommit
	}
	return data
}
