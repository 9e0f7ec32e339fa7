package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xvierd/stepflow/internal/adapters/storage"
	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/services"
	"github.com/xvierd/stepflow/internal/timer"
)

type fixedSettings struct{}

func (fixedSettings) Settings() domain.Settings { return domain.DefaultSettings() }

type fixture struct {
	server *Server
	syncer *services.Syncer
	focus  *services.FocusController
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	syncer := services.NewSyncer(zerolog.Nop(), 1, 0)
	t.Cleanup(func() { _ = syncer.Shutdown(context.Background()) })

	tasks := services.NewTaskService(store, syncer, zerolog.Nop())
	focus := services.NewFocusController(store, tasks, syncer, fixedSettings{}, zerolog.Nop(),
		services.WithFocusTickInterval(0))
	breaks := services.NewBreakOrchestrator(focus, tasks, fixedSettings{}, nil, zerolog.Nop(),
		timer.WithTickInterval(0))

	provider := services.NewStateService(store, tasks, focus, breaks)
	return &fixture{server: NewServer(provider, "test"), syncer: syncer, focus: focus}
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.False(t, result.IsError, "tool returned error: %v", result.Content)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestServer_IsRunning(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.server.IsRunning())
	assert.NoError(t, f.server.Stop(), "stop before start is a no-op")
}

func TestServer_TaskAndStepTools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.server.handleCreateTask(ctx, call(map[string]interface{}{
		"title": "Write changelog",
		"steps": []interface{}{"collect PRs", "draft", "publish"},
	}))
	require.NoError(t, err)
	task := decode(t, res)
	taskID := task["id"].(string)
	require.Len(t, task["steps"], 3)

	res, err = f.server.handleAddStep(ctx, call(map[string]interface{}{"task_id": taskID, "title": "tweet"}))
	require.NoError(t, err)
	step := decode(t, res)
	assert.Equal(t, float64(3), step["order"])

	res, err = f.server.handleToggleStep(ctx, call(map[string]interface{}{"task_id": taskID, "step_id": step["id"]}))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, res)["done"])

	res, err = f.server.handleGetTask(ctx, call(map[string]interface{}{"task_id": taskID}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), decode(t, res)["completed_steps"])

	res, err = f.server.handleListTasks(ctx, call(map[string]interface{}{"status": "pending"}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), decode(t, res)["total_count"])
}

func TestServer_CreateTaskWithoutStepsWarns(t *testing.T) {
	f := newFixture(t)

	res, err := f.server.handleCreateTask(context.Background(), call(map[string]interface{}{"title": "Vague"}))
	require.NoError(t, err)
	assert.Contains(t, decode(t, res), "warning")
}

func TestServer_SessionFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.server.handleCreateTask(ctx, call(map[string]interface{}{
		"title": "Focus",
		"steps": "one\ntwo",
	}))
	require.NoError(t, err)
	taskID := decode(t, res)["id"].(string)

	res, err = f.server.handleStartSession(ctx, call(map[string]interface{}{"task_id": taskID}))
	require.NoError(t, err)
	session := decode(t, res)
	assert.Equal(t, "active", session["status"])
	assert.Equal(t, float64(1500), session["planned_seconds"])

	res, err = f.server.handleLogDistraction(ctx, call(map[string]interface{}{"text": "slack"}))
	require.NoError(t, err)
	decode(t, res)

	pause := f.server.simple("pause session", f.server.provider.PauseSession)
	res, err = pause(ctx, call(nil))
	require.NoError(t, err)
	state := decode(t, res)
	assert.Equal(t, true, state["timer"].(map[string]interface{})["paused"])

	res, err = f.server.handleStopSession(ctx, call(map[string]interface{}{"reason": "meeting"}))
	require.NoError(t, err)
	stopped := decode(t, res)
	assert.Equal(t, "skipped", stopped["status"])
	assert.Equal(t, "meeting", stopped["notes"])
	assert.Equal(t, float64(1), stopped["distraction_count"])
}

func TestServer_MissingArguments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handlers := map[string]toolHandler{
		"get_task_history": f.server.handleGetTaskHistory,
		"start_session":    f.server.handleStartSession,
		"stop_session":     f.server.handleStopSession,
		"toggle_step":      f.server.handleToggleStep,
		"create_task":      f.server.handleCreateTask,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			res, err := h(ctx, call(map[string]interface{}{}))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
}

func TestServer_StartWithoutSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.server.handleCreateTask(ctx, call(map[string]interface{}{"title": "Empty"}))
	require.NoError(t, err)
	taskID := decode(t, res)["id"].(string)

	res, err = f.server.handleStartSession(ctx, call(map[string]interface{}{"task_id": taskID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Nil(t, f.focus.ActiveTask())
}
