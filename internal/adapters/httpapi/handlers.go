package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

const (
	defaultHistoryHours = 24
	defaultHistoryLimit = 20
)

// Handler serves the focus API over a ports.FocusProvider.
type Handler struct {
	provider ports.FocusProvider
	settings ports.SettingsProvider
}

type createTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	UseAI       bool     `json:"use_ai"`
}

type stepRequest struct {
	Title string `json:"title"`
}

type startRequest struct {
	TaskID string `json:"task_id"`
}

type stopRequest struct {
	Reason string `json:"reason"`
}

type distractionRequest struct {
	Text string `json:"text"`
}

type beaconRequest struct {
	ElapsedSeconds int    `json:"elapsed_seconds"`
	Note           string `json:"note"`
}

// NewHandler creates a handler.
func NewHandler(provider ports.FocusProvider, settings ports.SettingsProvider) *Handler {
	return &Handler{provider: provider, settings: settings}
}

// bindJSON decodes an optional body. An empty body leaves req untouched.
func bindJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, badRequest("invalid_json", "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) GetState(c *gin.Context) {
	state, err := h.provider.GetCurrentState(c.Request.Context())
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": newStateView(state)})
}

func (h *Handler) ListTasks(c *gin.Context) {
	var status *domain.TaskStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.TaskStatus(raw)
		switch s {
		case domain.StatusPending, domain.StatusInProgress, domain.StatusCompleted:
			status = &s
		default:
			writeError(c, badRequest("invalid_status", "status must be pending, in_progress or completed"))
			return
		}
	}

	tasks, err := h.provider.ListTasks(c.Request.Context(), status)
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": newTaskViews(tasks)})
}

func (h *Handler) SearchTasks(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		writeError(c, badRequest("missing_query", "q is required"))
		return
	}
	tasks, err := h.provider.SearchTasks(c.Request.Context(), query)
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": newTaskViews(tasks)})
}

func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.provider.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": newTaskView(task)})
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid_json", "invalid request body"))
		return
	}

	task, err := h.provider.CreateTask(c.Request.Context(), req.Title, req.Description, req.Steps, req.UseAI)
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": newTaskView(task)})
}

func (h *Handler) CompleteTask(c *gin.Context) {
	if err := h.provider.CompleteTask(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, fromError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	if err := h.provider.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, fromError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) TaskSessions(c *gin.Context) {
	sessions, err := h.provider.GetTaskHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": newSessionViews(sessions)})
}

func (h *Handler) AddStep(c *gin.Context) {
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid_json", "invalid request body"))
		return
	}
	step, err := h.provider.AddStep(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"step": newStepView(step)})
}

func (h *Handler) EditStep(c *gin.Context) {
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid_json", "invalid request body"))
		return
	}
	step, err := h.provider.EditStep(c.Request.Context(), c.Param("id"), c.Param("stepID"), req.Title)
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"step": newStepView(step)})
}

func (h *Handler) ToggleStep(c *gin.Context) {
	step, err := h.provider.ToggleStep(c.Request.Context(), c.Param("id"), c.Param("stepID"))
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"step": newStepView(step)})
}

func (h *Handler) RemoveStep(c *gin.Context) {
	if err := h.provider.RemoveStep(c.Request.Context(), c.Param("id"), c.Param("stepID")); err != nil {
		writeError(c, fromError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid_json", "invalid request body"))
		return
	}
	session, err := h.provider.StartSession(c.Request.Context(), req.TaskID)
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": newSessionView(session)})
}

func (h *Handler) Stop(c *gin.Context) {
	var req stopRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.provider.StopSession(c.Request.Context(), req.Reason)
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": newSessionView(session)})
}

func (h *Handler) LogDistraction(c *gin.Context) {
	var req distractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid_json", "invalid request body"))
		return
	}
	if err := h.provider.LogDistraction(c.Request.Context(), req.Text); err != nil {
		writeError(c, fromError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// action wraps a no-argument flow operation that answers with the new state.
func (h *Handler) action(fn func(ports.FocusProvider, *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(h.provider, c); err != nil {
			writeError(c, fromError(err))
			return
		}
		h.GetState(c)
	}
}

func (h *Handler) Pause(c *gin.Context) {
	h.action(func(p ports.FocusProvider, c *gin.Context) error {
		return p.PauseSession(c.Request.Context())
	})(c)
}

func (h *Handler) Resume(c *gin.Context) {
	h.action(func(p ports.FocusProvider, c *gin.Context) error {
		return p.ResumeSession(c.Request.Context())
	})(c)
}

func (h *Handler) TakeBreak(c *gin.Context) {
	h.action(func(p ports.FocusProvider, c *gin.Context) error {
		return p.TakeBreak(c.Request.Context())
	})(c)
}

func (h *Handler) EndBreak(c *gin.Context) {
	h.action(func(p ports.FocusProvider, c *gin.Context) error {
		return p.EndBreak(c.Request.Context())
	})(c)
}

func (h *Handler) DeclineResume(c *gin.Context) {
	h.action(func(p ports.FocusProvider, c *gin.Context) error {
		return p.DeclineResume(c.Request.Context())
	})(c)
}

func (h *Handler) ContinueTask(c *gin.Context) {
	session, err := h.provider.ContinueTask(c.Request.Context())
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": newSessionView(session)})
}

func (h *Handler) ResumeAfterBreak(c *gin.Context) {
	session, err := h.provider.ResumeAfterBreak(c.Request.Context())
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": newSessionView(session)})
}

func (h *Handler) RecentSessions(c *gin.Context) {
	hours, apiErr := queryInt(c, "hours", defaultHistoryHours)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	limit, apiErr := queryInt(c, "limit", defaultHistoryLimit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	window := time.Duration(hours) * time.Hour
	sessions, err := h.provider.GetRecentSessions(c.Request.Context(), window, limit)
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": newSessionViews(sessions)})
}

// Beacon records a session the client is abandoning. A session that already
// ended is left as it was and still answers 202.
func (h *Handler) Beacon(c *gin.Context) {
	var req beaconRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ElapsedSeconds < 0 {
		writeError(c, badRequest("invalid_elapsed", "elapsed_seconds must not be negative"))
		return
	}
	if err := h.provider.EndSessionByBeacon(c.Request.Context(), c.Param("id"), req.ElapsedSeconds, req.Note); err != nil {
		writeError(c, fromError(err))
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) Streak(c *gin.Context) {
	streak, err := h.provider.GetStreak(c.Request.Context())
	if err != nil {
		writeError(c, fromError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"streak": streak})
}

func (h *Handler) Settings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"settings": newSettingsView(h.settings.Settings())})
}

func queryInt(c *gin.Context, key string, fallback int) (int, *APIError) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest("invalid_"+key, key+" must be a positive integer")
	}
	return n, nil
}
