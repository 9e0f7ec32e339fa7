package httpapi

import (
	"time"

	"github.com/xvierd/stepflow/internal/domain"
)

type stepView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
	Order int    `json:"order"`
}

type taskView struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	TotalTimeSpent int        `json:"total_time_seconds"`
	Steps          []stepView `json:"steps"`
	CompletedSteps int        `json:"completed_steps"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type sessionView struct {
	ID             string               `json:"id"`
	TaskID         *string              `json:"task_id,omitempty"`
	Status         string               `json:"status"`
	Planned        int                  `json:"planned_seconds"`
	Actual         int                  `json:"actual_seconds"`
	StartedAt      time.Time            `json:"started_at"`
	EndedAt        *time.Time           `json:"ended_at,omitempty"`
	CompletedSteps int                  `json:"completed_steps"`
	TotalSteps     int                  `json:"total_steps"`
	Notes          string               `json:"notes,omitempty"`
	Distractions   []domain.Distraction `json:"distractions,omitempty"`
	GitBranch      string               `json:"git_branch,omitempty"`
	GitCommit      string               `json:"git_commit,omitempty"`
}

type timerView struct {
	Total     int  `json:"total_seconds"`
	Remaining int  `json:"remaining_seconds"`
	Running   bool `json:"running"`
	Paused    bool `json:"paused"`
}

type breakView struct {
	Active    bool   `json:"active"`
	Type      string `json:"type,omitempty"`
	Remaining int    `json:"remaining_seconds"`
	Total     int    `json:"total_seconds"`
}

type stateView struct {
	ActiveTask    *taskView                 `json:"active_task"`
	ActiveSession *sessionView              `json:"active_session"`
	Timer         timerView                 `json:"timer"`
	Break         breakView                 `json:"break"`
	Prompt        string                    `json:"prompt"`
	Summary       *domain.CompletionSummary `json:"summary,omitempty"`
	Streak        int                       `json:"streak"`
}

type settingsView struct {
	SessionMinutes          int  `json:"session_minutes"`
	BreakMinutes            int  `json:"break_minutes"`
	LongBreakMinutes        int  `json:"long_break_minutes"`
	SessionsBeforeLongBreak int  `json:"sessions_before_long_break"`
	AutoStartBreaks         bool `json:"auto_start_breaks"`
	NotificationsEnabled    bool `json:"notifications_enabled"`
}

func newStepView(s *domain.TaskStep) stepView {
	return stepView{ID: s.ID, Title: s.Title, Done: s.Done, Order: s.OrderIndex}
}

func newTaskView(t *domain.Task) *taskView {
	v := &taskView{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         string(t.Status),
		TotalTimeSpent: t.TotalTimeSpent,
		Steps:          make([]stepView, 0, len(t.Steps)),
		CreatedAt:      t.CreatedAt,
		CompletedAt:    t.CompletedAt,
	}
	for _, s := range t.Steps {
		v.Steps = append(v.Steps, newStepView(s))
		if s.Done {
			v.CompletedSteps++
		}
	}
	return v
}

func newTaskViews(tasks []*domain.Task) []*taskView {
	out := make([]*taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newTaskView(t))
	}
	return out
}

func newSessionView(s *domain.Session) *sessionView {
	return &sessionView{
		ID:             s.ID,
		TaskID:         s.TaskID,
		Status:         string(s.Status),
		Planned:        s.PlannedDuration,
		Actual:         s.ActualDuration,
		StartedAt:      s.StartedAt,
		EndedAt:        s.EndedAt,
		CompletedSteps: s.CompletedSteps,
		TotalSteps:     s.TotalSteps,
		Notes:          s.Notes,
		Distractions:   s.Distractions,
		GitBranch:      s.GitBranch,
		GitCommit:      s.GitCommit,
	}
}

func newSessionViews(sessions []*domain.Session) []*sessionView {
	out := make([]*sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, newSessionView(s))
	}
	return out
}

func newStateView(s *domain.CurrentState) stateView {
	v := stateView{
		Timer: timerView{
			Total:     s.Timer.Total,
			Remaining: s.Timer.Remaining,
			Running:   s.Timer.Running,
			Paused:    s.Timer.Paused,
		},
		Break: breakView{
			Active:    s.Break.Active,
			Type:      string(s.Break.Type),
			Remaining: s.Break.Remaining,
			Total:     s.Break.Total,
		},
		Prompt:  string(s.Prompt),
		Summary: s.Summary,
		Streak:  s.Streak,
	}
	if s.ActiveTask != nil {
		v.ActiveTask = newTaskView(s.ActiveTask)
	}
	if s.ActiveSession != nil {
		v.ActiveSession = newSessionView(s.ActiveSession)
	}
	return v
}

func newSettingsView(s domain.Settings) settingsView {
	return settingsView{
		SessionMinutes:          int(s.DefaultSessionDuration / time.Minute),
		BreakMinutes:            int(s.BreakDuration / time.Minute),
		LongBreakMinutes:        int(s.LongBreakDuration / time.Minute),
		SessionsBeforeLongBreak: s.SessionsBeforeLongBreak,
		AutoStartBreaks:         s.AutoStartBreaks,
		NotificationsEnabled:    s.NotificationsEnabled,
	}
}
