package domain

import (
	"strings"
	"time"
)

// SessionStatus represents the current state of a focus session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusSkipped   SessionStatus = "skipped"
)

// IsTerminal reports whether the status ends a session.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusSkipped
}

// Notes written by the system rather than the user.
const (
	NoteInterruptedByClose = "interrupted: closed before the session ended"
	NoteOrphaned           = "orphaned: never reported an end state"
)

// Distraction is something that pulled attention away during a session.
type Distraction struct {
	Text     string    `json:"text"`
	LoggedAt time.Time `json:"logged_at"`
}

// Session is one timed focus interval bound to a task.
type Session struct {
	ID              string
	TaskID          *string
	Status          SessionStatus
	PlannedDuration int // seconds
	ActualDuration  int // seconds
	StartedAt       time.Time
	EndedAt         *time.Time
	CompletedSteps  int
	TotalSteps      int
	Notes           string
	Distractions    []Distraction
	GitBranch       string
	GitCommit       string
}

// NewSession creates an active session for the given task.
// The ID is assigned when the session is persisted.
func NewSession(taskID *string, plannedSeconds int, now time.Time) *Session {
	return &Session{
		TaskID:          taskID,
		Status:          SessionStatusActive,
		PlannedDuration: plannedSeconds,
		StartedAt:       now,
	}
}

// IsTerminal reports whether the session has ended.
func (s *Session) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// SessionEnd carries the values recorded when a session reaches a terminal state.
type SessionEnd struct {
	Status         SessionStatus
	ActualDuration int
	CompletedSteps int
	TotalSteps     int
	Notes          string
	EndedAt        time.Time
}

// End moves the session to a terminal status. A terminal session is never
// changed again.
func (s *Session) End(end SessionEnd) error {
	if s.IsTerminal() {
		return ErrSessionTerminal
	}
	if !end.Status.IsTerminal() {
		return ErrInvalidStatus
	}
	actual := end.ActualDuration
	if actual < 0 {
		actual = 0
	}
	if actual > s.PlannedDuration {
		actual = s.PlannedDuration
	}
	endedAt := end.EndedAt
	s.Status = end.Status
	s.ActualDuration = actual
	s.CompletedSteps = end.CompletedSteps
	s.TotalSteps = end.TotalSteps
	s.EndedAt = &endedAt
	if notes := strings.TrimSpace(end.Notes); notes != "" {
		s.Notes = notes
	}
	return nil
}

// AddDistraction records a distraction on a running session.
func (s *Session) AddDistraction(text string, at time.Time) bool {
	text = strings.TrimSpace(text)
	if text == "" || s.IsTerminal() {
		return false
	}
	s.Distractions = append(s.Distractions, Distraction{Text: text, LoggedAt: at})
	return true
}

// SetGitContext stores git information for the session.
func (s *Session) SetGitContext(branch, commit string) {
	s.GitBranch = branch
	s.GitCommit = commit
}

// TimerState is a snapshot of the focus countdown.
type TimerState struct {
	Total     int // seconds
	Remaining int // seconds
	Running   bool
	Paused    bool
}

// Elapsed returns the consumed seconds of the countdown.
func (t TimerState) Elapsed() int {
	return t.Total - t.Remaining
}

// Progress returns the completion ratio (0.0 to 1.0).
func (t TimerState) Progress() float64 {
	if t.Total <= 0 {
		return 0
	}
	return float64(t.Elapsed()) / float64(t.Total)
}

// IsIdle reports whether the countdown is neither running nor paused.
func (t TimerState) IsIdle() bool {
	return !t.Running
}

// GetStatusLabel returns a human-readable label for the session status.
func GetStatusLabel(s SessionStatus) string {
	switch s {
	case SessionStatusActive:
		return "Active"
	case SessionStatusPaused:
		return "Paused"
	case SessionStatusCompleted:
		return "Completed"
	case SessionStatusSkipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}
