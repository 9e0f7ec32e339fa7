package domain

// BreakState is a snapshot of the break timer.
type BreakState struct {
	Active    bool
	Remaining int // seconds
	Total     int // seconds
	Type      BreakType
}

// CompletionSummary is assembled when a focus session completes.
type CompletionSummary struct {
	SessionID      string `json:"session_id"`
	Duration       int    `json:"duration"` // seconds
	TaskID         string `json:"task_id"`
	TaskTitle      string `json:"task_title"`
	CompletedSteps int    `json:"completed_steps"`
	TotalSteps     int    `json:"total_steps"`
	Streak         int    `json:"streak"`
	TaskCompleted  bool   `json:"task_completed"`
}

// CurrentState represents the state visible to a client.
type CurrentState struct {
	ActiveTask    *Task
	ActiveSession *Session
	Timer         TimerState
	Break         BreakState
	Prompt        Prompt
	Summary       *CompletionSummary
	Streak        int
}

// IsSessionActive returns true if there's an active or paused session.
func (cs *CurrentState) IsSessionActive() bool {
	return cs.ActiveSession != nil && !cs.ActiveSession.IsTerminal()
}

// Prompt identifies the modal a client should show.
type Prompt string

const (
	PromptNone          Prompt = ""
	PromptStopReason    Prompt = "stop_reason"
	PromptCompletion    Prompt = "completion"
	PromptCelebration   Prompt = "celebration"
	PromptBreakComplete Prompt = "break_complete"
)
