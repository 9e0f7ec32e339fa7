package services

import (
	"sync"

	"github.com/xvierd/stepflow/internal/domain"
)

// EventType names a focus flow transition.
type EventType string

const (
	EventTick             EventType = "tick"
	EventSessionStarted   EventType = "session_started"
	EventSessionPaused    EventType = "session_paused"
	EventSessionResumed   EventType = "session_resumed"
	EventStopRequested    EventType = "stop_requested"
	EventStopCancelled    EventType = "stop_cancelled"
	EventSessionStopped   EventType = "session_stopped"
	EventSessionCompleted EventType = "session_completed"
	EventDistraction      EventType = "distraction_logged"
	EventBreakStarted     EventType = "break_started"
	EventBreakTick        EventType = "break_tick"
	EventBreakCompleted   EventType = "break_completed"
	EventPromptChanged    EventType = "prompt_changed"
)

// Event is published to subscribers after each transition.
type Event struct {
	Type      EventType                 `json:"type"`
	SessionID string                    `json:"session_id,omitempty"`
	Remaining int                       `json:"remaining"`
	Prompt    domain.Prompt             `json:"prompt,omitempty"`
	BreakType domain.BreakType          `json:"break_type,omitempty"`
	Summary   *domain.CompletionSummary `json:"summary,omitempty"`
}

// EventFunc receives published events. It must not block.
type EventFunc func(Event)

type eventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]EventFunc
}

func (b *eventBus) subscribe(fn EventFunc) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]EventFunc)
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *eventBus) publish(ev Event) {
	b.mu.Lock()
	subs := make([]EventFunc, 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
