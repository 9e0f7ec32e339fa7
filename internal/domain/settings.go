package domain

import "time"

// BreakType distinguishes short rests from the longer one after a cycle.
type BreakType string

const (
	BreakShort BreakType = "short"
	BreakLong  BreakType = "long"
)

// Label returns a human-readable label for the break type.
func (b BreakType) Label() string {
	switch b {
	case BreakShort:
		return "Short Break"
	case BreakLong:
		return "Long Break"
	default:
		return "Break"
	}
}

// Settings holds the user preferences read at each flow decision.
type Settings struct {
	DefaultSessionDuration  time.Duration
	BreakDuration           time.Duration
	LongBreakDuration       time.Duration
	SessionsBeforeLongBreak int
	AutoStartBreaks         bool
	NotificationsEnabled    bool
}

// DefaultSettings returns the standard focus configuration.
func DefaultSettings() Settings {
	return Settings{
		DefaultSessionDuration:  25 * time.Minute,
		BreakDuration:           5 * time.Minute,
		LongBreakDuration:       15 * time.Minute,
		SessionsBeforeLongBreak: 4,
		AutoStartBreaks:         false,
		NotificationsEnabled:    true,
	}
}

// SessionSeconds returns the focus duration in whole seconds.
func (s Settings) SessionSeconds() int {
	return int(s.DefaultSessionDuration / time.Second)
}

// BreakFor returns the break type and length that follows the given number
// of completed sessions.
func (s Settings) BreakFor(completedSessions int) (BreakType, int) {
	if s.SessionsBeforeLongBreak > 0 && completedSessions > 0 &&
		completedSessions%s.SessionsBeforeLongBreak == 0 {
		return BreakLong, int(s.LongBreakDuration / time.Second)
	}
	return BreakShort, int(s.BreakDuration / time.Second)
}
