package domain

import (
	"testing"
	"time"
)

func TestCurrentState_IsSessionActive(t *testing.T) {
	var cs CurrentState
	if cs.IsSessionActive() {
		t.Error("empty state has no session")
	}

	cs.ActiveSession = NewSession(nil, 1500, time.Time{})
	if !cs.IsSessionActive() {
		t.Error("active session not reported")
	}

	cs.ActiveSession.Status = SessionStatusPaused
	if !cs.IsSessionActive() {
		t.Error("paused session not reported")
	}

	cs.ActiveSession.Status = SessionStatusCompleted
	if cs.IsSessionActive() {
		t.Error("completed session reported as active")
	}
}

func TestBreakType_Label(t *testing.T) {
	if BreakShort.Label() != "Short Break" || BreakLong.Label() != "Long Break" {
		t.Errorf("labels = %q, %q", BreakShort.Label(), BreakLong.Label())
	}
	if BreakType("").Label() != "Break" {
		t.Errorf("unknown label = %q", BreakType("").Label())
	}
}
