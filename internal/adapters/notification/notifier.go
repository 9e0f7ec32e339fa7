// Package notification provides desktop notifications for session events.
package notification

import (
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/beeep"

	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

// notify is swapped in tests.
var notify = func(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Notifier implements ports.Notifier with desktop notifications.
type Notifier struct {
	enabled atomic.Bool
}

var _ ports.Notifier = (*Notifier)(nil)

// New creates a notifier.
func New(enabled bool) *Notifier {
	n := &Notifier{}
	n.enabled.Store(enabled)
	return n
}

// SetEnabled turns notifications on or off.
func (n *Notifier) SetEnabled(enabled bool) {
	n.enabled.Store(enabled)
}

// IsEnabled returns true if notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	return n.enabled.Load()
}

// SessionStarted implements ports.Notifier.
func (n *Notifier) SessionStarted(taskTitle string, minutes int) error {
	return n.send("Focus started", fmt.Sprintf("%d minutes on %q.", minutes, taskTitle))
}

// SessionCompleted implements ports.Notifier.
func (n *Notifier) SessionCompleted(summary domain.CompletionSummary) error {
	if summary.TaskCompleted {
		return n.send("Task complete!", fmt.Sprintf("%q is done. All %d steps finished.", summary.TaskTitle, summary.TotalSteps))
	}
	return n.send("Session complete", fmt.Sprintf("%d of %d steps done on %q. Time for a break?",
		summary.CompletedSteps, summary.TotalSteps, summary.TaskTitle))
}

// BreakStarted implements ports.Notifier.
func (n *Notifier) BreakStarted(breakType domain.BreakType, minutes int) error {
	return n.send("Break time", fmt.Sprintf("Enjoy a %d minute %s break.", minutes, breakType))
}

// BreakCompleted implements ports.Notifier.
func (n *Notifier) BreakCompleted(breakType domain.BreakType) error {
	return n.send("Break over", fmt.Sprintf("Your %s break is complete. Ready to focus?", breakType))
}

func (n *Notifier) send(title, message string) error {
	if !n.IsEnabled() {
		return nil
	}
	return notify(title, message)
}
