package notification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xvierd/stepflow/internal/domain"
)

type sent struct {
	title   string
	message string
}

func capture(t *testing.T, err error) *[]sent {
	t.Helper()
	var got []sent
	orig := notify
	notify = func(title, message string) error {
		got = append(got, sent{title, message})
		return err
	}
	t.Cleanup(func() { notify = orig })
	return &got
}

func TestNotifier_Disabled(t *testing.T) {
	got := capture(t, nil)
	n := New(false)

	require.NoError(t, n.SessionStarted("Write", 25))
	require.NoError(t, n.BreakCompleted(domain.BreakShort))
	assert.Empty(t, *got)
}

func TestNotifier_Messages(t *testing.T) {
	got := capture(t, nil)
	n := New(true)

	require.NoError(t, n.SessionStarted("Write report", 25))
	require.NoError(t, n.SessionCompleted(domain.CompletionSummary{TaskTitle: "Write report", CompletedSteps: 2, TotalSteps: 3}))
	require.NoError(t, n.SessionCompleted(domain.CompletionSummary{TaskTitle: "Write report", TotalSteps: 3, TaskCompleted: true}))
	require.NoError(t, n.BreakStarted(domain.BreakLong, 15))

	require.Len(t, *got, 4)
	assert.Equal(t, "Focus started", (*got)[0].title)
	assert.Contains(t, (*got)[0].message, "25 minutes")
	assert.Contains(t, (*got)[1].message, "2 of 3 steps")
	assert.Equal(t, "Task complete!", (*got)[2].title)
	assert.Contains(t, (*got)[3].message, "15 minute long break")
}

func TestNotifier_Toggle(t *testing.T) {
	got := capture(t, errors.New("no display"))
	n := New(true)

	assert.Error(t, n.BreakStarted(domain.BreakShort, 5))
	n.SetEnabled(false)
	assert.NoError(t, n.BreakStarted(domain.BreakShort, 5))
	assert.Len(t, *got, 1)
}
