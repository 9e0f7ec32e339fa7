package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xvierd/stepflow/internal/clock"
)

type recordingListener struct {
	mu        sync.Mutex
	ticks     []int
	completed int
}

func (r *recordingListener) OnTick(remaining int) {
	r.mu.Lock()
	r.ticks = append(r.ticks, remaining)
	r.mu.Unlock()
}

func (r *recordingListener) OnComplete() {
	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
}

func (r *recordingListener) completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

func newTestCountdown(total int) (*Countdown, *clock.Manual, *recordingListener) {
	clk := clock.NewManual(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	l := &recordingListener{}
	c := NewCountdown(total, l, WithClock(clk), WithTickInterval(0))
	return c, clk, l
}

func TestCountdown_StartAndTick(t *testing.T) {
	c, clk, l := newTestCountdown(60)

	state := c.State()
	assert.False(t, state.Running)
	assert.Equal(t, 60, state.Remaining)

	c.Start()
	clk.Advance(10 * time.Second)
	c.Tick()

	state = c.State()
	assert.True(t, state.Running)
	assert.False(t, state.Paused)
	assert.Equal(t, 50, state.Remaining)
	assert.Equal(t, []int{50}, l.ticks)
}

func TestCountdown_TickFiresOncePerSecondValue(t *testing.T) {
	c, clk, l := newTestCountdown(60)
	c.Start()

	clk.Advance(400 * time.Millisecond)
	c.Tick()
	clk.Advance(400 * time.Millisecond)
	c.Tick()
	assert.Empty(t, l.ticks, "no whole second elapsed yet")

	clk.Advance(400 * time.Millisecond)
	c.Tick()
	c.Tick()
	assert.Equal(t, []int{59}, l.ticks)
}

func TestCountdown_DriftCorrection(t *testing.T) {
	c, clk, _ := newTestCountdown(600)

	c.Start()
	// A throttled process may not tick for a long time.
	clk.Advance(125 * time.Second)
	c.Tick()
	assert.Equal(t, 475, c.State().Remaining)

	c.Pause()
	clk.Advance(1000 * time.Second)
	c.Tick()
	assert.Equal(t, 475, c.State().Remaining, "paused time must not count")

	c.Start()
	clk.Advance(75*time.Second + 500*time.Millisecond)
	c.Tick()
	assert.Equal(t, 400, c.State().Remaining)
}

func TestCountdown_EndToEndWithPause(t *testing.T) {
	c, clk, l := newTestCountdown(1500)

	c.Start()
	clk.Advance(1200 * time.Second)
	c.Tick()
	c.Pause()

	clk.Advance(300 * time.Second)
	c.Start()

	clk.Advance(300 * time.Second)
	c.Tick()

	state := c.State()
	assert.Equal(t, 0, state.Remaining)
	assert.False(t, state.Running)
	assert.Equal(t, 1, l.completions())
}

func TestCountdown_StartIsNoOpWhileRunning(t *testing.T) {
	c, clk, _ := newTestCountdown(100)
	c.Start()
	clk.Advance(30 * time.Second)
	c.Start()
	c.Tick()
	assert.Equal(t, 70, c.State().Remaining)
}

func TestCountdown_PauseIsNoOpWhenIdle(t *testing.T) {
	c, _, _ := newTestCountdown(100)
	c.Pause()
	state := c.State()
	assert.False(t, state.Running)
	assert.False(t, state.Paused)
}

func TestCountdown_SkipIsIdempotent(t *testing.T) {
	c, clk, l := newTestCountdown(10)
	c.Start()
	clk.Advance(11 * time.Second)
	c.Tick()
	require.Equal(t, 1, l.completions())

	c.Skip()
	assert.Equal(t, 1, l.completions(), "skip after natural completion must not fire again")
}

func TestCountdown_SkipFiresSynchronously(t *testing.T) {
	c, clk, l := newTestCountdown(300)
	c.Start()
	clk.Advance(20 * time.Second)
	c.Pause()

	c.Skip()
	assert.Equal(t, 1, l.completions())

	state := c.State()
	assert.Equal(t, 0, state.Remaining)
	assert.False(t, state.Running)
	assert.False(t, state.Paused)

	c.Skip()
	assert.Equal(t, 1, l.completions())
}

func TestCountdown_Reset(t *testing.T) {
	c, clk, l := newTestCountdown(300)
	c.Start()
	clk.Advance(20 * time.Second)
	c.Tick()
	c.Reset()

	state := c.State()
	assert.Equal(t, 300, state.Remaining)
	assert.False(t, state.Running)

	// A reset run can complete again.
	c.Start()
	c.Skip()
	assert.Equal(t, 1, l.completions())
}

func TestCountdown_RestoreBackdatesStart(t *testing.T) {
	c, clk, _ := newTestCountdown(1500)
	c.Restore(900)
	assert.Equal(t, 900, c.State().Remaining)
	assert.False(t, c.State().Running)

	c.Start()
	clk.Advance(100 * time.Second)
	c.Tick()
	assert.Equal(t, 800, c.State().Remaining)
}

func TestCountdown_StartAfterCompletionRestarts(t *testing.T) {
	c, clk, l := newTestCountdown(5)
	c.Start()
	clk.Advance(5 * time.Second)
	c.Tick()
	require.Equal(t, 1, l.completions())

	c.Start()
	assert.Equal(t, 5, c.State().Remaining)
	clk.Advance(5 * time.Second)
	c.Tick()
	assert.Equal(t, 2, l.completions())
}

func TestCountdown_BackgroundLoop(t *testing.T) {
	l := &recordingListener{}
	c := NewCountdown(1, l, WithTickInterval(10*time.Millisecond))
	c.Start()
	defer c.Close()

	require.Eventually(t, func() bool {
		return l.completions() == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.False(t, c.State().Running)
}
