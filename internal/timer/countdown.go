// Package timer provides the focus countdown and the break timer.
//
// The focus countdown derives the remaining time from wall-clock timestamps
// so a throttled or sleeping process still reads the correct value. The break
// timer is a plain per-tick decrement.
package timer

import (
	"sync"
	"time"

	"github.com/xvierd/stepflow/internal/clock"
	"github.com/xvierd/stepflow/internal/domain"
)

// DefaultTickInterval is how often the background loop re-reads the clock.
const DefaultTickInterval = 250 * time.Millisecond

// Listener receives countdown events. Callbacks run without the countdown
// lock held, so they may call back into the countdown.
type Listener interface {
	// OnTick is called when the whole-second remaining value changes.
	OnTick(remaining int)

	// OnComplete is called once per run when the countdown reaches zero or
	// is skipped.
	OnComplete()
}

type nopListener struct{}

func (nopListener) OnTick(int)  {}
func (nopListener) OnComplete() {}

type options struct {
	clock    clock.Clock
	interval time.Duration
}

// Option configures a countdown or break timer.
type Option func(*options)

// WithClock sets the clock used to measure elapsed time.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithTickInterval sets the background loop period. Zero disables the loop;
// callers then drive the timer through Tick.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.RealClock{}, interval: DefaultTickInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Countdown is a drift-corrected focus timer.
type Countdown struct {
	mu       sync.Mutex
	clock    clock.Clock
	interval time.Duration
	listener Listener

	total     int
	remaining int
	running   bool
	paused    bool

	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	lastTick    int
	fired       bool

	stopLoop chan struct{}
}

// NewCountdown creates an idle countdown of totalSeconds.
func NewCountdown(totalSeconds int, listener Listener, opts ...Option) *Countdown {
	o := buildOptions(opts)
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	if listener == nil {
		listener = nopListener{}
	}
	return &Countdown{
		clock:     o.clock,
		interval:  o.interval,
		listener:  listener,
		total:     totalSeconds,
		remaining: totalSeconds,
		lastTick:  totalSeconds,
	}
}

// Start begins, resumes or continues the countdown.
//
// From a pause, the paused interval is added to the paused accumulator.
// From an idle countdown with partially consumed time, the start timestamp
// is back-dated so the consumed seconds are kept. Start is a no-op while
// running and not paused.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running && !c.paused {
		return
	}

	now := c.clock.Now()
	switch {
	case c.running && c.paused:
		c.pausedTotal += now.Sub(c.pausedAt)
		c.pausedAt = time.Time{}
		c.paused = false
	case c.remaining <= 0 || c.remaining >= c.total:
		c.remaining = c.total
		c.startedAt = now
		c.pausedTotal = 0
		c.fired = false
		c.running = true
	default:
		consumed := time.Duration(c.total-c.remaining) * time.Second
		c.startedAt = now.Add(-consumed)
		c.pausedTotal = 0
		c.running = true
	}
	c.lastTick = c.remaining
	c.startLoopLocked()
}

// Pause freezes the countdown. It is a no-op unless running and not paused.
func (c *Countdown) Pause() {
	// Settle the remaining time first; the countdown may have just expired.
	c.Tick()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.paused {
		return
	}
	c.pausedAt = c.clock.Now()
	c.paused = true
	c.stopLoopLocked()
}

// Reset returns the countdown to idle at its full duration.
func (c *Countdown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLoopLocked()
	c.running = false
	c.paused = false
	c.remaining = c.total
	c.lastTick = c.total
	c.startedAt = time.Time{}
	c.pausedAt = time.Time{}
	c.pausedTotal = 0
	c.fired = false
}

// Skip ends the countdown immediately and fires OnComplete synchronously,
// unless this run has already completed.
func (c *Countdown) Skip() {
	c.mu.Lock()
	c.stopLoopLocked()
	c.remaining = 0
	c.lastTick = 0
	c.running = false
	c.paused = false
	fire := !c.fired
	c.fired = true
	listener := c.listener
	c.mu.Unlock()

	if fire {
		listener.OnComplete()
	}
}

// Restore puts an idle countdown at the given remaining seconds so the next
// Start continues from there.
func (c *Countdown) Restore(remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLoopLocked()
	if remaining < 0 {
		remaining = 0
	}
	if remaining > c.total {
		remaining = c.total
	}
	c.running = false
	c.paused = false
	c.remaining = remaining
	c.lastTick = remaining
	c.pausedTotal = 0
	c.fired = false
}

// Tick re-reads the clock and emits events. The background loop calls it;
// tests call it directly.
func (c *Countdown) Tick() {
	c.mu.Lock()
	if !c.running || c.paused {
		c.mu.Unlock()
		return
	}

	remaining := c.remainingAtLocked(c.clock.Now())
	c.remaining = remaining

	tick := remaining != c.lastTick
	c.lastTick = remaining

	complete := false
	if remaining == 0 {
		c.running = false
		c.stopLoopLocked()
		if !c.fired {
			c.fired = true
			complete = true
		}
	}
	listener := c.listener
	c.mu.Unlock()

	if tick {
		listener.OnTick(remaining)
	}
	if complete {
		listener.OnComplete()
	}
}

// State returns a snapshot with the remaining time read from the clock.
func (c *Countdown) State() domain.TimerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.remaining
	if c.running && !c.paused {
		remaining = c.remainingAtLocked(c.clock.Now())
	}
	return domain.TimerState{
		Total:     c.total,
		Remaining: remaining,
		Running:   c.running,
		Paused:    c.paused,
	}
}

// Close stops the background loop without changing the countdown state.
func (c *Countdown) Close() {
	c.mu.Lock()
	c.stopLoopLocked()
	c.mu.Unlock()
}

// remainingAtLocked computes total minus the non-paused wall-clock time
// since the start timestamp.
func (c *Countdown) remainingAtLocked(now time.Time) int {
	elapsed := now.Sub(c.startedAt) - c.pausedTotal
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := c.total - int(elapsed/time.Second)
	if remaining < 0 {
		return 0
	}
	if remaining > c.total {
		return c.total
	}
	return remaining
}

func (c *Countdown) startLoopLocked() {
	if c.interval <= 0 || c.stopLoop != nil {
		return
	}
	stop := make(chan struct{})
	c.stopLoop = stop
	go c.loop(stop, c.interval)
}

func (c *Countdown) stopLoopLocked() {
	if c.stopLoop != nil {
		close(c.stopLoop)
		c.stopLoop = nil
	}
}

func (c *Countdown) loop(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}
