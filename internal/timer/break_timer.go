package timer

import (
	"sync"
	"time"

	"github.com/xvierd/stepflow/internal/domain"
)

// BreakListener receives break timer events.
type BreakListener interface {
	OnBreakTick(remaining int)
	OnBreakComplete(breakType domain.BreakType)
}

// BreakTimer counts a rest period down one second per tick. Unlike the focus
// countdown it does not correct for a throttled process.
type BreakTimer struct {
	mu       sync.Mutex
	interval time.Duration
	listener BreakListener

	active    bool
	running   bool
	remaining int
	total     int
	breakType domain.BreakType

	stopLoop chan struct{}
}

// NewBreakTimer creates an inactive break timer. The tick interval option
// sets the length of one counted second.
func NewBreakTimer(listener BreakListener, opts ...Option) *BreakTimer {
	o := options{interval: time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &BreakTimer{
		interval: o.interval,
		listener: listener,
	}
}

// Start begins a break of the given type and length, replacing any break in
// progress without firing its completion.
func (b *BreakTimer) Start(breakType domain.BreakType, seconds int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopLoopLocked()
	if seconds < 0 {
		seconds = 0
	}
	b.active = true
	b.running = true
	b.remaining = seconds
	b.total = seconds
	b.breakType = breakType
	b.startLoopLocked()
}

// Pause stops the per-second decrement.
func (b *BreakTimer) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active || !b.running {
		return
	}
	b.running = false
	b.stopLoopLocked()
}

// Resume continues a paused break.
func (b *BreakTimer) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active || b.running {
		return
	}
	b.running = true
	b.startLoopLocked()
}

// Tick removes one second and finishes the break at zero.
func (b *BreakTimer) Tick() {
	b.mu.Lock()
	if !b.active || !b.running {
		b.mu.Unlock()
		return
	}
	if b.remaining > 0 {
		b.remaining--
	}
	remaining := b.remaining
	b.mu.Unlock()

	if b.listener != nil {
		b.listener.OnBreakTick(remaining)
	}
	if remaining == 0 {
		b.finish()
	}
}

// End finishes the break early. The completion handler fires as if the
// break had run out.
func (b *BreakTimer) End() {
	b.finish()
}

// Reset abandons the break without firing the completion handler.
func (b *BreakTimer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clearLocked()
}

// State returns a snapshot of the break.
func (b *BreakTimer) State() domain.BreakState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return domain.BreakState{
		Active:    b.active,
		Remaining: b.remaining,
		Total:     b.total,
		Type:      b.breakType,
	}
}

// IsActive reports whether a break is in progress.
func (b *BreakTimer) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *BreakTimer) finish() {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return
	}
	breakType := b.breakType
	b.clearLocked()
	b.mu.Unlock()

	if b.listener != nil {
		b.listener.OnBreakComplete(breakType)
	}
}

func (b *BreakTimer) clearLocked() {
	b.stopLoopLocked()
	b.active = false
	b.running = false
	b.remaining = 0
	b.total = 0
	b.breakType = ""
}

func (b *BreakTimer) startLoopLocked() {
	if b.interval <= 0 || b.stopLoop != nil {
		return
	}
	stop := make(chan struct{})
	b.stopLoop = stop
	go func(interval time.Duration) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				b.Tick()
			}
		}
	}(b.interval)
}

func (b *BreakTimer) stopLoopLocked() {
	if b.stopLoop != nil {
		close(b.stopLoop)
		b.stopLoop = nil
	}
}
