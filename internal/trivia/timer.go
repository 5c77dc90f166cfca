package trivia

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a single-shot deadline that can be rescheduled.
// Only one deadline is outstanding at a time.
type Timer struct {
	clock clockwork.Clock

	mu sync.Mutex
	t  clockwork.Timer
}

func NewTimer(clock clockwork.Clock) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Timer{clock: clock}
}

// Arm schedules onFire to run once after d, replacing any armed deadline.
func (t *Timer) Arm(d time.Duration, onFire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		t.t.Stop()
	}
	t.t = t.clock.AfterFunc(d, onFire)
}

// Cancel stops the armed deadline. A callback that already started keeps running.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}
