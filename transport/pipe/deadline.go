package pipe

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type deadline struct {
	clock clock.Clock

	m     sync.Mutex
	timer *clock.Timer
	t     time.Time
}

func newDeadLine(clock clock.Clock) *deadline { return &deadline{clock: clock} }

// set replaces the deadline. onExceed runs once t passes, unless set is called again before.
// A deadline already in the past runs onExceed right away.
func (d *deadline) set(t time.Time, onExceed func()) {
	if d.reset(t, onExceed) {
		onExceed()
	}
}

func (d *deadline) reset(t time.Time, onExceed func()) (passed bool) {
	d.m.Lock()
	defer d.m.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.t = t
	if t.IsZero() {
		return false
	}

	until := d.clock.Until(t)
	if until <= 0 {
		return true
	}

	// onExceed takes the waiters' lock, so it must not run under d.m.
	d.timer = d.clock.AfterFunc(until, onExceed)
	return false
}

func (d *deadline) exceeded() bool {
	d.m.Lock()
	defer d.m.Unlock()

	if d.t.IsZero() {
		return false
	}

	return d.clock.Until(d.t) <= 0
}
