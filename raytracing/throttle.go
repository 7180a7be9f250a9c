package raytracing

import "time"

// DefaultRebuildInterval caps rebuilds at roughly 30 per second.
const DefaultRebuildInterval = 33 * time.Millisecond

// Throttle allows at most one event per Interval of accumulated frame time.
// The first Tick always fires. Time left over after an event carries into
// the next interval, so over a span D the event count is floor(D/T) or one
// more. An Interval of zero fires on every Tick.
type Throttle struct {
	Interval time.Duration

	started bool
	pending time.Duration
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{Interval: interval}
}

// Tick advances the throttle by elapsed and reports whether the caller
// should act this frame.
func (t *Throttle) Tick(elapsed time.Duration) bool {
	if !t.started {
		t.started = true
		return true
	}
	if t.Interval <= 0 {
		return true
	}
	if elapsed > 0 {
		t.pending += elapsed
	}
	if t.pending < t.Interval {
		return false
	}
	t.pending -= t.Interval
	// a long stall must not turn into a burst of back-to-back events
	if t.pending >= t.Interval {
		t.pending %= t.Interval
	}
	return true
}

// Reset makes the next Tick fire again.
func (t *Throttle) Reset() {
	t.started = false
	t.pending = 0
}
