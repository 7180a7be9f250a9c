package raytracing

import (
	"testing"
	"time"
)

func TestThrottleFirstTickFires(t *testing.T) {
	th := NewThrottle(time.Hour)
	if !th.Tick(0) {
		t.Fatal("first tick must fire")
	}
	if th.Tick(time.Millisecond) {
		t.Fatal("second tick fired before the interval elapsed")
	}
	th.Reset()
	if !th.Tick(0) {
		t.Fatal("tick after Reset must fire")
	}
}

func TestThrottleZeroIntervalAlwaysFires(t *testing.T) {
	th := NewThrottle(0)
	for i := 0; i < 5; i++ {
		if !th.Tick(time.Microsecond) {
			t.Fatalf("tick %d did not fire", i)
		}
	}
}

func TestThrottleEventCount(t *testing.T) {
	tests := []struct {
		interval time.Duration
		frame    time.Duration
		frames   int
	}{
		{33 * time.Millisecond, 16 * time.Millisecond, 600},
		{33 * time.Millisecond, 7 * time.Millisecond, 1000},
		{33 * time.Millisecond, 33 * time.Millisecond, 50},
		{50 * time.Millisecond, 13 * time.Millisecond, 77},
		{10 * time.Millisecond, 3 * time.Millisecond, 5},
	}
	for _, tt := range tests {
		th := NewThrottle(tt.interval)
		events := 0
		for i := 0; i < tt.frames; i++ {
			if th.Tick(tt.frame) {
				events++
			}
		}
		d := tt.frame * time.Duration(tt.frames)
		lo := int(d / tt.interval)
		if events != lo && events != lo+1 {
			t.Errorf("T=%v frame=%v n=%d: %d events, want %d or %d", tt.interval, tt.frame, tt.frames, events, lo, lo+1)
		}
	}
}

func TestThrottleCarriesRemainder(t *testing.T) {
	th := NewThrottle(30 * time.Millisecond)
	th.Tick(0)
	// 20+20 = 40: fires with 10ms carried
	th.Tick(20 * time.Millisecond)
	if !th.Tick(20 * time.Millisecond) {
		t.Fatal("expected event after 40ms")
	}
	// 10 carried + 20 = 30: fires again
	if !th.Tick(20 * time.Millisecond) {
		t.Fatal("remainder was not carried into the next interval")
	}
}

func TestThrottleLongStallFiresOnce(t *testing.T) {
	th := NewThrottle(10 * time.Millisecond)
	th.Tick(0)
	if !th.Tick(time.Second) {
		t.Fatal("stall should fire")
	}
	if th.Tick(0) {
		t.Fatal("stall backlog must not produce extra events")
	}
}
