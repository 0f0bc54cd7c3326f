package ratelimit

import (
	"testing"
	"time"
)

func TestNewSlidingWindow_Disabled(t *testing.T) {
	t.Parallel()
	now := time.Now()
	if newSlidingWindow(0, time.Minute, now) != nil {
		t.Error("limit 0 must disable the window")
	}
	if newSlidingWindow(5, 0, now) != nil {
		t.Error("zero size must disable the window")
	}
}

func TestSlidingWindow_FivePerMinute(t *testing.T) {
	t.Parallel()
	now := time.Now()
	w := newSlidingWindow(5, time.Minute, now)

	for i := range 5 {
		if !w.room(now) {
			t.Fatalf("message %d rejected", i+1)
		}
		w.add(now)
	}
	if w.room(now) {
		t.Error("sixth message within the minute must be rejected")
	}
	if got := w.remaining(now); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}

func TestSlidingWindow_PreviousBucketDecays(t *testing.T) {
	t.Parallel()
	start := time.Now()
	w := newSlidingWindow(10, time.Minute, start)
	for range 10 {
		w.add(start)
	}

	// 24s into the next bucket the previous one weighs 0.6.
	now := start.Add(time.Minute + 24*time.Second)
	if got := w.count(now); got < 5.99 || got > 6.01 {
		t.Errorf("count = %v, want ~6", got)
	}
	if got := w.remaining(now); got != 4 {
		t.Errorf("remaining = %d, want 4", got)
	}
	if !w.room(now) {
		t.Error("decayed window must have room")
	}
}

func TestSlidingWindow_IdleAfterTwoBuckets(t *testing.T) {
	t.Parallel()
	start := time.Now()
	w := newSlidingWindow(5, time.Minute, start)
	w.add(start)

	if w.idle(start.Add(time.Minute + 30*time.Second)) {
		t.Error("window with a message in the previous bucket must not be idle")
	}
	if !w.idle(start.Add(2*time.Minute + time.Second)) {
		t.Error("window must be idle once two buckets passed")
	}
	if w.prev != 0 || w.curr != 0 {
		t.Errorf("buckets = (%d, %d) after a long gap, want empty", w.prev, w.curr)
	}
}
