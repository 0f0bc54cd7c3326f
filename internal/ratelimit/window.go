package ratelimit

import "time"

// slidingWindow approximates a rolling window with two fixed buckets. The
// previous bucket counts in proportion to how much of it still overlaps the
// rolling window, so with 5 per minute a sender who used all 5 last minute
// gets about 2 back 30s into the next one.
//
// It is not synchronized; keyedEntry.mu guards it.
type slidingWindow struct {
	limit int
	size  time.Duration
	start time.Time // Start of the current bucket
	curr  int
	prev  int
}

func newSlidingWindow(limit int, size time.Duration, now time.Time) *slidingWindow {
	if limit <= 0 || size <= 0 {
		return nil
	}
	return &slidingWindow{limit: limit, size: size, start: now}
}

// advance moves the current bucket forward to contain now.
func (w *slidingWindow) advance(now time.Time) {
	elapsed := now.Sub(w.start)
	if elapsed < w.size {
		return
	}
	buckets := elapsed / w.size
	if buckets == 1 {
		w.prev = w.curr
	} else {
		w.prev = 0
	}
	w.curr = 0
	w.start = w.start.Add(buckets * w.size)
}

func (w *slidingWindow) count(now time.Time) float64 {
	w.advance(now)
	overlap := float64(w.size-now.Sub(w.start)) / float64(w.size)
	overlap = min(max(overlap, 0), 1)
	return float64(w.curr) + float64(w.prev)*overlap
}

func (w *slidingWindow) room(now time.Time) bool {
	return w.count(now) < float64(w.limit)
}

func (w *slidingWindow) add(now time.Time) {
	w.advance(now)
	w.curr++
}

func (w *slidingWindow) remaining(now time.Time) int {
	return max(int(float64(w.limit)-w.count(now)), 0)
}

// idle reports whether dropping the window would change no decision.
func (w *slidingWindow) idle(now time.Time) bool {
	return w.count(now) == 0
}
