package utils

import (
	"sync"
	"time"
)

type Entry[T any] struct {
	At    time.Time
	Value T
}

// SlidingWindow keeps values whose timestamps fall inside the trailing window.
// Entries must be added in non-decreasing time order.
type SlidingWindow[T any] struct {
	mu      sync.Mutex
	window  time.Duration
	entries []Entry[T]
}

func NewSlidingWindow[T any](window time.Duration) *SlidingWindow[T] {
	return &SlidingWindow[T]{window: window}
}

// Add prunes expired entries, appends value and returns the current entries.
func (w *SlidingWindow[T]) Add(now time.Time, value T) []Entry[T] {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	w.entries = append(w.entries, Entry[T]{At: now, Value: value})
	return append([]Entry[T](nil), w.entries...)
}

func (w *SlidingWindow[T]) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	return len(w.entries)
}

func (w *SlidingWindow[T]) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	idx := 0
	for _, entry := range w.entries {
		if entry.At.After(cutoff) {
			break
		}
		idx++
	}
	if idx == len(w.entries) {
		w.entries = nil
		return
	}
	w.entries = w.entries[idx:]
}
