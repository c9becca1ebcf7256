package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	start time.Time
	end   time.Time
	count int
}

// MemoryCounter keeps per-process counters. Each serverless instance has
// its own, so the effective limit scales with instance count.
type MemoryCounter struct {
	mu        sync.Mutex
	windows   map[string]*memoryWindow
	lastSweep time.Time
}

// NewMemoryCounter returns an empty in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*memoryWindow)}
}

// Incr counts one hit and drops windows that have already ended.
func (m *MemoryCounter) Incr(_ context.Context, key string, windowStart time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if windowStart.Sub(m.lastSweep) >= window {
		m.sweep(windowStart)
		m.lastSweep = windowStart
	}

	w, ok := m.windows[key]
	if !ok || !w.start.Equal(windowStart) {
		w = &memoryWindow{start: windowStart, end: windowStart.Add(window)}
		m.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// Len reports how many keys are tracked.
func (m *MemoryCounter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *MemoryCounter) sweep(now time.Time) {
	for k, w := range m.windows {
		if !w.end.After(now) {
			delete(m.windows, k)
		}
	}
}
