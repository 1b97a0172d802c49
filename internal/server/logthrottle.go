// Package server implements a token bucket used to throttle repetitive log
// output, such as per-client drop warnings during sustained backpressure.
package server

import (
	"sync"
	"time"
)

type logThrottle struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
}

func newLogThrottle(capacity int, interval time.Duration) *logThrottle {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	rate := float64(capacity) / interval.Seconds()
	if rate <= 0 {
		rate = float64(capacity)
	}

	return &logThrottle{
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      rate,
		lastCheck: time.Now(),
	}
}

func (t *logThrottle) allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(t.lastCheck).Seconds()
	t.lastCheck = now

	if elapsed > 0 {
		t.tokens += elapsed * t.rate
		if t.tokens > t.capacity {
			t.tokens = t.capacity
		}
	}

	if t.tokens < 1 {
		return false
	}

	t.tokens--
	return true
}
