package export

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("export: upload circuit open")

// CircuitBreaker opens after threshold failures inside window and rejects
// calls until openDuration has passed.
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     []time.Time
	threshold    int
	window       time.Duration
	openUntil    time.Time
	openDuration time.Duration
	nowFunc      func() time.Time
}

// NewCircuitBreaker creates a configured circuit breaker. A threshold below
// one disables it.
func NewCircuitBreaker(threshold int, window, openDuration time.Duration) *CircuitBreaker {
	if threshold < 1 {
		return nil
	}
	return &CircuitBreaker{
		threshold:    threshold,
		window:       window,
		openDuration: openDuration,
		failures:     make([]time.Time, 0, threshold),
		nowFunc:      time.Now,
	}
}

// RecordFailure records a failure and opens the breaker once the threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.nowFunc()
	cutoff := now.Add(-cb.window)
	kept := cb.failures[:0]
	for _, at := range cb.failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	cb.failures = append(kept, now)

	if len(cb.failures) >= cb.threshold {
		cb.openUntil = now.Add(cb.openDuration)
		cb.failures = cb.failures[:0]
	}
}

// RecordSuccess clears the failure history.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = cb.failures[:0]
	cb.openUntil = time.Time{}
}

// IsOpen reports whether calls are currently rejected.
func (cb *CircuitBreaker) IsOpen() bool {
	if cb == nil {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.nowFunc().Before(cb.openUntil)
}
