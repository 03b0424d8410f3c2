package events

import (
	"sync"
	"time"
)

// BreakerState is the position of the sink circuit. The numeric values are
// exported as the circuit state gauge.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker guards the event sink. After threshold consecutive write
// failures it opens and events are dropped until the cooldown passes. The
// first delivery after the cooldown is a trial: success closes the circuit,
// failure reopens it for another cooldown.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration

	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool

	now     func() time.Time
	observe func(BreakerState)
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall
// back to 5 failures and a one minute cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a delivery may be attempted. While half-open only
// one trial is in flight at a time.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.setState(BreakerHalfOpen)
	}
	if cb.trial {
		return false
	}
	cb.trial = true
	return true
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.trial = false
	cb.setState(BreakerClosed)
}

// RecordFailure counts a failure and reports whether it opened the circuit.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trial = false

	switch cb.state {
	case BreakerHalfOpen:
		cb.trip()
		return true
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.trip()
			return true
		}
	}
	return false
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// onStateChange registers fn to be told about every state change and reports
// the current state to it immediately.
func (cb *CircuitBreaker) onStateChange(fn func(BreakerState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.observe = fn
	if fn != nil {
		fn(cb.state)
	}
}

func (cb *CircuitBreaker) trip() {
	cb.failures = 0
	cb.openedAt = cb.now()
	cb.setState(BreakerOpen)
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(s BreakerState) {
	if cb.state == s {
		return
	}
	cb.state = s
	if cb.observe != nil {
		cb.observe(s)
	}
}
