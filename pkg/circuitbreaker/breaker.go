// Package circuitbreaker gates batch execution after failures. A failed
// settlement attempt trips the breaker, triggers arriving while it is open are
// dropped, and once the reset timeout elapses an optional callback fires so
// the engine can re-evaluate its triggers instead of waiting for the next
// external event.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/relaypool-hq/relaypool/pkg/logger"
)

// CircuitBreaker implements the circuit breaker pattern around settlement
// execution.
type CircuitBreaker struct {
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	onReset       func()
	resetTimer    *time.Timer
	logger        logger.Logger
	mu            sync.Mutex
}

// New creates a circuit breaker. With threshold 1 it acts as a plain
// execution cooldown: every failure opens it for resetTimeout.
func New(enabled bool, threshold int, window time.Duration, resetTimeout time.Duration, log logger.Logger) *CircuitBreaker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &CircuitBreaker{
		enabled:       enabled,
		failThreshold: threshold,
		failureWindow: window,
		resetTimeout:  resetTimeout,
		logger:        log,
	}
}

// SetResetCallback registers a function invoked once each time the breaker
// transitions from open back to closed. The callback runs on a timer
// goroutine and must not call back into the breaker while holding locks the
// breaker's callers hold.
func (cb *CircuitBreaker) SetResetCallback(fn func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onReset = fn
}

// RecordFailure records a failure and trips the circuit if the threshold is
// exceeded. Returns true if the circuit is (now) open.
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	if cb.tripped {
		if time.Since(cb.tripTime) > cb.resetTimeout {
			cb.logger.NoticeWithScope(logger.Executor, "Cooldown elapsed, closing circuit")
			cb.tripped = false
			cb.failureCount = 0
		} else {
			return true
		}
	}

	// Reset failure count if outside window
	if time.Since(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}

	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
		cb.logger.NoticeWithScope(logger.Executor, "Circuit tripped after %d failure(s), cooling down for %v", cb.failureCount, cb.resetTimeout)
		cb.scheduleReset()
		return true
	}

	return false
}

// scheduleReset arms the proactive re-check timer. Caller holds cb.mu.
func (cb *CircuitBreaker) scheduleReset() {
	if cb.resetTimer != nil {
		cb.resetTimer.Stop()
	}
	cb.resetTimer = time.AfterFunc(cb.resetTimeout, func() {
		cb.mu.Lock()
		wasTripped := cb.tripped
		cb.tripped = false
		cb.failureCount = 0
		fn := cb.onReset
		cb.mu.Unlock()

		if wasTripped && fn != nil {
			fn()
		}
	})
}

// IsOpen returns true if the circuit is open (tripped).
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	// If tripped but the reset timeout has passed, close it here as well in
	// case the timer goroutine has not run yet
	if cb.tripped && time.Since(cb.tripTime) > cb.resetTimeout {
		cb.tripped = false
		cb.failureCount = 0
		return false
	}

	return cb.tripped
}

// Reset manually closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.resetTimer != nil {
		cb.resetTimer.Stop()
	}
	cb.tripped = false
	cb.failureCount = 0
}

// GetState returns the current failure bookkeeping.
func (cb *CircuitBreaker) GetState() (failureCount int, lastFailure time.Time, failureWindow time.Duration, failThreshold int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount, cb.lastFailure, cb.failureWindow, cb.failThreshold
}

// GetTripTime returns the time when the circuit was tripped.
func (cb *CircuitBreaker) GetTripTime() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.tripTime
}

// IsEnabled returns true if the circuit breaker is enabled.
func (cb *CircuitBreaker) IsEnabled() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.enabled
}
