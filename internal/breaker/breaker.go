// Package breaker implements a three-state circuit breaker used to gate
// outbound calls (polling requests, connection attempts).
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's gating mode.
type State string

const (
	// StateClosed passes every call.
	StateClosed State = "closed"

	// StateOpen rejects every call until the reset timeout elapses.
	StateOpen State = "open"

	// StateHalfOpen admits a probing stream of calls.
	StateHalfOpen State = "half_open"
)

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the consecutive-failure count that trips a
	// closed breaker open.
	FailureThreshold int

	// ResetTimeout is how long an open breaker rejects calls before
	// admitting a probe.
	ResetTimeout time.Duration

	// HalfOpenSuccessThreshold is the probe-success count that closes a
	// half-open breaker.
	HalfOpenSuccessThreshold int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:         5,
		ResetTimeout:             30 * time.Second,
		HalfOpenSuccessThreshold: 2,
	}
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenSuccessThreshold <= 0 {
		c.HalfOpenSuccessThreshold = 2
	}
}

// Breaker is a reusable circuit breaker. Safe for concurrent use; state
// transitions are serialized by an internal mutex.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu              sync.Mutex
	state           State
	failures        int
	successCount    int
	lastFailureTime time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	cfg.applyDefaults()
	return &Breaker{
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
}

// NewWithClock creates a breaker with an injected clock. Used by tests.
func NewWithClock(cfg Config, now func() time.Time) *Breaker {
	b := New(cfg)
	b.now = now
	return b
}

// CanExecute reports whether a call may proceed. An open breaker whose
// reset timeout has elapsed transitions to half-open and admits the call.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) > b.cfg.ResetTimeout {
			b.state = StateHalfOpen
			b.successCount = 0
			return true
		}
		return false
	}
	return false
}

// RecordSuccess reports a successful call. In half-open, enough successes
// close the breaker; in closed, the failure count resets.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.HalfOpenSuccessThreshold {
			b.toClosedLocked()
		}
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure reports a failed call. Any half-open failure reopens the
// breaker; a closed breaker opens once failures reach the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = b.now()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.successCount = 0
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	}
}

// Reset hard-resets to closed with zeroed counters. Operator escape hatch.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toClosedLocked()
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) toClosedLocked() {
	b.state = StateClosed
	b.failures = 0
	b.successCount = 0
	b.lastFailureTime = time.Time{}
}
