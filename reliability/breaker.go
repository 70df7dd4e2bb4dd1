// Package reliability wraps a tagpool.BackendDriver with a failure-counting
// circuit breaker, so a backend stuck failing doesn't get hammered with
// retries on every call while it recovers.
package reliability

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by a gated call while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is one of the three states a ThresholdBreaker can be in.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker gates calls, tracking consecutive failures.
type Breaker interface {
	// Allow reports whether a call may proceed right now.
	Allow() bool
	// Success records that the most recent gated call succeeded.
	Success()
	// Failure records that the most recent gated call failed.
	Failure()
}

// ThresholdBreaker opens once consecutive failures reach a threshold, and
// probes again after resetTimeout has elapsed since the last failure.
type ThresholdBreaker struct {
	mu sync.Mutex

	threshold    int
	resetTimeout time.Duration

	state    State
	failures int
	openedAt time.Time
}

// NewThresholdBreaker builds a breaker that opens after threshold
// consecutive failures and allows one probe call timeout after opening.
func NewThresholdBreaker(threshold int, timeout time.Duration) *ThresholdBreaker {
	return &ThresholdBreaker{
		threshold:    threshold,
		resetTimeout: timeout,
	}
}

// Allow reports whether the breaker currently permits a call. An open
// breaker whose reset timeout has elapsed flips to half-open and allows
// the call that asked; every call is allowed while half-open, until
// Success or Failure settles the state.
func (b *ThresholdBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return true
	}
	if time.Since(b.openedAt) <= b.resetTimeout {
		return false
	}
	b.state = StateHalfOpen
	return true
}

// Success clears the failure count and, from half-open, closes the breaker.
func (b *ThresholdBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
	}
}

// Failure records a failed call. From closed it counts toward the
// threshold; from half-open a single failure reopens the breaker
// immediately.
func (b *ThresholdBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trip()
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
		}
	}
}

// trip must be called with mu held.
func (b *ThresholdBreaker) trip() {
	b.state = StateOpen
	b.openedAt = time.Now()
}
