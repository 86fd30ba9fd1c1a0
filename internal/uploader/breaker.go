package uploader

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// breaker is a rolling-window circuit breaker. It trips open once the
// failure ratio reaches threshold over at least minSamples recorded calls,
// rejects everything for breakFor, then admits a single half-open probe
// whose outcome decides between closing and re-opening.
type breaker struct {
	mu sync.Mutex

	state      breakerState
	openedAt   time.Time
	breakFor   time.Duration
	minSamples int
	threshold  float64

	window []bool // true = failure
	maxLen int

	halfOpenInFlight bool
}

func newBreaker() *breaker {
	return &breaker{
		state:      stateClosed,
		breakFor:   30 * time.Second,
		minSamples: 10,
		threshold:  0.5,
		maxLen:     20,
	}
}

// allow reports whether a call may proceed. When the breaker is open and
// the break duration has elapsed, exactly one caller is let through as a
// half-open probe.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(b.openedAt) < b.breakFor {
			return false
		}
		if b.halfOpenInFlight {
			return false
		}
		b.state = stateHalfOpen
		b.halfOpenInFlight = true
		return true
	case stateHalfOpen:
		return false
	default:
		return true
	}
}

// record reports the outcome of a call previously allowed through.
func (b *breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.halfOpenInFlight = false
		if failed {
			b.trip()
		} else {
			b.reset()
		}
		return
	}

	b.window = append(b.window, failed)
	if len(b.window) > b.maxLen {
		b.window = b.window[len(b.window)-b.maxLen:]
	}

	if len(b.window) >= b.minSamples && b.failureRatio() >= b.threshold {
		b.trip()
	}
}

func (b *breaker) failureRatio() float64 {
	if len(b.window) == 0 {
		return 0
	}
	failures := 0
	for _, f := range b.window {
		if f {
			failures++
		}
	}
	return float64(failures) / float64(len(b.window))
}

func (b *breaker) trip() {
	b.state = stateOpen
	b.openedAt = time.Now()
	b.window = nil
}

func (b *breaker) reset() {
	b.state = stateClosed
	b.window = nil
}

// isOpen reports whether the breaker is currently rejecting calls (used
// only for observability/tests; allow() is the authoritative gate).
func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && time.Since(b.openedAt) < b.breakFor
}
