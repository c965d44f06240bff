package deliveryClient

import (
	"sync"
	"time"
)

/*
endpointTracker holds the per-endpoint circuit breaker state, keyed by
destination URL so that failures against one stream's receiver throttle
every stream pointing at the same endpoint.

The check-then-act window between preflight and recordFailure is a known,
bounded relaxation: a concurrent delivery may slip one extra probe past the
intended pause. That costs at most one network call and never corrupts the
counters, which are only touched under the mutex.
*/
type endpointTracker struct {
	mu        sync.Mutex
	threshold int
	pause     time.Duration
	states    map[string]*endpointState
}

type endpointState struct {
	consecutiveFailures int
	pausedUntil         time.Time
}

func newEndpointTracker(threshold int, pause time.Duration) *endpointTracker {
	return &endpointTracker{
		threshold: threshold,
		pause:     pause,
		states:    map[string]*endpointState{},
	}
}

// open reports whether the breaker currently blocks the endpoint. Once
// pausedUntil elapses the next call passes as a single probe; a repeat
// failure re-trips immediately with no second grace period.
func (t *endpointTracker) open(endpoint string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[endpoint]
	if !ok {
		return false
	}
	return state.consecutiveFailures >= t.threshold && now.Before(state.pausedUntil)
}

func (t *endpointTracker) recordFailure(endpoint string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[endpoint]
	if !ok {
		state = &endpointState{}
		t.states[endpoint] = state
	}
	state.consecutiveFailures++
	if state.consecutiveFailures >= t.threshold {
		state.pausedUntil = now.Add(t.pause)
	}
}

// reset closes the breaker after a successful delivery.
func (t *endpointTracker) reset(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[endpoint]
	if !ok {
		return
	}
	state.consecutiveFailures = 0
	state.pausedUntil = time.Time{}
}

func (t *endpointTracker) failures(endpoint string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[endpoint]
	if !ok {
		return 0
	}
	return state.consecutiveFailures
}
