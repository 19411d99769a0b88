package provider

import (
	"sync"
	"time"
)

// CircuitBreakerOptions configures a CircuitBreaker. Zero values apply the
// defaults noted on each field.
type CircuitBreakerOptions struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	// Defaults to 5, mirroring the teacher's policy engine's
	// MaxConsecutiveFailedToolCalls idiom (agents/runtime/policy/policy.go)
	// applied to provider hops instead of tool calls.
	FailureThreshold int
	// CooldownPeriod is how long the circuit stays open before a single
	// trial call is allowed through (half-open). Defaults to 30s.
	CooldownPeriod time.Duration
}

// CircuitBreaker tracks consecutive failures for one provider and opens
// after FailureThreshold in a row, mirroring the teacher's
// RemainingConsecutiveFailedToolCalls countdown: decremented on failure,
// reset to the configured max on success.
type CircuitBreaker struct {
	mu               sync.Mutex
	threshold        int
	cooldown         time.Duration
	consecutiveFails int
	openedAt         time.Time
	isOpen           bool
}

// NewCircuitBreaker returns a closed CircuitBreaker with the given options.
func NewCircuitBreaker(opts CircuitBreakerOptions) *CircuitBreaker {
	threshold := opts.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := opts.CooldownPeriod
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call should be attempted. The circuit admits one
// trial call per cooldown window while open (half-open probing) rather than
// blocking every call outright.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isOpen {
		return true
	}
	if time.Since(b.openedAt) >= b.cooldown {
		b.openedAt = time.Now()
		return true
	}
	return false
}

// Record updates the breaker with the outcome of an attempted call. A
// success resets the failure count and closes the circuit; a failure
// increments the count and opens the circuit once threshold is reached.
func (b *CircuitBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.consecutiveFails = 0
		b.isOpen = false
		return
	}
	b.consecutiveFails++
	if b.consecutiveFails >= b.threshold {
		b.isOpen = true
		b.openedAt = time.Now()
	}
}

// Open reports the breaker's current open/closed state.
func (b *CircuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isOpen
}

// ConsecutiveFailures reports the current run of consecutive failures.
func (b *CircuitBreaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFails
}
