package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerOptions{FailureThreshold: 3, CooldownPeriod: time.Hour})

	for i := 0; i < 2; i++ {
		b.Record(errors.New("fail"))
		assert.True(t, b.Allow())
	}
	b.Record(errors.New("fail"))
	assert.False(t, b.Allow())
	assert.True(t, b.Open())
	assert.Equal(t, 3, b.ConsecutiveFailures())
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerOptions{FailureThreshold: 2})
	b.Record(errors.New("fail"))
	b.Record(nil)
	assert.Equal(t, 0, b.ConsecutiveFailures())
	assert.True(t, b.Allow())
}

func TestCircuitBreakerHalfOpensAfterCooldown(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerOptions{FailureThreshold: 1, CooldownPeriod: 10 * time.Millisecond})
	b.Record(errors.New("fail"))
	assert.False(t, b.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow())
}
