package breaker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestRegistry(threshold int, reset time.Duration) *Registry {
	return NewRegistry(zerolog.Nop(), Config{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	r := newTestRegistry(3, time.Minute)

	for i := 0; i < 2; i++ {
		state := r.ReportOutcome("medical", false)
		assert.Equal(t, StateClosed, state.State)
	}
	assert.False(t, r.IsOpen("medical"))

	state := r.ReportOutcome("medical", false)
	assert.Equal(t, StateOpen, state.State)
	assert.Equal(t, 3, state.ConsecutiveFailures)
	assert.True(t, r.IsOpen("medical"))
}

func TestBreakerSuccessWhileClosedDoesNotResetCounter(t *testing.T) {
	r := newTestRegistry(3, time.Minute)

	r.ReportOutcome("system", false)
	r.ReportOutcome("system", false)
	state := r.ReportOutcome("system", true)
	assert.Equal(t, StateClosed, state.State)
	assert.Equal(t, 2, state.ConsecutiveFailures)

	// One more failure still crosses the threshold
	state = r.ReportOutcome("system", false)
	assert.Equal(t, StateOpen, state.State)
}

func TestBreakerHalfOpenProbeGrantedOnce(t *testing.T) {
	r := newTestRegistry(1, 20*time.Millisecond)

	r.ReportOutcome("performance", false)
	assert.True(t, r.IsOpen("performance"))

	time.Sleep(30 * time.Millisecond)

	// First caller after the reset timeout gets the probe
	assert.False(t, r.IsOpen("performance"))
	// Everyone else waits for the probe's outcome
	assert.True(t, r.IsOpen("performance"))
	assert.True(t, r.IsOpen("performance"))
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	r := newTestRegistry(1, 10*time.Millisecond)

	r.ReportOutcome("compliance", false)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, r.IsOpen("compliance"))

	state := r.ReportOutcome("compliance", true)
	assert.Equal(t, StateClosed, state.State)
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.False(t, r.IsOpen("compliance"))
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	r := newTestRegistry(1, 10*time.Millisecond)

	r.ReportOutcome("compliance", false)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, r.IsOpen("compliance"))

	state := r.ReportOutcome("compliance", false)
	assert.Equal(t, StateOpen, state.State)
	assert.True(t, r.IsOpen("compliance"))
}

func TestBreakerCategoriesAreIndependent(t *testing.T) {
	r := newTestRegistry(1, time.Minute)

	r.ReportOutcome("medical", false)
	assert.True(t, r.IsOpen("medical"))
	assert.False(t, r.IsOpen("system"))
	assert.False(t, r.IsOpen("performance"))
}

func TestBreakerSnapshot(t *testing.T) {
	r := newTestRegistry(2, time.Minute)

	r.ReportOutcome("medical", false)
	r.ReportOutcome("system", false)
	r.ReportOutcome("system", false)

	snap := r.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, StateClosed, snap["medical"].State)
	assert.Equal(t, StateOpen, snap["system"].State)
}
