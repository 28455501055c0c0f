package circuitbreaker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/relaypool-hq/relaypool/pkg/logger"
)

func TestDisabledBreakerNeverOpens(t *testing.T) {
	cb := New(false, 1, time.Minute, time.Minute, &logger.EmptyLogger{})

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.IsEnabled())
}

func TestSingleFailureTripsWithThresholdOne(t *testing.T) {
	cb := New(true, 1, time.Minute, time.Minute, &logger.EmptyLogger{})

	assert.True(t, cb.RecordFailure(), "threshold 1 must trip on the first failure")
	assert.True(t, cb.IsOpen())
}

func TestThresholdCountsFailuresInWindow(t *testing.T) {
	cb := New(true, 3, time.Minute, time.Minute, &logger.EmptyLogger{})

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
}

func TestClosesAfterResetTimeout(t *testing.T) {
	cb := New(true, 1, time.Minute, 30*time.Millisecond, &logger.EmptyLogger{})

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())

	time.Sleep(60 * time.Millisecond)
	assert.False(t, cb.IsOpen(), "breaker must close once the cooldown elapses")
}

func TestResetCallbackFiresOnCooldownExpiry(t *testing.T) {
	cb := New(true, 1, time.Minute, 20*time.Millisecond, &logger.EmptyLogger{})

	var fired atomic.Int32
	cb.SetResetCallback(func() { fired.Add(1) })

	cb.RecordFailure()

	assert.Eventually(t, func() bool { return fired.Load() == 1 },
		500*time.Millisecond, 5*time.Millisecond,
		"reset callback must fire exactly once after cooldown")

	// A manual reset cancels the pending timer, no extra callback
	cb.RecordFailure()
	cb.Reset()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestManualReset(t *testing.T) {
	cb := New(true, 1, time.Minute, time.Hour, &logger.EmptyLogger{})

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())

	cb.Reset()
	assert.False(t, cb.IsOpen())

	count, _, _, _ := cb.GetState()
	assert.Zero(t, count)
}
