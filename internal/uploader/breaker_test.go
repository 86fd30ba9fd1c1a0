package uploader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_ClosedAllowsUntilThreshold(t *testing.T) {
	b := newBreaker()
	for i := 0; i < 9; i++ {
		assert.True(t, b.allow())
		b.record(true)
	}
	assert.False(t, b.isOpen())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := newBreaker()
	for i := 0; i < 10; i++ {
		b.allow()
		b.record(true)
	}
	assert.True(t, b.isOpen())
	assert.False(t, b.allow())
}

func TestBreaker_MixedFailuresBelowThresholdStaysClosed(t *testing.T) {
	b := newBreaker()
	for i := 0; i < 20; i++ {
		b.allow()
		b.record(i%3 == 0) // ~33% failure rate, below 0.5 threshold
	}
	assert.False(t, b.isOpen())
}

func TestBreaker_HalfOpenProbeAfterBreakDuration(t *testing.T) {
	b := newBreaker()
	b.breakFor = 10 * time.Millisecond
	for i := 0; i < 10; i++ {
		b.allow()
		b.record(true)
	}
	assert.True(t, b.isOpen())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.allow(), "probe should be allowed after break duration")
	assert.False(t, b.allow(), "second caller should not see another probe")
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	b := newBreaker()
	b.breakFor = 10 * time.Millisecond
	for i := 0; i < 10; i++ {
		b.allow()
		b.record(true)
	}
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.allow())
	b.record(false)
	assert.False(t, b.isOpen())
	assert.True(t, b.allow())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b := newBreaker()
	b.breakFor = 10 * time.Millisecond
	for i := 0; i < 10; i++ {
		b.allow()
		b.record(true)
	}
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.allow())
	b.record(true)
	assert.True(t, b.isOpen())
}
