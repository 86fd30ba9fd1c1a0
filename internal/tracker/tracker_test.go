package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateExecutionContext_PositionAdvancesPerWorker(t *testing.T) {
	tr := New()

	first := tr.CreateExecutionContext("w1", "", 1)
	second := tr.CreateExecutionContext("w1", "", 1)

	assert.Equal(t, 1, first.PositionInSuite)
	assert.Equal(t, 2, second.PositionInSuite)
	assert.Equal(t, int64(1), first.GlobalPosition)
	assert.Equal(t, int64(2), second.GlobalPosition)
}

func TestCreateExecutionContext_RetryReusesPosition(t *testing.T) {
	tr := New()

	t1 := tr.CreateExecutionContext("w1", "", 1)
	t2 := tr.CreateExecutionContext("w1", "", 1)
	t2Retry := tr.CreateExecutionContext("w1", "", 2)

	assert.Equal(t, 1, t1.PositionInSuite)
	assert.Equal(t, 2, t2.PositionInSuite)
	assert.Equal(t, 2, t2Retry.PositionInSuite)
}

func TestCreateExecutionContext_RetryDoesNotAdvanceGlobalPosition(t *testing.T) {
	tr := New()
	tr.CreateExecutionContext("w1", "", 1)
	before := tr.CreateExecutionContext("w1", "", 1).GlobalPosition
	retry := tr.CreateExecutionContext("w1", "", 2)
	assert.Equal(t, before, retry.GlobalPosition)
}

func TestCreateExecutionContext_WasParallelized(t *testing.T) {
	tr := New()

	solo := tr.CreateExecutionContext("w1", "", 1)
	assert.False(t, solo.WasParallelized)

	tr.CreateExecutionContext("w2", "", 1)
	parallel := tr.CreateExecutionContext("w1", "", 1)
	assert.True(t, parallel.WasParallelized)
}

func TestRecordTestCompletion_PopulatesPreviousTest(t *testing.T) {
	tr := New()
	tr.CreateExecutionContext("w1", "", 1)
	tr.RecordTestCompletion("w1", "fp-1", "TestFoo", Outcome("Passed"))

	next := tr.CreateExecutionContext("w1", "", 1)
	assert.Equal(t, "fp-1", next.PreviousTestID)
	assert.Equal(t, "TestFoo", next.PreviousTestName)
	assert.Equal(t, "Passed", next.PreviousTestOutcome)
}

func TestCreateExecutionContext_ConcurrentWorkersNoRace(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				tr.CreateExecutionContext("worker", "", 1)
			}
		}(w)
	}
	wg.Wait()

	final := tr.CreateExecutionContext("worker", "", 1)
	assert.Equal(t, 401, final.PositionInSuite)
}

func TestWorkerKey_DefaultsWhenMissing(t *testing.T) {
	assert.Equal(t, "default", workerKey(""))
	assert.Equal(t, "abc", workerKey("abc"))
}
