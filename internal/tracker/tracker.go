// Package tracker implements the Execution Tracker (C3): per-worker
// ordinal positions, previous-test linkage, parallelism fan-out, and
// suite-relative elapsed time. All operations are safe for concurrent use
// by many workers.
package tracker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome mirrors wire.Outcome without importing the wire package, to keep
// this package dependency-free; callers pass the string form.
type Outcome string

// CompletedTest is the last-completed-test snapshot recorded for a worker.
type CompletedTest struct {
	Fingerprint string
	Name        string
	Outcome     Outcome
}

// OrchestrationRecord is the per-execution ordering and parallelism
// metadata attached to every uploaded execution. SuiteElapsedTime is
// milliseconds since the tracker was constructed.
type OrchestrationRecord struct {
	PositionInSuite     int    `json:"positionInSuite"`
	GlobalPosition      int64  `json:"globalPosition"`
	PreviousTestID      string `json:"previousTestId,omitempty"`
	PreviousTestName    string `json:"previousTestName,omitempty"`
	PreviousTestOutcome string `json:"previousTestOutcome,omitempty"`
	WasParallelized     bool   `json:"wasParallelized"`
	ConcurrentTestCount int    `json:"concurrentTestCount"`
	ThreadID            string `json:"threadId,omitempty"`
	WorkerID            string `json:"workerId,omitempty"`
	SuiteElapsedTime    int64  `json:"suiteElapsedTime"`
	CollectionName      string `json:"collectionName,omitempty"`
}

type workerState struct {
	position      int
	lastCompleted CompletedTest
	hasCompleted  bool
}

// Tracker holds the process-wide ordering state: per-worker positions,
// last-completed-test linkage, the global ordinal, and the suite clock.
type Tracker struct {
	mu          sync.Mutex
	workers     map[string]*workerState
	activeCount int64
	globalPos   int64
	suiteStart  time.Time
}

// New builds a Tracker whose suite-elapsed clock starts now.
func New() *Tracker {
	return &Tracker{
		workers:    make(map[string]*workerState),
		suiteStart: time.Now(),
	}
}

// workerKey returns workerID if set, else a shared fallback key. Go
// exposes no stable OS-thread identity to userspace, so an adapter that
// omits workerID gets a single logical worker.
func workerKey(workerID string) string {
	if workerID == "" {
		return "default"
	}
	return workerID
}

// CreateExecutionContext assigns orchestration fields for a new execution.
// When attemptNumber > 1 the worker's current position is reused rather
// than advanced, so retried attempts share positionInSuite with their
// first attempt.
func (t *Tracker) CreateExecutionContext(workerID, collectionName string, attemptNumber int) OrchestrationRecord {
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	key := workerKey(workerID)

	t.mu.Lock()
	ws, ok := t.workers[key]
	if !ok {
		ws = &workerState{}
		t.workers[key] = ws
		atomic.AddInt64(&t.activeCount, 1)
	}

	if attemptNumber == 1 {
		ws.position++
		atomic.AddInt64(&t.globalPos, 1)
	}
	position := ws.position
	global := atomic.LoadInt64(&t.globalPos)

	active := atomic.LoadInt64(&t.activeCount)
	rec := OrchestrationRecord{
		PositionInSuite:     position,
		GlobalPosition:      global,
		WasParallelized:     active > 1,
		ConcurrentTestCount: int(active),
		ThreadID:            key,
		WorkerID:            workerID,
		SuiteElapsedTime:    time.Since(t.suiteStart).Milliseconds(),
		CollectionName:      collectionName,
	}
	if ws.hasCompleted {
		rec.PreviousTestID = ws.lastCompleted.Fingerprint
		rec.PreviousTestName = ws.lastCompleted.Name
		rec.PreviousTestOutcome = string(ws.lastCompleted.Outcome)
	}
	t.mu.Unlock()

	return rec
}

// RecordTestCompletion stores the last-completed test for a worker, used
// to populate previousTest* fields on that worker's next execution.
func (t *Tracker) RecordTestCompletion(workerID, fingerprint, name string, outcome Outcome) {
	key := workerKey(workerID)
	t.mu.Lock()
	ws, ok := t.workers[key]
	if !ok {
		ws = &workerState{}
		t.workers[key] = ws
	}
	ws.lastCompleted = CompletedTest{Fingerprint: fingerprint, Name: name, Outcome: outcome}
	ws.hasCompleted = true
	t.mu.Unlock()
}

// ReleaseWorker decrements the active-worker count when a host adapter
// knows a worker has gone idle. Calling it is optional; without it,
// WasParallelized reflects the high-water mark of concurrently-seen
// workers rather than the instantaneously-active set.
func (t *Tracker) ReleaseWorker(workerID string) {
	_ = workerID
	if n := atomic.AddInt64(&t.activeCount, -1); n < 0 {
		atomic.StoreInt64(&t.activeCount, 0)
	}
}

// String implements fmt.Stringer for debug logging.
func (r OrchestrationRecord) String() string {
	return fmt.Sprintf("pos=%d global=%d worker=%s parallel=%v", r.PositionInSuite, r.GlobalPosition, r.WorkerID, r.WasParallelized)
}
