package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xping/xping-go-sdk/internal/environment"
)

func sampleSession() *Session {
	return &Session{
		SessionID: "sess-1",
		StartedAt: time.Now().UTC(),
		Environment: environment.Info{
			MachineName: "host-1",
		},
	}
}

func TestOptimizeBatchForTransport_OnlyFirstCarriesSession(t *testing.T) {
	sess := sampleSession()
	executions := []Execution{
		{ExecutionID: "a", Session: sess},
		{ExecutionID: "b", Session: sess},
		{ExecutionID: "c", Session: sess},
	}

	optimized := OptimizeBatchForTransport(executions)

	assert.NotNil(t, optimized[0].Session)
	assert.Nil(t, optimized[1].Session)
	assert.Nil(t, optimized[2].Session)
	// Original slice must not be mutated.
	assert.NotNil(t, executions[1].Session)
}

func TestEncodeBatch_OmitsSessionOnSubsequentExecutions(t *testing.T) {
	sess := sampleSession()
	executions := []Execution{
		{ExecutionID: "a", Session: sess},
		{ExecutionID: "b", Session: sess},
	}

	data, err := EncodeBatch("sess-1", executions)
	assert.NoError(t, err)

	var decoded map[string]any
	assert.NoError(t, json.Unmarshal(data, &decoded))

	execs := decoded["executions"].([]any)
	first := execs[0].(map[string]any)
	second := execs[1].(map[string]any)

	assert.Contains(t, first, "session")
	assert.NotContains(t, second, "session")
}

func TestRehydrate_RestoresSessionOnAll(t *testing.T) {
	sess := sampleSession()
	executions := []Execution{
		{ExecutionID: "a", Session: sess},
		{ExecutionID: "b"},
		{ExecutionID: "c"},
	}

	rehydrated := Rehydrate(executions)

	for _, e := range rehydrated {
		assert.Same(t, sess, e.Session)
	}
}

func TestOptimizeThenRehydrate_IsIdentityOnSessionReference(t *testing.T) {
	sess := sampleSession()
	executions := []Execution{
		{ExecutionID: "a", Session: sess},
		{ExecutionID: "b", Session: sess},
		{ExecutionID: "c", Session: sess},
	}

	optimized := OptimizeBatchForTransport(executions)
	rehydrated := Rehydrate(optimized)

	for _, e := range rehydrated {
		assert.Equal(t, sess.SessionID, e.Session.SessionID)
	}
}

func TestDurationToMillis(t *testing.T) {
	assert.Equal(t, int64(1500), DurationToMillis(1500*time.Millisecond))
}
