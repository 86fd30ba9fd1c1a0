// Package wire defines the JSON wire format: the session and execution
// envelopes posted to the API, and the batch payload optimization that
// omits the session header from every execution after the first. Encoding
// is compact camelCase. Fields tagged omitempty (optional strings,
// pointers, maps and slices) are left out when empty; the other fields,
// including boolean flags, numeric counters and the metadata object, are
// always written, zero values included.
package wire

import (
	"encoding/json"
	"time"

	"github.com/xping/xping-go-sdk/internal/environment"
	"github.com/xping/xping-go-sdk/internal/identity"
	"github.com/xping/xping-go-sdk/internal/retry"
	"github.com/xping/xping-go-sdk/internal/tracker"
)

// Outcome enumerates the recognized test outcomes.
type Outcome string

const (
	OutcomePassed       Outcome = "Passed"
	OutcomeFailed       Outcome = "Failed"
	OutcomeSkipped      Outcome = "Skipped"
	OutcomeInconclusive Outcome = "Inconclusive"
	OutcomeNotExecuted  Outcome = "NotExecuted"
)

// Metadata carries the host-supplied categories, tags, and custom
// attributes of a test.
type Metadata struct {
	Categories       []string          `json:"categories,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	CustomAttributes map[string]string `json:"customAttributes,omitempty"`
	Description      string            `json:"description,omitempty"`
}

// Session is one SDK process lifetime of test activity, carrying one
// environment fingerprint.
type Session struct {
	SessionID          string           `json:"sessionId"`
	StartedAt          time.Time        `json:"startedAt"`
	CompletedAt        *time.Time       `json:"completedAt,omitempty"`
	Environment        environment.Info `json:"environment"`
	TotalTestsExpected *int             `json:"totalTestsExpected,omitempty"`
}

// Execution is one completed test invocation. Session is populated on the
// first execution of a batch only (see OptimizeBatchForTransport) and is
// nil on the rest.
type Execution struct {
	ExecutionID      string                      `json:"executionId"`
	Identity         identity.TestIdentity       `json:"identity"`
	TestName         string                      `json:"testName"`
	Outcome          Outcome                     `json:"outcome"`
	DurationMs       int64                       `json:"duration"`
	StartTimeUTC     time.Time                   `json:"startTimeUtc"`
	EndTimeUTC       time.Time                   `json:"endTimeUtc"`
	Metadata         Metadata                    `json:"metadata,omitempty"`
	Orchestration    tracker.OrchestrationRecord `json:"orchestration"`
	Retry            *retry.Metadata             `json:"retry,omitempty"`
	ExceptionType    string                      `json:"exceptionType,omitempty"`
	ErrorMessage     string                      `json:"errorMessage,omitempty"`
	StackTrace       string                      `json:"stackTrace,omitempty"`
	ErrorMessageHash string                      `json:"errorMessageHash,omitempty"`
	StackTraceHash   string                      `json:"stackTraceHash,omitempty"`

	// Session carries the session context for transport-level
	// deduplication. The collector sets it on the first execution of each
	// batch at flush time; OptimizeBatchForTransport strips it from every
	// execution but the first before encoding; Rehydrate restores it on
	// decode.
	Session *Session `json:"session,omitempty"`
}

// Batch is the per-flush group of executions posted to {apiEndpoint}/executions.
type Batch struct {
	SessionID  string      `json:"sessionId"`
	Executions []Execution `json:"executions"`
}

// OptimizeBatchForTransport returns a shallow copy of executions where
// only index 0 carries a non-nil Session. The input slice is not mutated.
func OptimizeBatchForTransport(executions []Execution) []Execution {
	out := make([]Execution, len(executions))
	copy(out, executions)
	for i := range out {
		if i == 0 {
			continue
		}
		out[i].Session = nil
	}
	return out
}

// Rehydrate copies the first execution's Session onto every execution with
// a nil Session, inverting OptimizeBatchForTransport's stripping.
func Rehydrate(executions []Execution) []Execution {
	if len(executions) == 0 {
		return executions
	}
	shared := executions[0].Session
	out := make([]Execution, len(executions))
	copy(out, executions)
	for i := range out {
		if out[i].Session == nil {
			out[i].Session = shared
		}
	}
	return out
}

// EncodeBatch builds the wire-format batch body for executions belonging
// to sessionID, applying the payload optimization.
func EncodeBatch(sessionID string, executions []Execution) ([]byte, error) {
	batch := Batch{
		SessionID:  sessionID,
		Executions: OptimizeBatchForTransport(executions),
	}
	return json.Marshal(batch)
}

// EncodeSession builds the wire-format session envelope body.
func EncodeSession(s Session) ([]byte, error) {
	return json.Marshal(s)
}

// DurationToMillis converts a duration to the wire's integer-millisecond
// representation.
func DurationToMillis(d time.Duration) int64 {
	return d.Milliseconds()
}
