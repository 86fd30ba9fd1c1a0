package xpingsdk

import (
	"time"

	"github.com/google/uuid"

	"github.com/xping/xping-go-sdk/internal/identity"
	"github.com/xping/xping-go-sdk/internal/retry"
	"github.com/xping/xping-go-sdk/internal/tracker"
	"github.com/xping/xping-go-sdk/internal/wire"
	"github.com/xping/xping-go-sdk/internal/xplog"
)

// Re-exported so framework adapters, which live outside this module and
// cannot reach its internal packages, can build a TestRecord without a
// second copy of these types.
type (
	Param           = identity.Param
	Outcome         = wire.Outcome
	Metadata        = wire.Metadata
	RetryDescriptor = retry.Descriptor
)

const (
	OutcomePassed       = wire.OutcomePassed
	OutcomeFailed       = wire.OutcomeFailed
	OutcomeSkipped      = wire.OutcomeSkipped
	OutcomeInconclusive = wire.OutcomeInconclusive
	OutcomeNotExecuted  = wire.OutcomeNotExecuted
)

// RegisterRetryAttribute records that attributeName on the named
// framework is a recognized retry annotation. Framework adapters call
// this once, typically from an init function.
func RegisterRetryAttribute(framework, attributeName string) {
	retry.RegisterAttribute(framework, attributeName)
}

// TestRecord is what a host adapter supplies to RecordTest: everything the
// adapter already knows about one completed test execution. The core
// enriches it with identity, orchestration, and (optionally) retry
// metadata before handing it to the Collector.
type TestRecord struct {
	FullyQualifiedName string
	Assembly           string
	Namespace          string
	ClassName          string
	MethodName         string
	DisplayName        string
	Parameters         []Param
	SourceFile         string
	SourceLine         int

	Outcome      Outcome
	StartTimeUTC time.Time
	EndTimeUTC   time.Time
	Duration     time.Duration

	Metadata Metadata

	ExceptionType string
	ErrorMessage  string
	StackTrace    string

	WorkerID       string
	CollectionName string

	// Retry is optional: nil when the adapter's framework carries no
	// retry concept, or when this attempt is not annotated as a retry.
	Retry RetryDescriptor
}

// RecordTest enriches rec with identity, orchestration, and retry metadata
// and enqueues it on the Collector. It never returns an error and never
// panics into the host: any internal failure is swallowed and logged at
// debug level. Such failures are not counted in any statistic.
func RecordTest(rec TestRecord) {
	o := instance.Load()
	if o == nil {
		xplog.Default().Debugw("xping: RecordTest called before Initialize, dropping")
		return
	}
	o.recordTest(rec)
}

func (o *orchestrator) recordTest(rec TestRecord) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Debugw("xping: panic in RecordTest, swallowed", "panic", r)
		}
	}()

	o.activate()

	var retryMeta *retry.Metadata
	attempt := 1
	if rec.Retry != nil {
		retryMeta = retry.DetectRetryMetadata(rec.Retry, retry.Outcome(rec.Outcome))
		if retryMeta != nil {
			attempt = retryMeta.AttemptNumber
		}
	}

	id := identity.Generate(rec.FullyQualifiedName, rec.Assembly, rec.Parameters, rec.DisplayName, identity.Options{
		Namespace:  rec.Namespace,
		ClassName:  rec.ClassName,
		MethodName: rec.MethodName,
		SourceFile: rec.SourceFile,
		SourceLine: rec.SourceLine,
	})

	orchRecord := o.tracker.CreateExecutionContext(rec.WorkerID, rec.CollectionName, attempt)

	stackTrace := rec.StackTrace
	if !o.cfg.CaptureStackTraces {
		stackTrace = ""
	}

	exec := wire.Execution{
		ExecutionID:      uuid.NewString(),
		Identity:         id,
		TestName:         displayName(rec, id),
		Outcome:          rec.Outcome,
		DurationMs:       wire.DurationToMillis(rec.Duration),
		StartTimeUTC:     rec.StartTimeUTC,
		EndTimeUTC:       rec.EndTimeUTC,
		Metadata:         rec.Metadata,
		Orchestration:    orchRecord,
		Retry:            retryMeta,
		ExceptionType:    rec.ExceptionType,
		ErrorMessage:     rec.ErrorMessage,
		StackTrace:       stackTrace,
		ErrorMessageHash: identity.GenerateErrorMessageHash(rec.ErrorMessage),
		StackTraceHash:   identity.GenerateStackTraceHash(rec.StackTrace),
	}

	o.tracker.RecordTestCompletion(rec.WorkerID, id.Fingerprint, exec.TestName, tracker.Outcome(rec.Outcome))
	o.col.RecordTest(exec)
}

func displayName(rec TestRecord, id identity.TestIdentity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	return rec.FullyQualifiedName
}
