package xpingsdk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xping/xping-go-sdk/internal/collector"
	"github.com/xping/xping-go-sdk/internal/environment"
	"github.com/xping/xping-go-sdk/internal/tracker"
	"github.com/xping/xping-go-sdk/internal/uploader"
	"github.com/xping/xping-go-sdk/internal/wire"
	"github.com/xping/xping-go-sdk/internal/xerrors"
	"github.com/xping/xping-go-sdk/internal/xplog"
)

// State enumerates the orchestrator's lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateActive
	StateFinalizing
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitialized:
		return "Initialized"
	case StateActive:
		return "Active"
	case StateFinalizing:
		return "Finalizing"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// FinalizeResult summarizes one FinalizeAsync call, handed to
// OnSessionFinalized observers and written to the end-of-session summary
// log line.
type FinalizeResult struct {
	Recorded       int64
	Sampled        int64
	Uploaded       int64
	FailedToUpload int64
}

// Services exposes the components a host adapter needs direct access to —
// the Tracker (to thread orchestration state through framework-specific
// parallel-worker hooks) and the Detector (to read the resolved
// environment without re-detecting it). Everything else is reached
// through RecordTest.
type Services struct {
	Tracker  *tracker.Tracker
	Detector *environment.Detector
}

type orchestrator struct {
	cfg      Configuration
	log      *xplog.Logger
	tracker  *tracker.Tracker
	detector *environment.Detector
	up       *uploader.Uploader
	col      *collector.Collector

	state atomic.Int32

	sessionOnce sync.Once
	session     *wire.Session

	hookMu            sync.Mutex
	onFinalizingHooks []func()
	onFinalizedHooks  []func(FinalizeResult)
}

// instance is the atomic cell holding the process-wide orchestrator, or
// nil when Uninitialized/Shutdown. initMu serializes Initialize/Shutdown
// transitions (FinalizeAsync takes it to load and to clear the cell);
// reads (RecordTest, GetServices) go through instance.Load() without
// taking the lock.
var (
	instance atomic.Pointer[orchestrator]
	initMu   sync.Mutex
)

// Initialize validates cfg, constructs the SDK's components, and binds the
// process-wide singleton. Idempotent: a second call while already
// initialized is a no-op that returns nil.
func Initialize(cfg Configuration) error {
	initMu.Lock()
	defer initMu.Unlock()

	if instance.Load() != nil {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := xplog.Default()
	o := &orchestrator{
		cfg:     cfg,
		log:     log,
		tracker: tracker.New(),
	}
	o.detector = environment.New(environment.DetectorConfig{
		Environment:             cfg.Environment,
		AutoDetectCIEnvironment: cfg.AutoDetectCIEnvironment,
		CollectNetworkMetrics:   cfg.CollectNetworkMetrics,
		APIEndpoint:             cfg.APIEndpoint,
	}, log)
	o.up = uploader.New(uploader.Config{
		APIEndpoint:          cfg.APIEndpoint,
		APIKey:               cfg.APIKey,
		ProjectID:            cfg.ProjectID,
		MaxRetries:           cfg.MaxRetries,
		RetryDelay:           cfg.RetryDelay,
		UploadTimeout:        cfg.UploadTimeout,
		EnableCompression:    cfg.EnableCompression,
		MaxRequestsPerSecond: cfg.MaxRequestsPerSecond,
	}, log)
	o.col = collector.New(collector.Config{
		Enabled:            cfg.Enabled,
		BatchSize:          cfg.BatchSize,
		FlushInterval:      cfg.FlushInterval,
		SamplingRate:       cfg.SamplingRate,
		EnableOfflineQueue: cfg.EnableOfflineQueue,
	}, o.up, log)

	o.state.Store(int32(StateInitialized))
	instance.Store(o)
	return nil
}

// CurrentState reports the orchestrator's lifecycle state. Uninitialized
// before the first Initialize and after Shutdown completes.
func CurrentState() State {
	o := instance.Load()
	if o == nil {
		return StateUninitialized
	}
	return State(o.state.Load())
}

// GetServices returns the wired Tracker and Detector, activating the
// session (Initialized → Active) if neither GetServices nor RecordTest has
// run yet.
func GetServices() (Services, error) {
	o := instance.Load()
	if o == nil {
		return Services{}, xerrors.Wrap(xerrors.Internal, "xping: GetServices called before Initialize")
	}
	o.activate()
	return Services{Tracker: o.tracker, Detector: o.detector}, nil
}

func (o *orchestrator) activate() {
	o.sessionOnce.Do(func() {
		info := o.detector.Detect()
		o.session = &wire.Session{
			SessionID:   uuid.NewString(),
			StartedAt:   time.Now().UTC(),
			Environment: info,
		}
		o.col.SetSession(o.session)
		o.state.Store(int32(StateActive))
	})
}

// OnSessionFinalizing registers an observer invoked at the start of
// FinalizeAsync, before the drain-and-upload cycle begins. A no-op if the
// orchestrator has not been initialized.
func OnSessionFinalizing(fn func()) {
	o := instance.Load()
	if o == nil {
		return
	}
	o.hookMu.Lock()
	o.onFinalizingHooks = append(o.onFinalizingHooks, fn)
	o.hookMu.Unlock()
}

// OnSessionFinalized registers an observer invoked after FinalizeAsync
// completes its drain-and-upload cycle, with the resulting FinalizeResult.
func OnSessionFinalized(fn func(FinalizeResult)) {
	o := instance.Load()
	if o == nil {
		return
	}
	o.hookMu.Lock()
	o.onFinalizedHooks = append(o.onFinalizedHooks, fn)
	o.hookMu.Unlock()
}

// FinalizeAsync transitions Active/Initialized → Finalizing → Shutdown: it
// waits for any in-flight flush, then performs one drain-and-upload cycle
// bounded by uploadTimeout × (maxRetries+1), and resets the singleton so a
// subsequent Initialize starts fresh.
func FinalizeAsync(ctx context.Context) (FinalizeResult, error) {
	initMu.Lock()
	o := instance.Load()
	if o == nil {
		initMu.Unlock()
		return FinalizeResult{}, xerrors.Wrap(xerrors.Internal, "xping: FinalizeAsync called before Initialize")
	}
	initMu.Unlock()

	o.state.CompareAndSwap(int32(StateActive), int32(StateFinalizing))
	o.state.CompareAndSwap(int32(StateInitialized), int32(StateFinalizing))

	o.runFinalizingHooks()

	deadline := o.cfg.UploadTimeout * time.Duration(o.cfg.MaxRetries+1)
	finalizeCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	stats := o.col.Close(finalizeCtx)
	result := FinalizeResult{
		Recorded:       stats.Recorded,
		Sampled:        stats.Sampled,
		Uploaded:       stats.Uploaded,
		FailedToUpload: stats.FailedToUpload,
	}

	o.log.Infow("xping: session finalized",
		"recorded", result.Recorded,
		"sampled", result.Sampled,
		"uploaded", result.Uploaded,
		"failedToUpload", result.FailedToUpload,
	)

	o.runFinalizedHooks(result)

	o.state.Store(int32(StateShutdown))

	initMu.Lock()
	instance.CompareAndSwap(o, nil)
	initMu.Unlock()

	return result, nil
}

func (o *orchestrator) runFinalizingHooks() {
	o.hookMu.Lock()
	hooks := append([]func(){}, o.onFinalizingHooks...)
	o.hookMu.Unlock()

	for _, h := range hooks {
		runGuarded(o.log, func() { h() })
	}
}

func (o *orchestrator) runFinalizedHooks(result FinalizeResult) {
	o.hookMu.Lock()
	hooks := append([]func(FinalizeResult){}, o.onFinalizedHooks...)
	o.hookMu.Unlock()

	for _, h := range hooks {
		runGuarded(o.log, func() { h(result) })
	}
}

// runGuarded isolates a host-supplied hook from the orchestrator: a
// panicking observer must not take down the finalize path.
func runGuarded(log *xplog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Debugw("xping: panic in session hook, swallowed", "panic", r)
		}
	}()
	fn()
}
