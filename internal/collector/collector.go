// Package collector buffers test executions in a thread-safe FIFO and
// drains them to the uploader in batches. A flush is triggered when the
// buffer reaches the batch size or when the periodic timer fires; at most
// one flush runs at a time, and concurrent flush requests are no-ops.
package collector

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/xping/xping-go-sdk/internal/uploader"
	"github.com/xping/xping-go-sdk/internal/wire"
	"github.com/xping/xping-go-sdk/internal/xplog"
)

// Config carries the subset of SDK Configuration the collector needs.
type Config struct {
	Enabled            bool
	BatchSize          int
	FlushInterval      time.Duration
	SamplingRate       float64
	EnableOfflineQueue bool
}

// Stats is a snapshot of the collector's counters.
type Stats struct {
	Recorded       int64
	Sampled        int64
	Uploaded       int64
	FailedToUpload int64
	Flushes        int64
	BufferSize     int
}

// Collector owns the execution buffer exclusively from enqueue until the
// items are drained into a batch handed to the uploader.
type Collector struct {
	cfg Config
	log *xplog.Logger
	up  *uploader.Uploader

	mu     sync.Mutex
	buffer []wire.Execution

	sessionMu  sync.Mutex
	session    *wire.Session
	sessionSet bool

	flushSem *semaphore.Weighted
	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool

	rngMu sync.Mutex
	rng   *rand.Rand

	recorded       int64
	sampled        int64
	uploaded       int64
	failedToUpload int64
	flushes        int64

	bufferFull chan struct{}
}

// New builds a Collector bound to up and starts its periodic flush timer.
func New(cfg Config, up *uploader.Uploader, log *xplog.Logger) *Collector {
	if log == nil {
		log = xplog.Nop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}

	c := &Collector{
		cfg:        cfg,
		log:        log,
		up:         up,
		flushSem:   semaphore.NewWeighted(1),
		ticker:     time.NewTicker(cfg.FlushInterval),
		stopCh:     make(chan struct{}),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		bufferFull: make(chan struct{}, 1),
	}

	c.wg.Add(1)
	go c.timerLoop()

	return c
}

// BufferFull signals (non-blocking, capacity 1) whenever the buffer reaches
// batchSize, for host adapters that want to observe backpressure. It is
// purely observational, never a synchronization point.
func (c *Collector) BufferFull() <-chan struct{} {
	return c.bufferFull
}

// SetSession binds the session this collector's flushes will upload
// against. Idempotent after the first call within the current lifecycle.
func (c *Collector) SetSession(s *wire.Session) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.sessionSet {
		return
	}
	c.session = s
	c.sessionSet = true
}

func (c *Collector) currentSession() *wire.Session {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.session
}

// RecordTest enqueues e, subject to the sampling gate, and schedules a
// non-blocking flush once the buffer reaches batchSize. Never blocks on
// I/O; its only synchronization is the buffer mutex and the PRNG mutex.
func (c *Collector) RecordTest(e wire.Execution) {
	if c.closed.Load() || !c.cfg.Enabled {
		return
	}

	atomic.AddInt64(&c.recorded, 1)
	if !c.shouldSample() {
		return
	}
	atomic.AddInt64(&c.sampled, 1)

	c.mu.Lock()
	c.buffer = append(c.buffer, e)
	full := len(c.buffer) >= c.cfg.BatchSize
	c.mu.Unlock()

	if full {
		select {
		case c.bufferFull <- struct{}{}:
		default:
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			_ = c.FlushAsync(ctx)
		}()
	}
}

func (c *Collector) shouldSample() bool {
	rate := c.cfg.SamplingRate
	if rate >= 1.0 {
		return true
	}
	if rate <= 0.0 {
		return false
	}
	c.rngMu.Lock()
	keep := c.rng.Float64() < rate
	c.rngMu.Unlock()
	return keep
}

// FlushAsync drains up to batchSize executions and uploads them. If a
// flush is already in progress it returns immediately without error. The
// session's CompletedAt is set on the first flush that observes a
// non-empty buffer.
func (c *Collector) FlushAsync(ctx context.Context) error {
	if !c.flushSem.TryAcquire(1) {
		return nil
	}
	defer c.flushSem.Release(1)

	c.mu.Lock()
	n := len(c.buffer)
	if n > c.cfg.BatchSize {
		n = c.cfg.BatchSize
	}
	batch := make([]wire.Execution, n)
	copy(batch, c.buffer[:n])
	c.buffer = c.buffer[n:]
	c.mu.Unlock()

	if n == 0 {
		return nil
	}

	atomic.AddInt64(&c.flushes, 1)
	session := c.currentSession()
	if session != nil && session.CompletedAt == nil {
		now := time.Now().UTC()
		session.CompletedAt = &now
	}

	if session != nil && c.up != nil {
		if _, err := c.up.UploadSession(ctx, *session); err != nil {
			c.log.Debugw("session upload failed", "session_id", session.SessionID, "error", err)
		}
	}

	sessionID := ""
	if session != nil {
		sessionID = session.SessionID
		// The wire format carries the session envelope on the first
		// execution of a batch only; OptimizeBatchForTransport strips it
		// from the rest. Attach it here, once, rather than on every
		// RecordTest call.
		if len(batch) > 0 {
			batch[0].Session = session
		}
	}

	if c.up == nil {
		return nil
	}

	result, err := c.up.UploadBatch(ctx, sessionID, batch)
	if err != nil || !result.Success {
		atomic.AddInt64(&c.failedToUpload, int64(n))
		c.log.Debugw("batch upload failed", "count", n, "error", err)
		// Re-enqueue only while the collector is still live: during Close
		// the drain loop already accounts for what it could not deliver.
		if c.cfg.EnableOfflineQueue && !c.closed.Load() {
			c.mu.Lock()
			c.buffer = append(c.buffer, batch...)
			c.mu.Unlock()
		}
		return err
	}

	atomic.AddInt64(&c.uploaded, int64(n))
	c.log.Infow("batch uploaded", "count", n, "session_id", sessionID)
	return nil
}

// GetStats returns a snapshot of the collector's counters and current
// buffer size.
func (c *Collector) GetStats() Stats {
	c.mu.Lock()
	bufSize := len(c.buffer)
	c.mu.Unlock()

	return Stats{
		Recorded:       atomic.LoadInt64(&c.recorded),
		Sampled:        atomic.LoadInt64(&c.sampled),
		Uploaded:       atomic.LoadInt64(&c.uploaded),
		FailedToUpload: atomic.LoadInt64(&c.failedToUpload),
		Flushes:        atomic.LoadInt64(&c.flushes),
		BufferSize:     bufSize,
	}
}

func (c *Collector) timerLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FlushInterval)
			_ = c.FlushAsync(ctx)
			cancel()
		case <-c.stopCh:
			return
		}
	}
}

// Close stops the periodic timer, waits for any in-flight flush, then
// drains the buffer in batchSize-sized chunks bounded by ctx. Records
// still in the buffer when the deadline expires or an upload fails are
// counted in FailedToUpload. Idempotent.
func (c *Collector) Close(ctx context.Context) Stats {
	if !c.closed.CompareAndSwap(false, true) {
		return c.GetStats()
	}

	c.ticker.Stop()
	close(c.stopCh)
	c.wg.Wait()

	// Wait for an in-flight flush (e.g. a buffer-full trigger) to finish so
	// the drain loop below never spins on a held permit.
	if err := c.flushSem.Acquire(ctx, 1); err == nil {
		c.flushSem.Release(1)
	}

	for {
		c.mu.Lock()
		remaining := len(c.buffer)
		c.mu.Unlock()
		if remaining == 0 {
			break
		}
		if ctx.Err() != nil || c.FlushAsync(ctx) != nil {
			c.mu.Lock()
			leftover := len(c.buffer)
			c.buffer = nil
			c.mu.Unlock()
			atomic.AddInt64(&c.failedToUpload, int64(leftover))
			break
		}
	}

	return c.GetStats()
}
