// Package uploader delivers session headers and execution batches to the
// ingestion API over HTTP, with bounded retry, exponential backoff with
// full jitter, optional gzip compression, outbound request pacing, and a
// circuit breaker that fails fast when the API is persistently unhealthy.
package uploader

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xping/xping-go-sdk/internal/wire"
	"github.com/xping/xping-go-sdk/internal/xerrors"
	"github.com/xping/xping-go-sdk/internal/xplog"
)

const sdkVersion = "1.0.0"

// Config carries the subset of the SDK Configuration the uploader needs.
type Config struct {
	APIEndpoint       string
	APIKey            string
	ProjectID         string
	MaxRetries        int
	RetryDelay        time.Duration
	UploadTimeout     time.Duration
	EnableCompression bool

	// MaxRequestsPerSecond caps the rate of outbound HTTP attempts
	// (including retries) this Uploader issues. Zero disables limiting.
	MaxRequestsPerSecond float64
}

// Uploader sends session headers and execution batches to the API. One
// Uploader exclusively owns its HTTP client and circuit-breaker state.
type Uploader struct {
	cfg Config
	log *xplog.Logger

	httpClient *http.Client
	breaker    *breaker
	limiter    *rate.Limiter

	mu               sync.Mutex
	uploadedSessions map[string]bool
}

// New builds an Uploader. The HTTP client is constructed once and reused
// across calls, with UploadTimeout as its Timeout.
func New(cfg Config, log *xplog.Logger) *Uploader {
	if log == nil {
		log = xplog.Nop()
	}
	var limiter *rate.Limiter
	if cfg.MaxRequestsPerSecond > 0 {
		burst := int(cfg.MaxRequestsPerSecond) + 1
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), burst)
	}
	return &Uploader{
		cfg:              cfg,
		log:              log,
		httpClient:       &http.Client{Timeout: cfg.UploadTimeout},
		breaker:          newBreaker(),
		limiter:          limiter,
		uploadedSessions: make(map[string]bool),
	}
}

// UploadSession posts the session envelope exactly once per sessionId;
// subsequent calls for an already-uploaded session return Success without
// any network I/O.
func (u *Uploader) UploadSession(ctx context.Context, session wire.Session) (Result, error) {
	u.mu.Lock()
	if u.uploadedSessions[session.SessionID] {
		u.mu.Unlock()
		return Result{Success: true, ExecutionCount: 0}, nil
	}
	u.mu.Unlock()

	body, err := wire.EncodeSession(session)
	if err != nil {
		return Result{}, xerrors.Wrap(xerrors.Internal, "encode session")
	}

	result, err := u.send(ctx, "/sessions", body)
	if err == nil && result.Success {
		u.mu.Lock()
		u.uploadedSessions[session.SessionID] = true
		u.mu.Unlock()
	}
	return result, err
}

// UploadBatch posts a batch of executions for sessionID. Callers must
// invoke UploadSession for the session before the first UploadBatch call;
// the collector enforces that call order.
func (u *Uploader) UploadBatch(ctx context.Context, sessionID string, executions []wire.Execution) (Result, error) {
	body, err := wire.EncodeBatch(sessionID, executions)
	if err != nil {
		return Result{}, xerrors.Wrap(xerrors.Internal, "encode batch")
	}

	result, uerr := u.send(ctx, "/executions", body)
	result.ExecutionCount = len(executions)
	return result, uerr
}

func (u *Uploader) send(ctx context.Context, path string, body []byte) (Result, error) {
	if !u.breaker.allow() {
		u.log.Debugw("circuit open, failing fast", "path", path)
		return Result{Success: false, ErrorMessage: xerrors.CircuitOpen.Error()}, xerrors.CircuitOpen
	}

	maxAttempts := u.cfg.MaxRetries + 1
	var lastErr error
	var lastResult Result

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffWithFullJitter(u.cfg.RetryDelay, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				u.breaker.record(true)
				return Result{Success: false, ErrorMessage: xerrors.Cancelled.Error()}, xerrors.Cancelled
			}
		}

		result, err := u.attempt(ctx, path, body)
		lastResult, lastErr = result, err

		if err == nil {
			u.breaker.record(false)
			return result, nil
		}
		if !xerrors.Retriable(err) {
			u.breaker.record(true)
			return result, err
		}
		u.log.Debugw("upload attempt failed, will retry", "path", path, "attempt", attempt, "error", err)
	}

	u.breaker.record(true)
	return lastResult, lastErr
}

func (u *Uploader) attempt(ctx context.Context, path string, body []byte) (Result, error) {
	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return Result{Success: false, ErrorMessage: xerrors.Cancelled.Error()}, xerrors.Cancelled
		}
	}

	payload := body
	encoding := ""
	if u.cfg.EnableCompression {
		compressed, err := gzipBytes(body)
		if err == nil {
			payload = compressed
			encoding = "gzip"
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.APIEndpoint+path, bytes.NewReader(payload))
	if err != nil {
		return Result{}, xerrors.Wrap(xerrors.Internal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", u.cfg.APIKey)
	req.Header.Set("X-Project-Id", u.cfg.ProjectID)
	req.Header.Set("User-Agent", "Xping-SDK/"+sdkVersion)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Success: false, ErrorMessage: xerrors.Cancelled.Error()}, xerrors.Cancelled
		}
		return Result{Success: false, ErrorMessage: err.Error()}, xerrors.Wrap(xerrors.Transport, "sending request")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{Success: false, StatusCode: resp.StatusCode, ErrorMessage: "rate limited"}, xerrors.Wrap(xerrors.RateLimited, "rate limited")
	case resp.StatusCode >= 500:
		return Result{Success: false, StatusCode: resp.StatusCode, ErrorMessage: "server error"}, xerrors.Wrap(xerrors.ServerError, "server error %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return Result{Success: false, StatusCode: resp.StatusCode, ErrorMessage: string(respBody)}, xerrors.Wrap(xerrors.ClientError, "client error %d", resp.StatusCode)
	}

	var envelope receiptEnvelope
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, &envelope)
	}

	return Result{
		Success:    true,
		StatusCode: resp.StatusCode,
		ReceiptID:  envelope.Receipt,
	}, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// backoffWithFullJitter implements exponential backoff with full jitter:
// delay = random(0, base * 2^(attempt-1)), capped at two minutes.
func backoffWithFullJitter(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	max := base << uint(attempt-1)
	if max <= 0 || max > 2*time.Minute {
		max = 2 * time.Minute
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}
