package collector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xping/xping-go-sdk/internal/uploader"
	"github.com/xping/xping-go-sdk/internal/wire"
)

func newTestServer(t *testing.T, calls *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
}

func newTestCollector(t *testing.T, cfg Config, serverURL string) (*Collector, *int64) {
	t.Helper()
	var calls int64
	var url string
	if serverURL == "" {
		server := newTestServer(t, &calls)
		t.Cleanup(server.Close)
		url = server.URL
	} else {
		url = serverURL
	}

	up := uploader.New(uploader.Config{
		APIEndpoint:   url,
		MaxRetries:    1,
		RetryDelay:    time.Millisecond,
		UploadTimeout: time.Second,
	}, nil)

	c := New(cfg, up, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		c.Close(ctx)
	})
	c.SetSession(&wire.Session{SessionID: "s1", StartedAt: time.Now().UTC()})
	return c, &calls
}

func execution(id string) wire.Execution {
	return wire.Execution{ExecutionID: id}
}

func TestRecordTest_SamplingRateZeroDropsEverything(t *testing.T) {
	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 100, FlushInterval: time.Hour, SamplingRate: 0.0}, "")
	for i := 0; i < 20; i++ {
		c.RecordTest(execution("e"))
	}
	stats := c.GetStats()
	assert.Equal(t, int64(20), stats.Recorded)
	assert.Equal(t, int64(0), stats.Sampled)
	assert.Equal(t, 0, stats.BufferSize)
}

func TestRecordTest_SamplingRateOneKeepsEverything(t *testing.T) {
	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 100, FlushInterval: time.Hour, SamplingRate: 1.0}, "")
	for i := 0; i < 20; i++ {
		c.RecordTest(execution("e"))
	}
	stats := c.GetStats()
	assert.Equal(t, int64(20), stats.Recorded)
	assert.Equal(t, int64(20), stats.Sampled)
	assert.Equal(t, 20, stats.BufferSize)
}

func TestRecordTest_DisabledCollectorDropsImmediately(t *testing.T) {
	c, calls := newTestCollector(t, Config{Enabled: false, BatchSize: 1, FlushInterval: time.Hour, SamplingRate: 1.0}, "")
	c.RecordTest(execution("e"))
	stats := c.GetStats()
	assert.Equal(t, int64(0), stats.Recorded)
	assert.Equal(t, int64(0), atomic.LoadInt64(calls))
}

func TestRecordTest_BatchSizeOneFlushesEveryRecord(t *testing.T) {
	c, calls := newTestCollector(t, Config{Enabled: true, BatchSize: 1, FlushInterval: time.Hour, SamplingRate: 1.0}, "")

	c.RecordTest(execution("e1"))
	require.Eventually(t, func() bool {
		return c.GetStats().Uploaded == 1
	}, time.Second, 5*time.Millisecond)

	// UploadSession + UploadBatch = 2 calls for the first flush.
	assert.GreaterOrEqual(t, atomic.LoadInt64(calls), int64(2))
}

func TestRecordTest_FlushTriggeredAtBatchSize(t *testing.T) {
	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 4, FlushInterval: time.Hour, SamplingRate: 1.0}, "")

	for i := 0; i < 4; i++ {
		c.RecordTest(execution("e"))
	}

	select {
	case <-c.BufferFull():
	case <-time.After(time.Second):
		t.Fatal("expected buffer-full signal")
	}

	require.Eventually(t, func() bool {
		return c.GetStats().Uploaded == 4
	}, time.Second, 5*time.Millisecond)
}

func TestFlushAsync_SingleInFlightPermit(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 100, FlushInterval: time.Hour, SamplingRate: 1.0}, server.URL)
	c.RecordTest(execution("e1"))

	ctx := context.Background()
	done := make(chan error, 2)
	go func() { done <- c.FlushAsync(ctx) }()
	go func() { done <- c.FlushAsync(ctx) }()

	<-done
	<-done

	// The second concurrent FlushAsync should have been a no-op (returns
	// nil immediately without calling the uploader), so only one logical
	// flush's worth of HTTP calls happens.
	assert.LessOrEqual(t, atomic.LoadInt64(&calls), int64(2))
}

func TestGetStats_BufferSizeReflectsUnflushedCount(t *testing.T) {
	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 1000, FlushInterval: time.Hour, SamplingRate: 1.0}, "")
	for i := 0; i < 5; i++ {
		c.RecordTest(execution("e"))
	}
	assert.Equal(t, 5, c.GetStats().BufferSize)
}

func TestClose_DrainsRemainingBuffer(t *testing.T) {
	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 1000, FlushInterval: time.Hour, SamplingRate: 1.0}, "")
	for i := 0; i < 5; i++ {
		c.RecordTest(execution("e"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stats := c.Close(ctx)

	assert.Equal(t, 0, stats.BufferSize)
	assert.Equal(t, int64(5), stats.Uploaded)
}

func TestClose_DrainsInBatchSizeChunks(t *testing.T) {
	var mu sync.Mutex
	var batchSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/executions" {
			body, _ := io.ReadAll(r.Body)
			var decoded struct {
				Executions []json.RawMessage `json:"executions"`
			}
			_ = json.Unmarshal(body, &decoded)
			mu.Lock()
			batchSizes = append(batchSizes, len(decoded.Executions))
			mu.Unlock()
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 100, FlushInterval: time.Hour, SamplingRate: 1.0}, server.URL)
	for i := 0; i < 250; i++ {
		c.RecordTest(execution("e"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stats := c.Close(ctx)

	assert.Equal(t, int64(250), stats.Uploaded)
	assert.Equal(t, 0, stats.BufferSize)
	mu.Lock()
	defer mu.Unlock()
	for _, n := range batchSizes {
		assert.LessOrEqual(t, n, 100)
	}
}

func TestClose_DeadlineCountsRemainingAsFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 100, FlushInterval: time.Hour, SamplingRate: 1.0}, server.URL)
	for i := 0; i < 50; i++ {
		c.RecordTest(execution("e"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	stats := c.Close(ctx)

	assert.Equal(t, int64(0), stats.Uploaded)
	assert.Equal(t, int64(50), stats.FailedToUpload)
	assert.Equal(t, 0, stats.BufferSize)
}

func TestClose_IsIdempotent(t *testing.T) {
	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 10, FlushInterval: time.Hour, SamplingRate: 1.0}, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.Close(ctx)
	assert.NotPanics(t, func() { c.Close(ctx) })
}

func TestFlushAsync_FirstExecutionCarriesSessionEnvelope(t *testing.T) {
	var captured []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/executions" {
			captured, _ = io.ReadAll(r.Body)
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 3, FlushInterval: time.Hour, SamplingRate: 1.0}, server.URL)
	c.RecordTest(execution("e1"))
	c.RecordTest(execution("e2"))
	c.RecordTest(execution("e3"))

	require.Eventually(t, func() bool {
		return c.GetStats().Uploaded == 3
	}, time.Second, 5*time.Millisecond)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(captured, &decoded))
	execs := decoded["executions"].([]any)
	first := execs[0].(map[string]any)
	second := execs[1].(map[string]any)

	assert.Contains(t, first, "session")
	assert.NotContains(t, second, "session")
}

func TestTimerLoop_FlushesOnInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	c, _ := newTestCollector(t, Config{Enabled: true, BatchSize: 1000, FlushInterval: 20 * time.Millisecond, SamplingRate: 1.0}, server.URL)
	c.RecordTest(execution("e1"))

	require.Eventually(t, func() bool {
		return c.GetStats().Uploaded == 1
	}, time.Second, 5*time.Millisecond)
}
