package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestQueueDepth(t *testing.T) {
	device := "/dev/video-depth"
	defer DeleteDeviceMetrics(device)

	tests := []struct {
		inFlight int
		pending  int
	}{
		{1, 0},
		{3, 2},
		{0, 0},
	}
	for _, tt := range tests {
		SetQueueDepth(device, tt.inFlight, tt.pending)

		if got := testutil.ToFloat64(queueInFlight.WithLabelValues(device)); got != float64(tt.inFlight) {
			t.Errorf("in_flight = %v, want %d", got, tt.inFlight)
		}
		if got := testutil.ToFloat64(queuePending.WithLabelValues(device)); got != float64(tt.pending) {
			t.Errorf("pending = %v, want %d", got, tt.pending)
		}
		m := GetDeviceMetrics(device)
		if m == nil || m.InFlight != tt.inFlight || m.Pending != tt.pending {
			t.Errorf("cache = %+v, want in-flight %d pending %d", m, tt.inFlight, tt.pending)
		}
	}
}

func TestDequeueCounters(t *testing.T) {
	device := "/dev/video-counters"
	defer DeleteDeviceMetrics(device)

	ObserveDequeue(device, 1000)
	ObserveDequeue(device, 500)
	ObserveDequeue(device, 0)

	if got := testutil.ToFloat64(buffersDequeued.WithLabelValues(device)); got != 3 {
		t.Errorf("buffers_dequeued_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(bytesDequeued.WithLabelValues(device)); got != 1500 {
		t.Errorf("bytes_dequeued_total = %v, want 1500", got)
	}
	m := GetDeviceMetrics(device)
	if m.Dequeued != 3 || m.Bytes != 1500 {
		t.Errorf("cache = %+v", m)
	}
}

func TestStreamActiveAndErrors(t *testing.T) {
	device := "/dev/video-errors"
	defer DeleteDeviceMetrics(device)

	SetStreamActive(device, true)
	if got := testutil.ToFloat64(streamActive.WithLabelValues(device)); got != 1 {
		t.Errorf("stream_active = %v, want 1", got)
	}
	SetStreamActive(device, false)
	if got := testutil.ToFloat64(streamActive.WithLabelValues(device)); got != 0 {
		t.Errorf("stream_active = %v, want 0", got)
	}

	IncError(device, "timeout")
	IncError(device, "timeout")
	IncError(device, "busy")
	if got := testutil.ToFloat64(errorsTotal.WithLabelValues(device, "timeout")); got != 2 {
		t.Errorf("errors_total{timeout} = %v, want 2", got)
	}
	if got := GetDeviceMetrics(device).Errors; got != 3 {
		t.Errorf("cached errors = %d, want 3", got)
	}
}

func TestDeleteDeviceMetrics(t *testing.T) {
	device := "/dev/video-delete"
	SetQueueDepth(device, 2, 1)
	IncError(device, "busy")

	DeleteDeviceMetrics(device)

	if m := GetDeviceMetrics(device); m != nil {
		t.Errorf("expected nil after delete, got %+v", m)
	}
	if n := testutil.CollectAndCount(errorsTotal); n != 0 {
		// Other tests clean up after themselves, so nothing should remain.
		t.Errorf("errors_total series = %d, want 0", n)
	}
}

func TestGetDeviceMetricsReturnsCopy(t *testing.T) {
	device := "/dev/video-copy"
	defer DeleteDeviceMetrics(device)

	SetQueueDepth(device, 4, 0)
	m := GetDeviceMetrics(device)
	m.InFlight = 99
	if got := GetDeviceMetrics(device).InFlight; got != 4 {
		t.Errorf("cache was modified, InFlight = %d", got)
	}
}

func TestHTTPHandler(t *testing.T) {
	device := "/dev/video-http"
	defer DeleteDeviceMetrics(device)
	SetQueueDepth(device, 1, 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	HTTPHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `vidbuf_queue_in_flight{device="/dev/video-http"} 1`) {
		t.Errorf("metric missing from response:\n%s", w.Body.String())
	}
}

func TestServer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := Listen("127.0.0.1:0", logger)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestListenInvalidAddress(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := Listen("not-an-address", logger); err == nil {
		t.Error("expected error for invalid address")
	}
}
