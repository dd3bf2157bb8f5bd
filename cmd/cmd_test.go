package cmd

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/vidbuf/internal/capture"
	"github.com/smazurov/vidbuf/internal/events"
	"github.com/smazurov/vidbuf/pkg/linuxav/v4l2"
)

// syncBuffer is a bytes.Buffer safe for the bus goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("output never contained %q:\n%s", want, b.String())
}

func TestReporter(t *testing.T) {
	bus := events.New()
	var out syncBuffer
	r := NewReporter(bus, &out, time.Hour)
	defer r.Close()

	tests := []struct {
		name  string
		event events.Event
		want  string
	}{
		{"pool", events.PoolEvent{Device: "/dev/video0", Action: events.PoolCreated, Buffers: 4, Memory: "mmap", Category: "capture"}, "/dev/video0 pool created: 4 mmap buffers (capture)"},
		{"stream on", events.StreamStateChangedEvent{Device: "/dev/video0", Streaming: true}, "/dev/video0 stream on"},
		{"frame", events.FrameEvent{Device: "/dev/video0", Sequence: 7, BytesUsed: 100, InFlight: 3}, "frames=1 bytes=100 seq=7 in_flight=3 pending=0"},
		{"error", events.SessionErrorEvent{Device: "/dev/video0", Op: "dequeue", Code: "TIMEOUT", Error: "context deadline exceeded"}, "dequeue failed [TIMEOUT]"},
		{"stream off", events.StreamStateChangedEvent{Device: "/dev/video0"}, "/dev/video0 stream off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus.Publish(tt.event)
			waitFor(t, &out, tt.want)
		})
	}
}

func TestReporterThrottlesFrames(t *testing.T) {
	bus := events.New()
	var out syncBuffer
	r := NewReporter(bus, &out, time.Hour)
	defer r.Close()

	for i := range 20 {
		bus.Publish(events.FrameEvent{Device: "/dev/video1", Sequence: uint32(i), BytesUsed: 10})
	}
	bus.Publish(events.StreamStateChangedEvent{Device: "/dev/video1"})
	waitFor(t, &out, "stream off")
	// Frames and stream events use separate subscribers, so wait for all
	// frames to be counted before checking.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		n := r.frames
		r.mu.Unlock()
		if n == 20 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := strings.Count(out.String(), "frames="); got != 1 {
		t.Errorf("printed %d frame lines, want 1:\n%s", got, out.String())
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	PrintStats(&buf, capture.Stats{
		SessionID:   "abc",
		Device:      "/dev/video0",
		Category:    v4l2.CaptureMulti,
		Buffers:     4,
		Frames:      60,
		Bytes:       6000,
		Dropped:     2,
		Duration:    2 * time.Second,
		MaxInFlight: 4,
	})

	for _, want := range []string{
		"Session abc on /dev/video0 (capture-mplane, 4 buffers)",
		"frames:    60 in 2s (30.0 fps)",
		"bytes:     6000",
		"dropped:   2",
		"max 4, pending max 0",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, buf.String())
		}
	}
}

func TestWriteProbeReport(t *testing.T) {
	c := v4l2.Capability{
		Driver:       "uvcvideo",
		Card:         "USB Camera",
		BusInfo:      "usb-0000:00:14.0-1",
		Version:      6<<16 | 1<<8,
		Capabilities: 0x84a00001,
		DeviceCaps:   0x04200001,
	}
	report := newProbeReport("/dev/video0", c, v4l2.CaptureSingle)
	report.Pool = &PoolReport{Memory: "mmap", Requested: 4, Granted: 3, Planes: [][]int{{4096}, {4096}, {4096}}}

	var buf bytes.Buffer
	writeProbeReport(&buf, report)
	out := buf.String()

	for _, want := range []string{
		"Device:       /dev/video0",
		"Driver:       uvcvideo (6.1.0)",
		"Device caps:  video-capture, streaming",
		"Category:     capture",
		"Streaming:    true",
		"Pool:         3 of 4 mmap buffers",
		"buffer 2:   4096 bytes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if !report.Streaming {
		t.Error("report should be streaming from device caps")
	}
}

func TestWriteDeviceList(t *testing.T) {
	tests := []struct {
		name  string
		found []v4l2.DeviceInfo
		want  []string
	}{
		{"empty", nil, []string{"No V4L2 devices found."}},
		{
			"two devices",
			[]v4l2.DeviceInfo{
				{DevicePath: "/dev/video0", DeviceName: "HDMI RX", Driver: "rk_hdmirx", Category: v4l2.CaptureMulti},
				{DevicePath: "/dev/video11", DeviceName: "Encoder", Driver: "hantro", Category: v4l2.OutputMulti},
			},
			[]string{"PATH", "/dev/video0", "capture-mplane", "/dev/video11", "output-mplane"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeDeviceList(&buf, tt.found)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestProbeCmdRejectsUnknownDevice(t *testing.T) {
	c := CreateProbeCmd()
	c.SetArgs([]string{"video-that-does-not-exist"})
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	if err := c.Execute(); err == nil {
		t.Fatal("expected error for unknown device")
	}
}

func TestProbeCmdRejectsBadMemory(t *testing.T) {
	c := CreateProbeCmd()
	c.SetArgs([]string{"/dev/null", "--memory", "dmabuf"})
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	err := c.Execute()
	if err == nil || !strings.Contains(err.Error(), "memory") {
		t.Fatalf("Execute error = %v, want memory type error", err)
	}
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	c := CreateVersionCmd()
	c.SetOut(&buf)
	c.SetArgs(nil)
	if err := c.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "vidbuf ") {
		t.Errorf("version output = %q", buf.String())
	}
}
