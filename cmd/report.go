package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/smazurov/vidbuf/internal/capture"
	"github.com/smazurov/vidbuf/internal/events"
)

// Reporter prints session events to a console. Frame events are
// summarized at most once per interval.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	interval time.Duration
	last     time.Time
	frames   int
	bytes    int64
	unsubs   []func()
}

// NewReporter subscribes to bus and writes to w until Close.
func NewReporter(bus *events.Bus, w io.Writer, interval time.Duration) *Reporter {
	r := &Reporter{w: w, interval: interval}
	r.unsubs = []func(){
		bus.Subscribe(r.onPool),
		bus.Subscribe(r.onStream),
		bus.Subscribe(r.onFrame),
		bus.Subscribe(r.onError),
	}
	return r
}

// Close unsubscribes from the bus.
func (r *Reporter) Close() {
	for _, unsub := range r.unsubs {
		unsub()
	}
}

func (r *Reporter) onPool(e events.PoolEvent) {
	r.printf("%s pool %s: %d %s buffers (%s)\n", e.Device, e.Action, e.Buffers, e.Memory, e.Category)
}

func (r *Reporter) onStream(e events.StreamStateChangedEvent) {
	state := "off"
	if e.Streaming {
		state = "on"
	}
	r.printf("%s stream %s\n", e.Device, state)
}

func (r *Reporter) onFrame(e events.FrameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	r.bytes += int64(e.BytesUsed)
	now := time.Now()
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return
	}
	r.last = now
	fmt.Fprintf(r.w, "%s frames=%d bytes=%d seq=%d in_flight=%d pending=%d\n",
		e.Device, r.frames, r.bytes, e.Sequence, e.InFlight, e.Pending)
}

func (r *Reporter) onError(e events.SessionErrorEvent) {
	r.printf("%s %s failed [%s]: %s\n", e.Device, e.Op, e.Code, e.Error)
}

func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

// PrintStats writes the end-of-session summary.
func PrintStats(w io.Writer, s capture.Stats) {
	fps := 0.0
	if s.Duration > 0 {
		fps = float64(s.Frames) / s.Duration.Seconds()
	}
	fmt.Fprintf(w, "Session %s on %s (%s, %d buffers)\n", s.SessionID, s.Device, s.Category, s.Buffers)
	fmt.Fprintf(w, "  frames:    %d in %s (%.1f fps)\n", s.Frames, s.Duration.Round(time.Millisecond), fps)
	fmt.Fprintf(w, "  bytes:     %d\n", s.Bytes)
	fmt.Fprintf(w, "  dropped:   %d\n", s.Dropped)
	fmt.Fprintf(w, "  errored:   %d\n", s.Errored)
	fmt.Fprintf(w, "  in flight: max %d, pending max %d\n", s.MaxInFlight, s.MaxPending)
}
