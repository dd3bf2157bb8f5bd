// Package capture drives a V4L2 device through a complete streaming
// session: pool negotiation, queueing, streaming and teardown.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/vidbuf/internal/devices"
	"github.com/smazurov/vidbuf/internal/events"
	"github.com/smazurov/vidbuf/internal/logging"
	"github.com/smazurov/vidbuf/internal/metrics"
	"github.com/smazurov/vidbuf/pkg/linuxav/v4l2"
)

// Stats summarizes a finished session.
type Stats struct {
	SessionID   string
	Device      string
	Category    v4l2.BufferCategory
	Buffers     int
	Frames      int
	Bytes       int64
	Errored     int
	Dropped     uint32
	Duration    time.Duration
	MaxInFlight int
	MaxPending  int
}

// Runner runs capture sessions described by a Config.
type Runner struct {
	cfg    Config
	bus    *events.Bus
	logger *slog.Logger

	open    opener
	resolve func(string) (string, error)
	wait    func(context.Context, string) error
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger overrides the "capture" module logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner. bus may be nil.
func NewRunner(cfg Config, bus *events.Bus, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg.withDefaults(),
		bus:     bus,
		logger:  logging.GetLogger("capture"),
		open:    openSession,
		resolve: devices.ResolveDevicePath,
		wait:    devices.WaitForDevice,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// run holds the state of one Run call.
type run struct {
	*Runner
	id     string
	path   string
	logger *slog.Logger
	dev    device
	stats  Stats

	pooled    bool
	streaming bool
	lastSeq   uint32
	haveSeq   bool
}

// Run executes one session. Canceling ctx stops streaming cleanly; the
// returned stats then cover the frames seen so far and the error is nil.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	if err := r.cfg.Validate(); err != nil {
		return Stats{}, fmt.Errorf("invalid capture config: %w", err)
	}

	s := &run{Runner: r, id: uuid.NewString()}
	s.stats.SessionID = s.id
	s.logger = r.logger.With("session", s.id)

	err := s.execute(ctx)
	if cerr := s.teardown(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return s.stats, err
}

func (s *run) execute(ctx context.Context) error {
	if s.cfg.Wait {
		if err := s.wait(ctx, s.cfg.Device); err != nil {
			return s.fail("wait", err)
		}
	}

	path, err := s.resolve(s.cfg.Device)
	if err != nil {
		return s.fail("resolve", err)
	}
	s.path = path
	s.stats.Device = path
	s.logger = s.logger.With("device", path)

	dev, err := s.open(path, s.cfg, s.logger)
	if err != nil {
		return s.fail("open", err)
	}
	s.dev = dev
	s.stats.Category = dev.Category()

	if err := s.allocate(); err != nil {
		return err
	}

	for i := range s.stats.Buffers {
		if err := s.dev.Enqueue(i); err != nil {
			return s.fail("enqueue", err)
		}
		s.observeDepth()
	}

	if err := s.dev.StreamOn(); err != nil {
		return s.fail("stream on", err)
	}
	s.streaming = true
	s.publishStream(true)

	start := s.now()
	defer func() { s.stats.Duration = s.now().Sub(start) }()

	for s.cfg.Frames == 0 || s.stats.Frames < s.cfg.Frames {
		frame, err := s.dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("Capture canceled", "frames", s.stats.Frames)
				return nil
			}
			return s.fail("dequeue", err)
		}
		s.record(frame)

		if err := s.dev.Enqueue(frame.Index); err != nil {
			return s.fail("enqueue", err)
		}
		s.observeDepth()
	}

	s.logger.Info("Capture complete", "frames", s.stats.Frames, "bytes", s.stats.Bytes, "dropped", s.stats.Dropped)
	return nil
}

// allocate creates the pool, retrying with the granted count while it
// stays at or above MinBuffers.
func (s *run) allocate() error {
	count := s.cfg.Buffers
	for {
		n, err := s.dev.Allocate(count)
		if err == nil {
			s.pooled = true
			s.stats.Buffers = n
			s.logger.Info("Buffer pool created", "requested", s.cfg.Buffers, "buffers", n,
				"category", s.dev.Category().String(), "memory", s.cfg.Memory.String())
			s.publish(events.PoolEvent{
				SessionID: s.id,
				Device:    s.path,
				Action:    events.PoolCreated,
				Category:  s.dev.Category().String(),
				Memory:    s.cfg.Memory.String(),
				Requested: uint32(s.cfg.Buffers),
				Buffers:   n,
				Timestamp: s.timestamp(),
			})
			return nil
		}

		var grant *v4l2.GrantError
		if errors.As(err, &grant) && grant.Granted > 0 && grant.Granted < count && grant.Granted >= s.cfg.MinBuffers {
			s.logger.Warn("Driver granted fewer buffers, retrying", "requested", count, "granted", grant.Granted)
			count = grant.Granted
			continue
		}
		return s.fail("allocate", err)
	}
}

func (s *run) dequeue(ctx context.Context) (Frame, error) {
	fctx := ctx
	if s.cfg.FrameTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, s.cfg.FrameTimeout)
		defer cancel()
	}
	return s.dev.Dequeue(fctx)
}

func (s *run) record(frame Frame) {
	s.stats.Frames++
	s.stats.Bytes += int64(frame.BytesUsed)
	if frame.Errored {
		s.stats.Errored++
	}
	if s.haveSeq && frame.Sequence > s.lastSeq+1 {
		s.stats.Dropped += frame.Sequence - s.lastSeq - 1
	}
	s.lastSeq = frame.Sequence
	s.haveSeq = true

	inFlight, pending := s.dev.Depth()
	metrics.ObserveDequeue(s.path, frame.BytesUsed)
	metrics.SetQueueDepth(s.path, inFlight, pending)

	s.logger.Debug("Buffer dequeued", "index", frame.Index, "sequence", frame.Sequence,
		"bytes", frame.BytesUsed, "in_flight", inFlight, "pending", pending)
	s.publish(events.FrameEvent{
		SessionID: s.id,
		Device:    s.path,
		Index:     uint32(frame.Index),
		Sequence:  frame.Sequence,
		BytesUsed: frame.BytesUsed,
		Errored:   frame.Errored,
		InFlight:  inFlight,
		Pending:   pending,
		Captured:  frame.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (s *run) observeDepth() {
	inFlight, pending := s.dev.Depth()
	s.stats.MaxInFlight = max(s.stats.MaxInFlight, inFlight)
	s.stats.MaxPending = max(s.stats.MaxPending, pending)
	metrics.SetQueueDepth(s.path, inFlight, pending)
}

// teardown stops streaming, releases the pool and closes the device,
// whichever of those are needed.
func (s *run) teardown() error {
	if s.dev == nil {
		return nil
	}
	var errs []error
	if s.streaming {
		if err := s.dev.StreamOff(); err != nil {
			errs = append(errs, s.fail("stream off", err))
		}
		s.streaming = false
		s.publishStream(false)
	}
	metrics.SetQueueDepth(s.path, 0, 0)

	if s.pooled {
		if err := s.dev.Release(); err != nil {
			errs = append(errs, s.fail("release", err))
		}
		s.pooled = false
		s.publish(events.PoolEvent{
			SessionID: s.id,
			Device:    s.path,
			Action:    events.PoolReleased,
			Category:  s.dev.Category().String(),
			Memory:    s.cfg.Memory.String(),
			Buffers:   s.stats.Buffers,
			Timestamp: s.timestamp(),
		})
	}

	if err := s.dev.Close(); err != nil {
		errs = append(errs, s.fail("close", err))
	}
	s.dev = nil
	return errors.Join(errs...)
}

// fail records err under op in logs, metrics and events, and returns it.
func (s *run) fail(op string, err error) error {
	code := v4l2.ErrorCode(err)
	switch {
	case code != "":
	case errors.Is(err, context.DeadlineExceeded):
		code = "TIMEOUT"
	case errors.Is(err, context.Canceled):
		code = "CANCELED"
	default:
		code = "OTHER"
	}

	device := s.path
	if device == "" {
		device = s.cfg.Device
	}
	s.logger.Error("Capture step failed", "op", op, "code", code, "error", err)
	metrics.IncError(device, code)
	s.publish(events.SessionErrorEvent{
		SessionID: s.id,
		Device:    device,
		Op:        op,
		Code:      code,
		Error:     err.Error(),
		Timestamp: s.timestamp(),
	})
	return fmt.Errorf("%s: %w", op, err)
}

func (s *run) publishStream(streaming bool) {
	metrics.SetStreamActive(s.path, streaming)
	s.logger.Info("Stream state changed", "streaming", streaming)
	s.publish(events.StreamStateChangedEvent{
		SessionID: s.id,
		Device:    s.path,
		Streaming: streaming,
		Timestamp: s.timestamp(),
	})
}

func (s *run) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func (s *run) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
