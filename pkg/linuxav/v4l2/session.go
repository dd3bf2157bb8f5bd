//go:build linux

package v4l2

import (
	"context"
	"errors"
	"log/slog"
)

// Session is the application-facing handle for one device node: the open
// descriptor, its resolved category, and at most one live pool with its
// queue and stream controller.
//
// A Session is driven by a single caller; it does no internal locking.
type Session struct {
	dev        *Device
	io         deviceIO
	capability Capability
	category   BufferCategory

	memory MemoryType
	limit  int
	logger *slog.Logger

	pool   *Pool
	queue  *Queue
	stream *Stream
}

// SessionOption configures OpenSession.
type SessionOption func(*Session)

// WithMemory selects the memory type for pools created by the session.
func WithMemory(memory MemoryType) SessionOption {
	return func(s *Session) {
		s.memory = memory
	}
}

// WithLimit overrides the in-flight cap of the session's queues.
func WithLimit(limit int) SessionOption {
	return func(s *Session) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithLogger sets the logger for the session and everything it creates.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OpenSession opens path and resolves its buffer category. The descriptor is
// closed again if resolution fails.
func OpenSession(path string, opts ...SessionOption) (*Session, error) {
	dev, err := OpenDevice(path, DefaultOpenFlags)
	if err != nil {
		return nil, err
	}
	s, err := newSession(dev, dev, opts...)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return s, nil
}

func newSession(dev *Device, io deviceIO, opts ...SessionOption) (*Session, error) {
	s := &Session{
		dev:    dev,
		io:     io,
		memory: MemoryMMAP,
		limit:  VideoMaxFrame,
		logger: slog.Default().With("component", "linuxav"),
	}
	for _, opt := range opts {
		opt(s)
	}

	capability, category, err := resolve(io)
	if err != nil {
		return nil, err
	}
	s.capability = capability
	s.category = category
	s.stream = &Stream{dev: io, category: category}

	s.logger.Debug("Device opened",
		"path", s.Path(), "driver", capability.Driver, "card", capability.Card,
		"bus_info", capability.BusInfo, "category", category.String())
	return s, nil
}

// Path returns the device node path.
func (s *Session) Path() string {
	if s.dev == nil {
		return ""
	}
	return s.dev.Path()
}

// Device returns the underlying handle.
func (s *Session) Device() *Device {
	return s.dev
}

// Capability returns the capabilities queried at open time.
func (s *Session) Capability() Capability {
	return s.capability
}

// Category returns the buffer category resolved at open time.
func (s *Session) Category() BufferCategory {
	return s.category
}

// Pool returns the live pool, or nil.
func (s *Session) Pool() *Pool {
	return s.pool
}

// Queue returns the queue of the live pool, or nil.
func (s *Session) Queue() *Queue {
	return s.queue
}

// Streaming reports whether the stream is on.
func (s *Session) Streaming() bool {
	return s.stream.Streaming()
}

// CreatePool negotiates count buffers. Streaming must be off and no other
// pool may be live.
func (s *Session) CreatePool(count int) (*Pool, error) {
	if s.stream.Streaming() {
		return nil, newError(ErrCodeProtocolViolation, "create pool", "device is streaming", nil)
	}
	if s.pool != nil {
		return nil, newError(ErrCodeProtocolViolation, "create pool", "a pool is already live", nil)
	}

	pool, err := createPool(s.io, s.category, s.memory, count, WithPoolLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.pool = pool
	s.queue = NewQueue(pool, WithInFlightLimit(s.limit), WithQueueLogger(s.logger))
	return pool, nil
}

// Buffer returns buffer index of the live pool.
func (s *Session) Buffer(index int) (*Buffer, error) {
	if s.pool == nil {
		return nil, newError(ErrCodeProtocolViolation, "lookup buffer", "no pool", nil)
	}
	return s.pool.Buffer(index)
}

// Enqueue submits buffer index, deferring it if the in-flight cap is reached.
func (s *Session) Enqueue(index int) error {
	buf, err := s.Buffer(index)
	if err != nil {
		return err
	}
	return s.queue.Enqueue(buf)
}

// Dequeue blocks until the driver returns a buffer and yields its index.
func (s *Session) Dequeue() (int, error) {
	buf, err := s.DequeueBuffer()
	if err != nil {
		return -1, err
	}
	return buf.Index(), nil
}

// DequeueBuffer is Dequeue returning the buffer itself.
func (s *Session) DequeueBuffer() (*Buffer, error) {
	if s.queue == nil {
		return nil, newError(ErrCodeProtocolViolation, "dequeue", "no pool", nil)
	}
	return s.queue.Dequeue()
}

// DequeueContext waits for a ready buffer until ctx ends, then dequeues it.
func (s *Session) DequeueContext(ctx context.Context) (*Buffer, error) {
	if s.queue == nil {
		return nil, newError(ErrCodeProtocolViolation, "dequeue", "no pool", nil)
	}
	if s.dev != nil {
		if err := WaitReady(ctx, s.dev, s.category); err != nil {
			return nil, err
		}
	}
	return s.queue.Dequeue()
}

// StreamOn starts streaming. A pool must exist.
func (s *Session) StreamOn() error {
	if s.pool == nil {
		return newError(ErrCodeProtocolViolation, "stream on", "no pool", nil)
	}
	return s.stream.On()
}

// StreamOff stops streaming and reclaims every buffer the queue still
// tracks.
func (s *Session) StreamOff() error {
	if err := s.stream.Off(); err != nil {
		return err
	}
	if s.queue != nil {
		if n := s.queue.Reclaim(); n > 0 {
			s.logger.Debug("Buffers reclaimed", "path", s.Path(), "count", n)
		}
	}
	return nil
}

// ReleasePool releases the live pool. Streaming must be off. Releasing when
// no pool is live is a no-op.
func (s *Session) ReleasePool() error {
	if s.pool == nil {
		return nil
	}
	if s.stream.Streaming() {
		return newError(ErrCodeProtocolViolation, "release pool", "device is streaming", nil)
	}
	err := s.pool.Release()
	s.pool = nil
	s.queue = nil
	return err
}

// Close stops streaming, releases the pool and closes the descriptor.
// Close is idempotent.
func (s *Session) Close() error {
	var errs []error
	if s.stream.Streaming() {
		if err := s.StreamOff(); err != nil {
			errs = append(errs, err)
			// The driver keeps its buffers while streaming; mark the stream
			// stopped so the pool can still be unmapped.
			s.stream.streaming = false
		}
	}
	if err := s.ReleasePool(); err != nil {
		errs = append(errs, err)
	}
	if s.dev != nil {
		if err := s.dev.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
