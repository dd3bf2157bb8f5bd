package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/vidbuf/pkg/linuxav/v4l2"
)

// Frame describes one dequeued buffer.
type Frame struct {
	Index     int
	Sequence  uint32
	BytesUsed int
	Errored   bool
	Timestamp time.Time
}

// device is the slice of a v4l2.Session the runner drives.
type device interface {
	Path() string
	Category() v4l2.BufferCategory
	Allocate(count int) (int, error)
	Enqueue(index int) error
	Dequeue(ctx context.Context) (Frame, error)
	Depth() (inFlight, pending int)
	StreamOn() error
	StreamOff() error
	Release() error
	Close() error
}

type opener func(path string, cfg Config, logger *slog.Logger) (device, error)

func openSession(path string, cfg Config, logger *slog.Logger) (device, error) {
	s, err := v4l2.OpenSession(path,
		v4l2.WithMemory(cfg.Memory),
		v4l2.WithLimit(cfg.Limit),
		v4l2.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &sessionDevice{Session: s}, nil
}

// sessionDevice adapts a v4l2.Session to device.
type sessionDevice struct {
	*v4l2.Session
}

// Allocate creates the pool. Output buffers are marked full so the driver
// consumes the whole plane.
func (d *sessionDevice) Allocate(count int) (int, error) {
	pool, err := d.CreatePool(count)
	if err != nil {
		return 0, err
	}
	if d.Category().Output() {
		for _, buf := range pool.Buffers() {
			for _, pl := range buf.Planes() {
				if err := pl.SetBytesUsed(pl.Len()); err != nil {
					return 0, err
				}
			}
		}
	}
	return pool.Len(), nil
}

func (d *sessionDevice) Dequeue(ctx context.Context) (Frame, error) {
	buf, err := d.DequeueContext(ctx)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Index:     buf.Index(),
		Sequence:  buf.Sequence(),
		BytesUsed: buf.BytesUsed(),
		Errored:   buf.Errored(),
		Timestamp: buf.Timestamp(),
	}, nil
}

func (d *sessionDevice) Depth() (int, int) {
	q := d.Queue()
	if q == nil {
		return 0, 0
	}
	return q.InFlightCount(), q.PendingCount()
}

func (d *sessionDevice) Release() error {
	return d.ReleasePool()
}
