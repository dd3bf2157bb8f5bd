//go:build linux

package v4l2

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"
	"unsafe"
)

// Queue exchanges the buffers of one pool with the driver. At most Limit
// buffers are submitted at a time; further enqueues wait in a FIFO and are
// submitted in order as slots free up.
//
// A Queue is not safe for concurrent use.
type Queue struct {
	pool     *Pool
	limit    int
	inFlight map[int]*Buffer
	pending  []*Buffer
	logger   *slog.Logger

	// planes is handed to the kernel by address.
	planes [videoMaxPlanes]v4l2Plane
}

// QueueOption configures NewQueue.
type QueueOption func(*Queue)

// WithInFlightLimit overrides the in-flight cap (VideoMaxFrame by default).
func WithInFlightLimit(limit int) QueueOption {
	return func(q *Queue) {
		if limit > 0 {
			q.limit = limit
		}
	}
}

// WithQueueLogger sets the logger used for queue diagnostics.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewQueue creates the queue state for pool. Construct a fresh queue for
// every pool.
func NewQueue(pool *Pool, opts ...QueueOption) *Queue {
	q := &Queue{
		pool:     pool,
		limit:    VideoMaxFrame,
		inFlight: make(map[int]*Buffer),
		logger:   pool.logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue hands buf to the driver, or parks it in the pending FIFO when
// the in-flight cap is reached. While buffers are pending, the oldest
// pending buffer is submitted ahead of buf so submission order is kept.
//
// On failure buf stays Free and nothing is recorded as in-flight.
func (q *Queue) Enqueue(buf *Buffer) error {
	if err := q.checkEnqueue(buf); err != nil {
		return err
	}

	if len(q.inFlight) >= q.limit {
		buf.state = BufferPending
		q.pending = append(q.pending, buf)
		q.logger.Debug("Buffer deferred", "index", buf.index, "pending", len(q.pending))
		return nil
	}

	if len(q.pending) == 0 {
		return q.submit(buf)
	}

	buf.state = BufferPending
	q.pending = append(q.pending, buf)
	if err := q.submit(q.pending[0]); err != nil {
		q.pending = q.pending[:len(q.pending)-1]
		buf.state = BufferFree
		return err
	}
	q.popPending()
	return nil
}

func (q *Queue) checkEnqueue(buf *Buffer) error {
	if q.pool.released {
		return newError(ErrCodeProtocolViolation, "enqueue", "pool has been released", nil)
	}
	if buf == nil || buf.index < 0 || buf.index >= len(q.pool.buffers) || q.pool.buffers[buf.index] != buf {
		return newError(ErrCodeProtocolViolation, "enqueue", "buffer does not belong to this pool", nil)
	}
	if buf.state != BufferFree {
		return newError(ErrCodeProtocolViolation, "enqueue",
			fmt.Sprintf("buffer %d is %s", buf.index, buf.state), nil)
	}
	return nil
}

// submit issues VIDIOC_QBUF for buf and records it as in-flight.
func (q *Queue) submit(buf *Buffer) error {
	category := q.pool.category
	desc := v4l2Buffer{
		index:  uint32(buf.index),
		typ:    category.bufType(),
		memory: uint32(q.pool.memory),
	}

	if category.Multiplanar() {
		q.planes = [videoMaxPlanes]v4l2Plane{}
		for i, pl := range buf.planes {
			q.planes[i].length = pl.length
			if category.Output() {
				q.planes[i].bytesused = pl.bytesUsed
			}
			if q.pool.memory == MemoryUserPtr {
				q.planes[i].setUserptr(userptr(pl.mem))
			}
		}
		desc.setPlanes(&q.planes)
		desc.length = uint32(len(buf.planes))
	} else {
		pl := buf.planes[0]
		desc.length = pl.length
		if category.Output() {
			desc.bytesused = pl.bytesUsed
		}
		if q.pool.memory == MemoryUserPtr {
			desc.setUserptr(userptr(pl.mem))
		}
	}

	err := q.sync(vidiocQbuf, &desc)
	if err != nil {
		return ioctlError(fmt.Sprintf("VIDIOC_QBUF %d", buf.index), err)
	}

	buf.state = BufferQueued
	q.inFlight[buf.index] = buf
	return nil
}

// sync issues a buffer ioctl while keeping the plane array reachable.
func (q *Queue) sync(req uint, desc *v4l2Buffer) error {
	err := q.pool.dev.ioctl(req, unsafe.Pointer(desc))
	runtime.KeepAlive(q)
	return err
}

// Dequeue blocks until the driver returns a buffer (filled for capture,
// consumed for output). The buffer comes back Free. If buffers are pending,
// the oldest one is submitted into the freed slot; if that submission
// fails it stays at the head of the FIFO for the next Enqueue or Drain.
//
// A buffer index the queue never submitted is a PROTOCOL_VIOLATION.
func (q *Queue) Dequeue() (*Buffer, error) {
	if q.pool.released {
		return nil, newError(ErrCodeProtocolViolation, "dequeue", "pool has been released", nil)
	}

	category := q.pool.category
	desc := v4l2Buffer{
		typ:    category.bufType(),
		memory: uint32(q.pool.memory),
	}
	if category.Multiplanar() {
		q.planes = [videoMaxPlanes]v4l2Plane{}
		desc.setPlanes(&q.planes)
		desc.length = videoMaxPlanes
	}

	if err := q.sync(vidiocDqbuf, &desc); err != nil {
		return nil, ioctlError("VIDIOC_DQBUF", err)
	}

	index := int(desc.index)
	buf, ok := q.inFlight[index]
	if !ok {
		return nil, newError(ErrCodeProtocolViolation, "VIDIOC_DQBUF",
			fmt.Sprintf("driver returned buffer %d which is not in flight", index), nil)
	}
	delete(q.inFlight, index)

	if category.Multiplanar() {
		for i, pl := range buf.planes {
			pl.bytesUsed = q.planes[i].bytesused
			pl.dataOffset = q.planes[i].dataOffset
		}
	} else {
		buf.planes[0].bytesUsed = desc.bytesused
	}
	buf.sequence = desc.sequence
	buf.flags = desc.flags
	sec, nsec := desc.timestamp.Unix()
	buf.timestamp = time.Unix(sec, nsec)
	buf.state = BufferFree

	if len(q.pending) > 0 && len(q.inFlight) < q.limit {
		if err := q.submit(q.pending[0]); err != nil {
			q.logger.Warn("Failed to submit pending buffer", "index", q.pending[0].index, "error", err)
		} else {
			q.popPending()
		}
	}

	return buf, nil
}

// Drain submits pending buffers while in-flight slots are free and returns
// how many were submitted.
func (q *Queue) Drain() (int, error) {
	if q.pool.released {
		return 0, newError(ErrCodeProtocolViolation, "drain", "pool has been released", nil)
	}
	n := 0
	for len(q.pending) > 0 && len(q.inFlight) < q.limit {
		if err := q.submit(q.pending[0]); err != nil {
			return n, err
		}
		q.popPending()
		n++
	}
	return n, nil
}

// Reclaim marks every in-flight and pending buffer Free and empties the
// queue. VIDIOC_STREAMOFF returns all queued buffers to user space, so call
// it once the stream has been stopped. It returns the number reclaimed.
func (q *Queue) Reclaim() int {
	n := len(q.inFlight) + len(q.pending)
	for index, buf := range q.inFlight {
		buf.state = BufferFree
		delete(q.inFlight, index)
	}
	for _, buf := range q.pending {
		buf.state = BufferFree
	}
	q.pending = nil
	return n
}

func (q *Queue) popPending() {
	q.pending[0] = nil
	q.pending = q.pending[1:]
}

// Limit returns the in-flight cap.
func (q *Queue) Limit() int {
	return q.limit
}

// InFlightCount returns the number of buffers owned by the driver.
func (q *Queue) InFlightCount() int {
	return len(q.inFlight)
}

// PendingCount returns the length of the pending FIFO.
func (q *Queue) PendingCount() int {
	return len(q.pending)
}

// InFlight returns the submitted buffer indices in ascending order.
func (q *Queue) InFlight() []int {
	out := make([]int, 0, len(q.inFlight))
	for index := range q.inFlight {
		out = append(out, index)
	}
	sort.Ints(out)
	return out
}

// Pending returns the pending buffer indices in submission order.
func (q *Queue) Pending() []int {
	out := make([]int, len(q.pending))
	for i, buf := range q.pending {
		out[i] = buf.index
	}
	return out
}
