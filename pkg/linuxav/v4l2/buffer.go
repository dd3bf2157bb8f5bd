//go:build linux

package v4l2

import (
	"fmt"
	"io"
	"time"
)

// BufferState tracks which side of the kernel boundary owns a buffer.
type BufferState int

// Buffer states.
const (
	BufferFree    BufferState = iota // owned by the application
	BufferQueued                     // submitted to the driver
	BufferPending                    // waiting for an in-flight slot
)

func (s BufferState) String() string {
	switch s {
	case BufferFree:
		return "free"
	case BufferQueued:
		return "queued"
	case BufferPending:
		return "pending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Plane is one mapped memory region of a buffer. The mapping belongs to the
// plane; once released every accessor returns ErrPlaneUnmapped.
type Plane struct {
	mem        []byte
	length     uint32
	offset     uint32
	bytesUsed  uint32
	dataOffset uint32
	release    func([]byte) error
}

// Len returns the size of the mapping in bytes.
func (p *Plane) Len() int {
	return int(p.length)
}

// Mapped reports whether the plane memory is still accessible.
func (p *Plane) Mapped() bool {
	return p.mem != nil
}

// BytesUsed returns the payload size: set by the driver on dequeue for
// capture buffers, by the application for output buffers.
func (p *Plane) BytesUsed() int {
	return int(p.bytesUsed)
}

// DataOffset returns where the payload starts inside the plane.
func (p *Plane) DataOffset() int {
	return int(p.dataOffset)
}

// SetBytesUsed declares how many bytes of an output plane are valid.
func (p *Plane) SetBytesUsed(n int) error {
	if n < 0 || n > int(p.length) {
		return newError(ErrCodeInvalidArgument, "set bytes used",
			fmt.Sprintf("%d out of range for plane of %d bytes", n, p.length), nil)
	}
	p.bytesUsed = uint32(n)
	return nil
}

// ReadAt implements io.ReaderAt over the plane memory.
func (p *Plane) ReadAt(b []byte, off int64) (int, error) {
	if p.mem == nil {
		return 0, ErrPlaneUnmapped
	}
	if off < 0 {
		return 0, newError(ErrCodeInvalidArgument, "read plane", "negative offset", nil)
	}
	if off >= int64(len(p.mem)) {
		return 0, io.EOF
	}
	n := copy(b, p.mem[off:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt over the plane memory.
func (p *Plane) WriteAt(b []byte, off int64) (int, error) {
	if p.mem == nil {
		return 0, ErrPlaneUnmapped
	}
	if off < 0 || off > int64(len(p.mem)) {
		return 0, newError(ErrCodeInvalidArgument, "write plane", fmt.Sprintf("offset %d out of range", off), nil)
	}
	n := copy(p.mem[off:], b)
	if n < len(b) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Borrow runs fn with direct access to the plane memory. The slice is only
// valid inside fn and must not be retained.
func (p *Plane) Borrow(fn func(mem []byte) error) error {
	if p.mem == nil {
		return ErrPlaneUnmapped
	}
	return fn(p.mem)
}

// unmap gives the mapping back and invalidates the plane.
func (p *Plane) unmap() error {
	if p.mem == nil {
		return nil
	}
	mem := p.mem
	p.mem = nil
	if p.release == nil {
		return nil
	}
	return p.release(mem)
}

// Buffer is one entry of a Pool. Its index is stable for the pool's
// lifetime; its state is changed only by the Queue.
type Buffer struct {
	index     int
	planes    []*Plane
	state     BufferState
	sequence  uint32
	flags     uint32
	timestamp time.Time
}

// Index returns the driver-side buffer index.
func (b *Buffer) Index() int {
	return b.index
}

// State returns the current ownership state.
func (b *Buffer) State() BufferState {
	return b.state
}

// NumPlanes returns the number of planes.
func (b *Buffer) NumPlanes() int {
	return len(b.planes)
}

// Plane returns plane i.
func (b *Buffer) Plane(i int) *Plane {
	return b.planes[i]
}

// Planes returns the planes in driver order.
func (b *Buffer) Planes() []*Plane {
	out := make([]*Plane, len(b.planes))
	copy(out, b.planes)
	return out
}

// BytesUsed sums the payload of all planes.
func (b *Buffer) BytesUsed() int {
	total := 0
	for _, p := range b.planes {
		total += p.BytesUsed()
	}
	return total
}

// Sequence returns the frame sequence number of the last dequeue.
func (b *Buffer) Sequence() uint32 {
	return b.sequence
}

// Timestamp returns the driver timestamp of the last dequeue.
func (b *Buffer) Timestamp() time.Time {
	return b.timestamp
}

// Errored reports whether the driver flagged the last payload as corrupt.
func (b *Buffer) Errored() bool {
	return b.flags&v4l2BufFlagError != 0
}

// Last reports whether the driver marked this as the final buffer of the stream.
func (b *Buffer) Last() bool {
	return b.flags&v4l2BufFlagLast != 0
}
