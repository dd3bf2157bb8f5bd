//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"
)

// Pool is the fixed set of buffers negotiated with the driver for one
// category and memory type. It owns every plane mapping until Release.
type Pool struct {
	dev      deviceIO
	category BufferCategory
	memory   MemoryType
	buffers  []*Buffer
	released bool
	logger   *slog.Logger

	// scratch is handed to the kernel by address, so it lives inside the
	// heap-allocated pool.
	scratch [videoMaxPlanes]v4l2Plane
}

// PoolOption configures CreatePool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger used for pool lifecycle messages.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// CreatePool requests count buffers, queries their plane layout and maps
// every plane. On any failure everything done so far is undone before the
// error is returned.
func CreatePool(dev *Device, category BufferCategory, memory MemoryType, count int, opts ...PoolOption) (*Pool, error) {
	return createPool(dev, category, memory, count, opts...)
}

func createPool(dev deviceIO, category BufferCategory, memory MemoryType, count int, opts ...PoolOption) (*Pool, error) {
	if count <= 0 {
		return nil, newError(ErrCodeInvalidArgument, "create pool", fmt.Sprintf("buffer count %d", count), nil)
	}
	if category.bufType() == 0 {
		return nil, newError(ErrCodeInvalidArgument, "create pool", "unknown buffer category", nil)
	}
	if memory != MemoryMMAP && memory != MemoryUserPtr {
		return nil, newError(ErrCodeInvalidArgument, "create pool", "unsupported memory type "+memory.String(), nil)
	}

	p := &Pool{
		dev:      dev,
		category: category,
		memory:   memory,
		logger:   slog.Default().With("component", "linuxav"),
	}
	for _, opt := range opts {
		opt(p)
	}

	granted, err := p.request(uint32(count))
	if err != nil {
		return nil, err
	}
	if granted < count {
		p.freeRequest()
		return nil, newError(ErrCodeInsufficientBuffers, "VIDIOC_REQBUFS", "",
			&GrantError{Requested: count, Granted: granted})
	}

	p.buffers = make([]*Buffer, 0, granted)
	for i := 0; i < granted; i++ {
		buf, err := p.setupBuffer(i)
		if err != nil {
			p.rollback()
			return nil, err
		}
		p.buffers = append(p.buffers, buf)
	}

	p.logger.Debug("Buffer pool created",
		"category", category.String(), "memory", memory.String(),
		"requested", count, "granted", granted)
	return p, nil
}

// request issues VIDIOC_REQBUFS and returns the granted count.
func (p *Pool) request(count uint32) (int, error) {
	req := v4l2RequestBuffers{
		count:  count,
		typ:    p.category.bufType(),
		memory: uint32(p.memory),
	}
	if err := p.dev.ioctl(vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, ioctlError("VIDIOC_REQBUFS", err)
	}
	return int(req.count), nil
}

// freeRequest asks the driver to drop the buffer allocation (count = 0).
func (p *Pool) freeRequest() error {
	_, err := p.request(0)
	return err
}

// setupBuffer queries buffer i and maps its planes.
func (p *Pool) setupBuffer(index int) (*Buffer, error) {
	layout, err := p.query(index)
	if err != nil {
		return nil, err
	}

	buf := &Buffer{index: index, state: BufferFree}
	for n, pl := range layout {
		if err := p.mapPlane(pl); err != nil {
			for _, done := range buf.planes {
				_ = done.unmap()
			}
			return nil, newError(ErrCodeMappingFailure, "mmap",
				fmt.Sprintf("buffer %d plane %d (%d bytes)", index, n, pl.length), err)
		}
		buf.planes = append(buf.planes, pl)
	}
	return buf, nil
}

// query issues VIDIOC_QUERYBUF and returns unmapped planes describing the layout.
func (p *Pool) query(index int) ([]*Plane, error) {
	desc := v4l2Buffer{
		index:  uint32(index),
		typ:    p.category.bufType(),
		memory: uint32(p.memory),
	}
	if p.category.Multiplanar() {
		p.scratch = [videoMaxPlanes]v4l2Plane{}
		desc.setPlanes(&p.scratch)
		desc.length = videoMaxPlanes
	}

	err := p.dev.ioctl(vidiocQuerybuf, unsafe.Pointer(&desc))
	runtime.KeepAlive(p)
	if err != nil {
		return nil, ioctlError(fmt.Sprintf("VIDIOC_QUERYBUF %d", index), err)
	}

	if !p.category.Multiplanar() {
		return []*Plane{{length: desc.length, offset: desc.offset()}}, nil
	}

	count := int(desc.length)
	if count == 0 || count > videoMaxPlanes {
		return nil, newError(ErrCodeProtocolViolation, "VIDIOC_QUERYBUF",
			fmt.Sprintf("buffer %d reports %d planes (max %d)", index, count, videoMaxPlanes), nil)
	}
	planes := make([]*Plane, count)
	for i := range planes {
		planes[i] = &Plane{length: p.scratch[i].length, offset: p.scratch[i].offset()}
	}
	return planes, nil
}

func (p *Pool) mapPlane(pl *Plane) error {
	var (
		mem []byte
		err error
	)
	switch p.memory {
	case MemoryUserPtr:
		mem, err = mapAnonymous(int(pl.length))
		pl.release = unmap
	default:
		mem, err = p.dev.mmap(int64(pl.offset), int(pl.length))
		pl.release = p.dev.munmap
	}
	if err != nil {
		return err
	}
	pl.mem = mem
	return nil
}

// rollback unmaps every plane created so far and frees the request.
func (p *Pool) rollback() {
	for i := len(p.buffers) - 1; i >= 0; i-- {
		for _, pl := range p.buffers[i].planes {
			_ = pl.unmap()
		}
	}
	p.buffers = nil
	if err := p.freeRequest(); err != nil {
		p.logger.Warn("Failed to free buffer request during rollback", "error", err)
	}
}

// Release unmaps every plane and frees the buffers on the driver side.
// Streaming must already be off. Releasing twice is a no-op.
func (p *Pool) Release() error {
	if p.released {
		return nil
	}
	p.released = true

	var errs []error
	for i := len(p.buffers) - 1; i >= 0; i-- {
		for _, pl := range p.buffers[i].planes {
			if err := pl.unmap(); err != nil {
				errs = append(errs, newError(ErrCodeMappingFailure, "munmap",
					fmt.Sprintf("buffer %d", p.buffers[i].index), err))
			}
		}
	}
	if err := p.freeRequest(); err != nil {
		errs = append(errs, err)
	}

	p.logger.Debug("Buffer pool released", "buffers", len(p.buffers), "errors", len(errs))
	return errors.Join(errs...)
}

// Released reports whether Release has been called.
func (p *Pool) Released() bool {
	return p.released
}

// Len returns the number of buffers in the pool.
func (p *Pool) Len() int {
	return len(p.buffers)
}

// Category returns the buffer category of every buffer in the pool.
func (p *Pool) Category() BufferCategory {
	return p.category
}

// Memory returns the memory type of every buffer in the pool.
func (p *Pool) Memory() MemoryType {
	return p.memory
}

// Buffer returns the buffer with the given index.
func (p *Pool) Buffer(index int) (*Buffer, error) {
	if p.released {
		return nil, newError(ErrCodeProtocolViolation, "lookup buffer", "pool has been released", nil)
	}
	if index < 0 || index >= len(p.buffers) {
		return nil, newError(ErrCodeInvalidArgument, "lookup buffer",
			fmt.Sprintf("index %d outside pool of %d", index, len(p.buffers)), nil)
	}
	return p.buffers[index], nil
}

// Buffers returns all buffers ordered by index, or nil once released.
func (p *Pool) Buffers() []*Buffer {
	if p.released {
		return nil
	}
	out := make([]*Buffer, len(p.buffers))
	copy(out, p.buffers)
	return out
}
