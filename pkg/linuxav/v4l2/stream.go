//go:build linux

package v4l2

import (
	"context"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Stream toggles the streaming state of one buffer category.
type Stream struct {
	dev       deviceIO
	category  BufferCategory
	streaming bool
}

// NewStream returns a controller for dev's resolved category.
func NewStream(dev *Device, category BufferCategory) *Stream {
	return &Stream{dev: dev, category: category}
}

// On issues VIDIOC_STREAMON. A rejection by the driver, including a
// redundant transition, is returned as an IOCTL_FAILURE.
func (s *Stream) On() error {
	typ := s.category.bufType()
	if err := s.dev.ioctl(vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return ioctlError("VIDIOC_STREAMON", err)
	}
	s.streaming = true
	return nil
}

// Off issues VIDIOC_STREAMOFF. The driver returns every queued buffer to
// the dequeued state.
func (s *Stream) Off() error {
	typ := s.category.bufType()
	if err := s.dev.ioctl(vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return ioctlError("VIDIOC_STREAMOFF", err)
	}
	s.streaming = false
	return nil
}

// Streaming reports the state after the last successful On or Off.
func (s *Stream) Streaming() bool {
	return s.streaming
}

// pollSlice bounds a single poll so context cancellation is noticed.
const pollSlice = 100 * time.Millisecond

// WaitReady blocks until the device has a buffer ready to dequeue or ctx
// ends. Capture categories wait for POLLIN, output categories for POLLOUT.
func WaitReady(ctx context.Context, dev *Device, category BufferCategory) error {
	events := int16(unix.POLLIN)
	if category.Output() {
		events = unix.POLLOUT
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dev.Closed() {
			return ioctlError("poll", unix.EBADF)
		}

		timeout := pollSlice
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		if timeout < time.Millisecond {
			timeout = time.Millisecond
		}

		fds := []unix.PollFd{{Fd: int32(dev.Fd()), Events: events}}
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err != nil {
			if isErrno(err, unix.EINTR) {
				continue
			}
			return ioctlError("poll", err)
		}
		if n > 0 {
			// POLLERR means the queue is not streaming; the dequeue reports why.
			return nil
		}
	}
}
