//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2)
// streaming I/O API: buffer negotiation, memory mapping and the
// queue/dequeue exchange with the driver.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Sessions
//
// A Session ties the pieces together for one open device node:
//
//	s, err := v4l2.OpenSession("/dev/video0")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	pool, err := s.CreatePool(5)
//	for _, b := range pool.Buffers() {
//	    _ = s.Enqueue(b.Index())
//	}
//	_ = s.StreamOn()
//	index, err := s.Dequeue() // blocks until the driver hands a buffer back
//
// # Components
//
// The lower-level types can be used directly:
//
//   - Device owns the file descriptor.
//   - Resolve picks the BufferCategory from the device capabilities.
//   - Pool requests, queries and maps the buffers (CreatePool / Release).
//   - Queue submits and retrieves buffers, holding back anything over the
//     in-flight limit in a FIFO.
//   - Stream toggles VIDIOC_STREAMON / VIDIOC_STREAMOFF.
//
// # Plane memory
//
// Mapped plane memory never leaves a Plane as a raw slice. Use ReadAt,
// WriteAt or Borrow; all of them fail with ErrPlaneUnmapped once the pool
// has been released.
package v4l2
