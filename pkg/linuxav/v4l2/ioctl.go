//go:build linux

package v4l2

import (
	"bytes"
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// deviceIO is the kernel boundary: every request the pool, queue and
// stream make goes through it.
type deviceIO interface {
	ioctl(req uint, arg unsafe.Pointer) error
	mmap(offset int64, length int) ([]byte, error)
	munmap(b []byte) error
}

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

// mapShared maps a kernel-offered region of the device.
func mapShared(fd int, offset int64, length int) ([]byte, error) {
	return unix.Mmap(fd, offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// mapAnonymous allocates page-aligned process memory for USERPTR buffers.
func mapAnonymous(length int) ([]byte, error) {
	return unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
}

func unmap(b []byte) error {
	return unix.Munmap(b)
}

// userptr returns the process address of a mapping. Mappings are not
// managed by the Go heap, so the address is stable.
func userptr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func isErrno(err error, errno unix.Errno) bool {
	return errors.Is(err, errno)
}
