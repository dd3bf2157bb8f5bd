//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"
)

const closedFd = -1

// DefaultOpenFlags opens the node for blocking streaming I/O.
const DefaultOpenFlags = unix.O_RDWR | unix.O_CLOEXEC

// Device owns one open descriptor of a V4L2 device node.
// A closed Device holds the sentinel descriptor -1 and rejects every request.
type Device struct {
	path    string
	fd      int
	cleanup runtime.Cleanup
}

// OpenDevice opens path with the given flags (DefaultOpenFlags if 0).
func OpenDevice(path string, flags int) (*Device, error) {
	if flags == 0 {
		flags = DefaultOpenFlags
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, newError(ErrCodeOpenFailure, "open", path, err)
	}
	d := &Device{path: path, fd: fd}
	// Handles dropped without Close still release the descriptor.
	d.cleanup = runtime.AddCleanup(d, func(fd int) { _ = unix.Close(fd) }, fd)
	return d, nil
}

// Close releases the descriptor. Calling it again is a no-op.
func (d *Device) Close() error {
	if d.fd == closedFd {
		return nil
	}
	d.cleanup.Stop()
	fd := d.fd
	d.fd = closedFd
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("failed to close %s: %w", d.path, err)
	}
	return nil
}

// Fd returns the descriptor, or -1 once closed.
func (d *Device) Fd() int {
	return d.fd
}

// Path returns the device node path.
func (d *Device) Path() string {
	return d.path
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	return d.fd == closedFd
}

func (d *Device) ioctl(req uint, arg unsafe.Pointer) error {
	if d.fd == closedFd {
		return unix.EBADF
	}
	return ioctl(d.fd, req, arg)
}

func (d *Device) mmap(offset int64, length int) ([]byte, error) {
	if d.fd == closedFd {
		return nil, unix.EBADF
	}
	return mapShared(d.fd, offset, length)
}

func (d *Device) munmap(b []byte) error {
	return unmap(b)
}

// FindDevices lists every V4L2 node that supports streaming I/O together
// with the buffer category it resolves to.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir("/sys/class/video4linux")
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	var devices []DeviceInfo
	for _, entry := range entries {
		devicePath := "/dev/" + entry.Name()

		dev, err := OpenDevice(devicePath, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC)
		if err != nil {
			slog.With("component", "linuxav").Debug("failed to open video device", "path", devicePath, "error", err)
			continue
		}
		capability, err := QueryCapability(dev)
		_ = dev.Close()
		if err != nil {
			slog.With("component", "linuxav").Debug("failed to query device capabilities", "path", devicePath, "error", err)
			continue
		}
		if !capability.Streaming() {
			continue
		}

		category, err := ResolveCategory(capability.Effective())
		if err != nil && !errors.Is(err, ErrUnsupportedDevice) {
			return nil, err
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: capability.Card,
			Driver:     capability.Driver,
			BusInfo:    capability.BusInfo,
			Caps:       capability.Effective(),
			Category:   category,
		})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].DevicePath < devices[j].DevicePath })
	return devices, nil
}
