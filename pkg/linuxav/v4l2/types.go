//go:build linux

package v4l2

import "fmt"

// Driver-wide limits from videodev2.h.
const (
	// VideoMaxFrame is the number of buffers videobuf2 accepts in flight
	// at once (VIDEO_MAX_FRAME).
	VideoMaxFrame = 32
	// VideoMaxPlanes bounds the planes of a multi-planar buffer.
	VideoMaxPlanes = videoMaxPlanes

	videoMaxPlanes = 8
)

// Capability flags.
const (
	v4l2CapVideoCapture       = 0x00000001
	v4l2CapVideoOutput        = 0x00000002
	v4l2CapVideoCaptureMplane = 0x00001000
	v4l2CapVideoOutputMplane  = 0x00002000
	v4l2CapVideoM2MMplane     = 0x00004000
	v4l2CapVideoM2M           = 0x00008000
	v4l2CapMetaCapture        = 0x00800000
	v4l2CapStreaming          = 0x04000000
	v4l2CapMetaOutput         = 0x08000000
	v4l2CapDeviceCaps         = 0x80000000
)

// Buffer types.
const (
	v4l2BufTypeVideoCapture       = 1
	v4l2BufTypeVideoOutput        = 2
	v4l2BufTypeVideoCaptureMplane = 9
	v4l2BufTypeVideoOutputMplane  = 10
	v4l2BufTypeMetaCapture        = 13
	v4l2BufTypeMetaOutput         = 14
)

// Memory types.
const (
	v4l2MemoryMMAP    = 1
	v4l2MemoryUserPtr = 2
	v4l2MemoryDMABuf  = 4
)

// Buffer flags reported by VIDIOC_DQBUF.
const (
	v4l2BufFlagError = 0x00000040
	v4l2BufFlagLast  = 0x00100000
)

// BufferCategory is the buffer type a device's pool is configured for.
type BufferCategory int

// Buffer categories.
const (
	CategoryUnknown BufferCategory = iota
	CaptureSingle
	CaptureMulti
	OutputSingle
	OutputMulti
	MetaCapture
	MetaOutput
)

// String returns a short name for the category.
func (c BufferCategory) String() string {
	switch c {
	case CaptureSingle:
		return "capture"
	case CaptureMulti:
		return "capture-mplane"
	case OutputSingle:
		return "output"
	case OutputMulti:
		return "output-mplane"
	case MetaCapture:
		return "meta-capture"
	case MetaOutput:
		return "meta-output"
	default:
		return "unknown"
	}
}

// Multiplanar reports whether buffers of this category carry a plane array.
func (c BufferCategory) Multiplanar() bool {
	return c == CaptureMulti || c == OutputMulti
}

// Output reports whether the application produces the payload.
func (c BufferCategory) Output() bool {
	return c == OutputSingle || c == OutputMulti || c == MetaOutput
}

// bufType maps the category to its V4L2_BUF_TYPE_* value.
func (c BufferCategory) bufType() uint32 {
	switch c {
	case CaptureSingle:
		return v4l2BufTypeVideoCapture
	case CaptureMulti:
		return v4l2BufTypeVideoCaptureMplane
	case OutputSingle:
		return v4l2BufTypeVideoOutput
	case OutputMulti:
		return v4l2BufTypeVideoOutputMplane
	case MetaCapture:
		return v4l2BufTypeMetaCapture
	case MetaOutput:
		return v4l2BufTypeMetaOutput
	default:
		return 0
	}
}

// MemoryType is the V4L2 memory model shared by every buffer of a pool.
type MemoryType uint32

// Supported memory types.
const (
	MemoryMMAP    MemoryType = v4l2MemoryMMAP
	MemoryUserPtr MemoryType = v4l2MemoryUserPtr
)

// String returns the lower-case name used in configuration files.
func (m MemoryType) String() string {
	switch m {
	case MemoryMMAP:
		return "mmap"
	case MemoryUserPtr:
		return "userptr"
	case v4l2MemoryDMABuf:
		return "dmabuf"
	default:
		return fmt.Sprintf("memory(%d)", uint32(m))
	}
}

// ParseMemoryType parses "mmap" or "userptr".
func ParseMemoryType(s string) (MemoryType, error) {
	switch s {
	case "mmap", "":
		return MemoryMMAP, nil
	case "userptr":
		return MemoryUserPtr, nil
	default:
		return 0, newError(ErrCodeInvalidArgument, "parse memory", fmt.Sprintf("unknown memory type %q", s), nil)
	}
}

// Capability is the decoded result of VIDIOC_QUERYCAP.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
}

// Effective returns the capabilities of this particular node: the device
// caps when the driver reports them, the physical device caps otherwise.
func (c Capability) Effective() uint32 {
	if c.Capabilities&v4l2CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// Streaming reports whether the node supports streaming I/O.
func (c Capability) Streaming() bool {
	return c.Effective()&v4l2CapStreaming != 0
}

// VersionString formats the kernel version the driver was built for.
func (c Capability) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", byte(c.Version>>16), byte(c.Version>>8), byte(c.Version))
}

// DeviceInfo contains information about a V4L2 device node.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	Driver     string
	BusInfo    string
	Caps       uint32
	Category   BufferCategory
}
