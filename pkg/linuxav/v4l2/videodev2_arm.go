//go:build linux && arm && !arm64

package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Compile-time struct size assertions for 32-bit ARM.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2RequestBuffers{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(v4l2Timecode{})]byte{}
	_ [60]byte  = [unsafe.Sizeof(v4l2Plane{})]byte{}
	_ [68]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants for 32-bit ARM.
// The buffer ioctls use the time32 layout of v4l2_buffer (68 bytes), which
// matches Go's 8-byte unix.Timeval on this architecture.
const (
	vidiocQuerycap  = 0x80685600
	vidiocReqbufs   = 0xc0145608
	vidiocQuerybuf  = 0xc0445609
	vidiocQbuf      = 0xc044560f
	vidiocDqbuf     = 0xc0445611
	vidiocStreamon  = 0x40045612
	vidiocStreamoff = 0x40045613
)

// v4l2Capability - size 104 bytes (same as 64-bit)
type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

// v4l2RequestBuffers - size 20 bytes (same as 64-bit)
type v4l2RequestBuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

// v4l2Timecode - size 16 bytes
type v4l2Timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

// v4l2Plane - size 60 bytes, the union is a single word on 32-bit
type v4l2Plane struct {
	bytesused  uint32
	length     uint32
	m          uint32
	dataOffset uint32
	reserved   [11]uint32
}

// v4l2Buffer - size 68 bytes
type v4l2Buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	timestamp unix.Timeval
	timecode  v4l2Timecode
	sequence  uint32
	memory    uint32
	m         uint32
	length    uint32
	reserved2 uint32
	requestFd int32
}

func (b *v4l2Buffer) setPlanes(p *[videoMaxPlanes]v4l2Plane) {
	b.m = uint32(uintptr(unsafe.Pointer(p)))
}

func (b *v4l2Buffer) offset() uint32 { return b.m }

func (b *v4l2Buffer) setUserptr(addr uintptr) { b.m = uint32(addr) }

func (p *v4l2Plane) offset() uint32 { return p.m }

func (p *v4l2Plane) setUserptr(addr uintptr) { p.m = uint32(addr) }
