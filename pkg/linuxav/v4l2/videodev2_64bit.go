//go:build linux && (amd64 || arm64)

package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Compile-time struct size assertions.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2RequestBuffers{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(v4l2Timecode{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Plane{})]byte{}
	_ [88]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants for 64-bit architectures.
const (
	vidiocQuerycap  = 0x80685600
	vidiocReqbufs   = 0xc0145608
	vidiocQuerybuf  = 0xc0585609
	vidiocQbuf      = 0xc058560f
	vidiocDqbuf     = 0xc0585611
	vidiocStreamon  = 0x40045612
	vidiocStreamoff = 0x40045613
)

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte  // offset 0
	card         [32]byte  // offset 16
	busInfo      [32]byte  // offset 48
	version      uint32    // offset 80
	capabilities uint32    // offset 84
	deviceCaps   uint32    // offset 88
	reserved     [3]uint32 // offset 92
}

// v4l2RequestBuffers has size 20 bytes.
type v4l2RequestBuffers struct {
	count        uint32   // offset 0
	typ          uint32   // offset 4
	memory       uint32   // offset 8
	capabilities uint32   // offset 12
	flags        uint8    // offset 16
	reserved     [3]uint8 // offset 17
}

// v4l2Timecode has size 16 bytes.
type v4l2Timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

// v4l2Plane has size 64 bytes. m is the mem_offset/userptr/fd union.
type v4l2Plane struct {
	bytesused  uint32     // offset 0
	length     uint32     // offset 4
	m          uint64     // offset 8
	dataOffset uint32     // offset 16
	reserved   [11]uint32 // offset 20
}

// v4l2Buffer has size 88 bytes. m is the offset/userptr/planes/fd union.
type v4l2Buffer struct {
	index     uint32       // offset 0
	typ       uint32       // offset 4
	bytesused uint32       // offset 8
	flags     uint32       // offset 12
	field     uint32       // offset 16
	_         [4]byte      // padding
	timestamp unix.Timeval // offset 24
	timecode  v4l2Timecode // offset 40
	sequence  uint32       // offset 56
	memory    uint32       // offset 60
	m         uint64       // offset 64
	length    uint32       // offset 72
	reserved2 uint32       // offset 76
	requestFd int32        // offset 80
	_         [4]byte      // padding to 88
}

// setPlanes points the union at a plane array. The array must live on the
// heap for the duration of the ioctl.
func (b *v4l2Buffer) setPlanes(p *[videoMaxPlanes]v4l2Plane) {
	b.m = uint64(uintptr(unsafe.Pointer(p)))
}

// offset reads the union as a mem_offset.
func (b *v4l2Buffer) offset() uint32 { return uint32(b.m) }

// setUserptr stores a process address in the union.
func (b *v4l2Buffer) setUserptr(addr uintptr) { b.m = uint64(addr) }

// offset reads the plane union as a mem_offset.
func (p *v4l2Plane) offset() uint32 { return uint32(p.m) }

// setUserptr stores a process address in the plane union.
func (p *v4l2Plane) setUserptr(addr uintptr) { p.m = uint64(addr) }
