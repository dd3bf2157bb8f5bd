//go:build linux

package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// fakeDevice emulates the driver side of the buffer ioctls on the real ABI
// structs, so the encoding done by the pool and queue is exercised.
type fakeDevice struct {
	caps       uint32
	deviceCaps uint32
	driver     string

	grant        int      // overrides the granted count when > 0
	bufferLength uint32   // single-planar buffer size
	planeLengths []uint32 // multi-planar layout
	reportPlanes int      // overrides the reported plane count when > 0

	allocated int
	reqbufs   []uint32

	mmapCalls  int
	failMmapAt int // 1-based mmap call that fails
	live       map[*byte]int

	queued    []uint32
	submitted []uint32
	lastQbuf  v4l2Buffer
	lastPlane []v4l2Plane
	qbufErr   error
	dqbufErr  error
	dqIndex   *uint32
	sequence  uint32

	streamTypes []uint32
	streamErr   error
	streaming   bool
}

func newFakeDevice(caps uint32) *fakeDevice {
	return &fakeDevice{
		caps:         caps,
		driver:       "fake",
		bufferLength: 4096,
		planeLengths: []uint32{4096, 2048},
		live:         make(map[*byte]int),
	}
}

func planesOf(b *v4l2Buffer) *[videoMaxPlanes]v4l2Plane {
	return (*[videoMaxPlanes]v4l2Plane)(unsafe.Pointer(uintptr(b.m)))
}

func isMplane(typ uint32) bool {
	return typ == v4l2BufTypeVideoCaptureMplane || typ == v4l2BufTypeVideoOutputMplane
}

func (f *fakeDevice) ioctl(req uint, arg unsafe.Pointer) error {
	switch req {
	case vidiocQuerycap:
		c := (*v4l2Capability)(arg)
		copy(c.driver[:], f.driver)
		copy(c.card[:], "Fake Camera")
		copy(c.busInfo[:], "platform:fake")
		c.version = 6<<16 | 1<<8
		c.capabilities = f.caps
		c.deviceCaps = f.deviceCaps
		return nil

	case vidiocReqbufs:
		r := (*v4l2RequestBuffers)(arg)
		f.reqbufs = append(f.reqbufs, r.count)
		if r.count == 0 {
			f.allocated = 0
			return nil
		}
		granted := int(r.count)
		if f.grant > 0 {
			granted = f.grant
		}
		r.count = uint32(granted)
		f.allocated = granted
		return nil

	case vidiocQuerybuf:
		b := (*v4l2Buffer)(arg)
		if int(b.index) >= f.allocated {
			return unix.EINVAL
		}
		if !isMplane(b.typ) {
			b.length = f.bufferLength
			b.setUserptr(uintptr(b.index) << 20)
			return nil
		}
		planes := planesOf(b)
		n := len(f.planeLengths)
		if f.reportPlanes > 0 {
			n = f.reportPlanes
		}
		if f.reportPlanes < 0 {
			n = 0
		}
		b.length = uint32(n)
		for i := 0; i < n && i < videoMaxPlanes && i < len(f.planeLengths); i++ {
			planes[i].length = f.planeLengths[i]
			planes[i].setUserptr(uintptr(b.index)<<20 | uintptr(i)<<16)
		}
		return nil

	case vidiocQbuf:
		if f.qbufErr != nil {
			return f.qbufErr
		}
		b := (*v4l2Buffer)(arg)
		f.lastQbuf = *b
		f.lastPlane = nil
		if isMplane(b.typ) {
			planes := planesOf(b)
			f.lastPlane = append([]v4l2Plane(nil), planes[:b.length]...)
		}
		f.queued = append(f.queued, b.index)
		f.submitted = append(f.submitted, b.index)
		return nil

	case vidiocDqbuf:
		if f.dqbufErr != nil {
			return f.dqbufErr
		}
		if len(f.queued) == 0 {
			return unix.EAGAIN
		}
		b := (*v4l2Buffer)(arg)
		b.index = f.queued[0]
		f.queued = f.queued[1:]
		if f.dqIndex != nil {
			b.index = *f.dqIndex
		}
		f.sequence++
		b.sequence = f.sequence
		b.timestamp = unix.NsecToTimeval(int64(f.sequence) * 1e6)
		if isMplane(b.typ) {
			planes := planesOf(b)
			for i, l := range f.planeLengths {
				planes[i].bytesused = l / 2
			}
			b.length = uint32(len(f.planeLengths))
		} else {
			b.bytesused = f.bufferLength / 2
		}
		return nil

	case vidiocStreamon, vidiocStreamoff:
		typ := *(*uint32)(arg)
		f.streamTypes = append(f.streamTypes, typ)
		if f.streamErr != nil {
			return f.streamErr
		}
		if req == vidiocStreamoff {
			f.streaming = false
			f.queued = nil
		} else {
			f.streaming = true
		}
		return nil
	}
	return unix.ENOTTY
}

func (f *fakeDevice) mmap(offset int64, length int) ([]byte, error) {
	f.mmapCalls++
	if f.failMmapAt > 0 && f.mmapCalls == f.failMmapAt {
		return nil, unix.ENOMEM
	}
	b := make([]byte, length)
	f.live[&b[0]] = length
	return b, nil
}

func (f *fakeDevice) munmap(b []byte) error {
	if _, ok := f.live[&b[0]]; !ok {
		return unix.EINVAL
	}
	delete(f.live, &b[0])
	return nil
}

// newTestPool builds a pool of count buffers on a fresh fake device.
func newTestPool(caps uint32, category BufferCategory, count int) (*fakeDevice, *Pool, error) {
	f := newFakeDevice(caps)
	p, err := createPool(f, category, MemoryMMAP, count)
	return f, p, err
}
