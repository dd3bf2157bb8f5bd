//go:build linux

package v4l2

import (
	"fmt"
	"unsafe"
)

// Capability groups. Memory-to-memory devices are both capture and output.
const (
	capsVideoCapture = v4l2CapVideoCapture | v4l2CapVideoCaptureMplane | v4l2CapVideoM2M | v4l2CapVideoM2MMplane
	capsVideoOutput  = v4l2CapVideoOutput | v4l2CapVideoOutputMplane | v4l2CapVideoM2M | v4l2CapVideoM2MMplane

	capsCaptureMplane = v4l2CapVideoCaptureMplane | v4l2CapVideoM2MMplane
	capsOutputMplane  = v4l2CapVideoOutputMplane | v4l2CapVideoM2MMplane
)

// categoryRule pairs a capability predicate with the category it selects.
type categoryRule struct {
	category BufferCategory
	match    func(caps uint32) bool
}

// categoryRules is evaluated top to bottom; the first match wins.
// Video categories precede meta ones, capture precedes output, and
// multi-planar variants precede single-planar ones.
var categoryRules = []categoryRule{
	{CaptureMulti, func(c uint32) bool { return c&capsCaptureMplane != 0 }},
	{CaptureSingle, func(c uint32) bool { return c&capsVideoCapture != 0 }},
	{OutputMulti, func(c uint32) bool { return c&capsOutputMplane != 0 }},
	{OutputSingle, func(c uint32) bool { return c&capsVideoOutput != 0 }},
	{MetaCapture, func(c uint32) bool { return c&v4l2CapMetaCapture != 0 }},
	{MetaOutput, func(c uint32) bool { return c&v4l2CapMetaOutput != 0 }},
}

// ResolveCategory picks the buffer category for an effective capability mask.
func ResolveCategory(caps uint32) (BufferCategory, error) {
	for _, rule := range categoryRules {
		if rule.match(caps) {
			return rule.category, nil
		}
	}
	return CategoryUnknown, newError(ErrCodeUnsupportedDevice, "resolve category",
		fmt.Sprintf("no buffer category matches capabilities 0x%08x", caps), nil)
}

// QueryCapability issues VIDIOC_QUERYCAP.
func QueryCapability(dev *Device) (Capability, error) {
	return queryCapability(dev)
}

func queryCapability(dev deviceIO) (Capability, error) {
	raw := v4l2Capability{}
	if err := dev.ioctl(vidiocQuerycap, unsafe.Pointer(&raw)); err != nil {
		return Capability{}, ioctlError("VIDIOC_QUERYCAP", err)
	}
	return Capability{
		Driver:       cstr(raw.driver[:]),
		Card:         cstr(raw.card[:]),
		BusInfo:      cstr(raw.busInfo[:]),
		Version:      raw.version,
		Capabilities: raw.capabilities,
		DeviceCaps:   raw.deviceCaps,
	}, nil
}

// Resolve queries the device once and resolves its buffer category.
// Callers keep the result for the lifetime of the handle.
func Resolve(dev *Device) (Capability, BufferCategory, error) {
	return resolve(dev)
}

func resolve(dev deviceIO) (Capability, BufferCategory, error) {
	capability, err := queryCapability(dev)
	if err != nil {
		return Capability{}, CategoryUnknown, err
	}
	category, err := ResolveCategory(capability.Effective())
	if err != nil {
		return capability, CategoryUnknown, err
	}
	return capability, category, nil
}

var capabilityNames = []struct {
	flag uint32
	name string
}{
	{v4l2CapVideoCapture, "video-capture"},
	{v4l2CapVideoOutput, "video-output"},
	{v4l2CapVideoCaptureMplane, "video-capture-mplane"},
	{v4l2CapVideoOutputMplane, "video-output-mplane"},
	{v4l2CapVideoM2MMplane, "video-m2m-mplane"},
	{v4l2CapVideoM2M, "video-m2m"},
	{v4l2CapMetaCapture, "meta-capture"},
	{v4l2CapStreaming, "streaming"},
	{v4l2CapMetaOutput, "meta-output"},
	{v4l2CapDeviceCaps, "device-caps"},
}

// CapabilityNames lists the known flags set in caps, lowest bit first.
func CapabilityNames(caps uint32) []string {
	var names []string
	for _, c := range capabilityNames {
		if caps&c.flag != 0 {
			names = append(names, c.name)
		}
	}
	return names
}
