// Package devices locates V4L2 device nodes and waits for hotplugged ones.
package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const devRoot = "/dev"

// ResolveDevicePath converts a device name or stable udev id to a node
// path. Absolute paths are returned unchanged; "video0" resolves under
// /dev and "usb-..." or "platform-..." ids through /dev/v4l/by-id and
// /dev/v4l/by-path.
func ResolveDevicePath(device string) (string, error) {
	return resolveDevicePath(devRoot, device)
}

func resolveDevicePath(root, device string) (string, error) {
	if device == "" {
		return "", fmt.Errorf("empty device")
	}
	if filepath.IsAbs(device) {
		return filepath.Clean(device), nil
	}

	var candidates []string
	switch {
	case strings.HasPrefix(device, "usb-"):
		// USB devices usually have a by-id link, fall back to by-path
		candidates = []string{
			filepath.Join(root, "v4l", "by-id", device),
			filepath.Join(root, "v4l", "by-path", device),
		}
	case strings.HasPrefix(device, "platform-"), strings.HasPrefix(device, "pci-"):
		candidates = []string{filepath.Join(root, "v4l", "by-path", device)}
	default:
		candidates = []string{filepath.Join(root, device)}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no device node found for %s", device)
}
