package capture

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/smazurov/vidbuf/pkg/linuxav/v4l2"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultBuffers      = 4
	DefaultMinBuffers   = 2
	DefaultFrameTimeout = 2 * time.Second
)

// Config describes one capture session.
type Config struct {
	// Device is a node path, a node name such as "video0", or a stable
	// udev id resolved through /dev/v4l.
	Device string

	// Buffers is the number requested from the driver. When the driver
	// grants fewer, the runner retries with the granted count as long as
	// it is at least MinBuffers.
	Buffers    int
	MinBuffers int

	// Limit caps the buffers owned by the driver at once; zero means the
	// V4L2 maximum.
	Limit  int
	Memory v4l2.MemoryType

	// Frames to dequeue before stopping; zero runs until the context ends.
	Frames       int
	FrameTimeout time.Duration

	// Wait for the node to appear before opening it. Requires an
	// absolute Device path.
	Wait bool
}

func (c Config) withDefaults() Config {
	if c.Buffers == 0 {
		c.Buffers = DefaultBuffers
	}
	if c.MinBuffers == 0 {
		c.MinBuffers = min(DefaultMinBuffers, c.Buffers)
	}
	if c.FrameTimeout == 0 {
		c.FrameTimeout = DefaultFrameTimeout
	}
	if c.Memory == 0 {
		c.Memory = v4l2.MemoryMMAP
	}
	return c
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Device == "" {
		errs = append(errs, errors.New("device is required"))
	}
	if c.Buffers < 0 || c.Buffers > v4l2.VideoMaxFrame {
		errs = append(errs, fmt.Errorf("buffers must be between 1 and %d, got %d", v4l2.VideoMaxFrame, c.Buffers))
	}
	if c.MinBuffers < 0 || (c.Buffers > 0 && c.MinBuffers > c.Buffers) {
		errs = append(errs, fmt.Errorf("min buffers %d exceeds buffers %d", c.MinBuffers, c.Buffers))
	}
	if c.Limit < 0 || c.Limit > v4l2.VideoMaxFrame {
		errs = append(errs, fmt.Errorf("in-flight limit must be between 0 and %d, got %d", v4l2.VideoMaxFrame, c.Limit))
	}
	if c.Frames < 0 {
		errs = append(errs, fmt.Errorf("frames must not be negative, got %d", c.Frames))
	}
	if c.FrameTimeout < 0 {
		errs = append(errs, fmt.Errorf("frame timeout must not be negative, got %s", c.FrameTimeout))
	}
	if c.Wait && !filepath.IsAbs(c.Device) {
		errs = append(errs, fmt.Errorf("waiting requires an absolute device path, got %q", c.Device))
	}
	return errors.Join(errs...)
}
