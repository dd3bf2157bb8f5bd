package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/smazurov/vidbuf/internal/devices"
	"github.com/smazurov/vidbuf/internal/logging"
	"github.com/smazurov/vidbuf/pkg/linuxav/v4l2"
	"github.com/spf13/cobra"
)

// ProbeReport is what probe prints for one device.
type ProbeReport struct {
	Path         string      `json:"path"`
	Driver       string      `json:"driver"`
	Card         string      `json:"card"`
	BusInfo      string      `json:"bus_info"`
	Version      string      `json:"version"`
	Capabilities []string    `json:"capabilities"`
	DeviceCaps   []string    `json:"device_caps,omitempty"`
	Category     string      `json:"category"`
	Streaming    bool        `json:"streaming"`
	Pool         *PoolReport `json:"pool,omitempty"`
}

// PoolReport describes a trial allocation.
type PoolReport struct {
	Memory    string  `json:"memory"`
	Requested int     `json:"requested"`
	Granted   int     `json:"granted"`
	Planes    [][]int `json:"planes"`
}

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var asJSON bool
	var allocate int
	var memory string

	cmd := &cobra.Command{
		Use:   "probe <device>",
		Short: "Show device capabilities and buffer category",
		Long: `Queries VIDIOC_QUERYCAP on the device and prints its capabilities together with the buffer ` +
			`category vidbuf would use. With --allocate the command also negotiates a buffer pool, ` +
			`reports the granted count and plane sizes, and releases it again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := devices.ResolveDevicePath(args[0])
			if err != nil {
				return err
			}
			mem, err := v4l2.ParseMemoryType(memory)
			if err != nil {
				return err
			}

			report, err := probe(path, allocate, mem)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			writeProbeReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().IntVar(&allocate, "allocate", 0, "Negotiate this many buffers and report the grant")
	cmd.Flags().StringVar(&memory, "memory", "mmap", "Memory model for --allocate (mmap, userptr)")
	return cmd
}

func probe(path string, allocate int, memory v4l2.MemoryType) (*ProbeReport, error) {
	s, err := v4l2.OpenSession(path, v4l2.WithMemory(memory), v4l2.WithLogger(logging.GetLogger("linuxav")))
	if err != nil {
		return nil, err
	}
	defer s.Close()

	report := newProbeReport(path, s.Capability(), s.Category())
	if allocate <= 0 {
		return report, nil
	}

	pool, err := s.CreatePool(allocate)
	if err != nil {
		return nil, err
	}
	pr := &PoolReport{Memory: memory.String(), Requested: allocate, Granted: pool.Len()}
	for _, buf := range pool.Buffers() {
		lengths := make([]int, 0, buf.NumPlanes())
		for _, pl := range buf.Planes() {
			lengths = append(lengths, pl.Len())
		}
		pr.Planes = append(pr.Planes, lengths)
	}
	report.Pool = pr
	return report, s.ReleasePool()
}

func newProbeReport(path string, c v4l2.Capability, category v4l2.BufferCategory) *ProbeReport {
	r := &ProbeReport{
		Path:         path,
		Driver:       c.Driver,
		Card:         c.Card,
		BusInfo:      c.BusInfo,
		Version:      c.VersionString(),
		Capabilities: v4l2.CapabilityNames(c.Capabilities),
		Category:     category.String(),
		Streaming:    c.Streaming(),
	}
	if c.Effective() != c.Capabilities {
		r.DeviceCaps = v4l2.CapabilityNames(c.DeviceCaps)
	}
	return r
}

func writeProbeReport(w io.Writer, r *ProbeReport) {
	fmt.Fprintf(w, "Device:       %s\n", r.Path)
	fmt.Fprintf(w, "Card:         %s\n", r.Card)
	fmt.Fprintf(w, "Driver:       %s (%s)\n", r.Driver, r.Version)
	fmt.Fprintf(w, "Bus:          %s\n", r.BusInfo)
	fmt.Fprintf(w, "Capabilities: %s\n", strings.Join(r.Capabilities, ", "))
	if len(r.DeviceCaps) > 0 {
		fmt.Fprintf(w, "Device caps:  %s\n", strings.Join(r.DeviceCaps, ", "))
	}
	fmt.Fprintf(w, "Category:     %s\n", r.Category)
	fmt.Fprintf(w, "Streaming:    %t\n", r.Streaming)
	if r.Pool == nil {
		return
	}
	fmt.Fprintf(w, "Pool:         %d of %d %s buffers\n", r.Pool.Granted, r.Pool.Requested, r.Pool.Memory)
	for i, planes := range r.Pool.Planes {
		sizes := make([]string, len(planes))
		for j, n := range planes {
			sizes[j] = fmt.Sprint(n)
		}
		fmt.Fprintf(w, "  buffer %d:   %s bytes\n", i, strings.Join(sizes, " + "))
	}
}
