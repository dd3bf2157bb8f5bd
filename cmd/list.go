package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smazurov/vidbuf/pkg/linuxav/v4l2"
	"github.com/spf13/cobra"
)

// CreateListCmd creates the list command.
func CreateListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List V4L2 devices that support streaming I/O",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			found, err := v4l2.FindDevices()
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(listEntries(found))
			}
			writeDeviceList(cmd.OutOrStdout(), found)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the devices as JSON")
	return cmd
}

type listEntry struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Driver   string `json:"driver"`
	BusInfo  string `json:"bus_info"`
	Category string `json:"category"`
}

func listEntries(found []v4l2.DeviceInfo) []listEntry {
	entries := make([]listEntry, 0, len(found))
	for _, d := range found {
		entries = append(entries, listEntry{
			Path:     d.DevicePath,
			Name:     d.DeviceName,
			Driver:   d.Driver,
			BusInfo:  d.BusInfo,
			Category: d.Category.String(),
		})
	}
	return entries
}

func writeDeviceList(w io.Writer, found []v4l2.DeviceInfo) {
	if len(found) == 0 {
		fmt.Fprintln(w, "No V4L2 devices found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tDRIVER\tCATEGORY\tBUS")
	for _, d := range found {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.DevicePath, d.DeviceName, d.Driver, d.Category, d.BusInfo)
	}
	_ = tw.Flush()
}
