package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Strob0t/lifelog/internal/adapter/malgo"
	"github.com/Strob0t/lifelog/internal/capture"
)

func newDevicesCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices and their native formats",
		Long: `List the capture devices the audio backend sees. Use a device's ID or
name as capture.device in the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := listDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No input devices found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "DEFAULT\tNAME\tID\tFORMATS")
			for i := range devices {
				d := &devices[i]
				def := ""
				if d.IsDefault {
					def = "*"
				}
				formats := make([]string, 0, len(d.Formats))
				for _, f := range d.Formats {
					formats = append(formats, f.String())
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", def, d.Name, d.ID, strings.Join(formats, ", "))
			}
			return w.Flush()
		},
	}
}

func listDevices() ([]capture.DeviceInfo, error) {
	backend, err := malgo.New()
	if err != nil {
		return nil, fmt.Errorf("audio backend: %w", err)
	}
	defer func() { _ = backend.Close() }()
	devices, err := backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}
