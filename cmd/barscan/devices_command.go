package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"barscan/internal/app"
	"barscan/internal/session"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List cameras and show which one scanning would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.buildApp(cmd.Context(), app.Options{Device: device})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			snap := a.Session.Snapshot()
			if len(snap.Devices) == 0 {
				message := snap.Error
				if message == "" {
					message = "No cameras found."
				}
				fmt.Fprintln(out, message)
				return nil
			}
			fmt.Fprintln(out, devicesTable(snap))
			return nil
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "Camera device to prefer (e.g. /dev/video2)")
	return cmd
}

func devicesTable(snap session.Snapshot) string {
	rows := make([][]string, 0, len(snap.Devices))
	for i, dev := range snap.Devices {
		selected := snap.Device != nil && snap.Device.ID == dev.ID
		rows = append(rows, []string{strconv.Itoa(i + 1), dev.ID, dev.Label, yesNo(selected)})
	}
	return renderTable([]string{"#", "Device", "Label", "Selected"}, rows, []columnAlignment{alignRight})
}
