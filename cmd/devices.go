package cmd

import (
	"fmt"

	"github.com/ColonelBlimp/cwkeyer/internal/audio"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices for --device",
	RunE: func(cmd *cobra.Command, args []string) error {
		capture := audio.New(audio.DefaultConfig())
		if err := capture.Init(); err != nil {
			return err
		}
		defer capture.Close()

		devices, err := capture.ListDevices()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(devices) == 0 {
			fmt.Fprintln(out, "no capture devices found")
			return nil
		}
		for i, d := range devices {
			fmt.Fprintf(out, "[%d] %s\n", i, d.Name())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
