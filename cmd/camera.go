package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cameraCmd = &cobra.Command{
	Use:   "camera",
	Short: "Camera utilities",
}

var cameraProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Find the first working camera device",
	Args:  cobra.NoArgs,
	RunE:  runCameraProbe,
}

func init() {
	rootCmd.AddCommand(cameraCmd)
	cameraCmd.AddCommand(cameraProbeCmd)

	cameraProbeCmd.Flags().Int("max", 0, "Number of /dev/videoN devices to try (overrides GATE_CAMERA_PROBE_MAX)")
}

func runCameraProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max") {
		cfg.Camera.ProbeMax = mustGetInt(cmd, "max")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device, err := probeCamera(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Camera found at %s\n", device)
	return nil
}
