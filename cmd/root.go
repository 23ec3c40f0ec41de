package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "A face-verifying gate controller",
	Long: `Gatekeeper waits for a motion event from the gate sensor, captures one frame
from the camera and matches the face against the enrolled identities. A match
pulses the unlock indicator; anything else alerts a human with a link to a
temporary live camera feed.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML file with settings (overrides GATE_CONFIG)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	if configFile != "" {
		os.Setenv("GATE_CONFIG", configFile)
	}
}
