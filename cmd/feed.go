package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/gatekeeper/internal/feed"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Serve the live camera feed for a limited time",
	Long: `Serve the gate camera as an MJPEG stream. The server stops on its own after
FEED_DURATION so the camera is not exposed indefinitely. The gate starts this
command as a separate process when it escalates.`,
	Args: cobra.NoArgs,
	RunE: runFeed,
}

func init() {
	rootCmd.AddCommand(feedCmd)

	feedCmd.Flags().Int("port", 0, "Port to listen on (overrides FEED_PORT)")
	feedCmd.Flags().String("host", "", "Host to bind to (overrides FEED_HOST)")
	feedCmd.Flags().Duration("duration", 0, "How long to serve (overrides FEED_DURATION)")
}

func runFeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Feed.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Feed.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("duration") {
		cfg.Feed.Duration = mustGetDuration(cmd, "duration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// frames are grabbed back to back, no warm-up per frame
	source, err := openCamera(ctx, cfg, 0)
	if err != nil {
		return err
	}

	server := feed.NewServer(source, cfg.Feed.Host, cfg.Feed.Port, cfg.Feed.FrameInterval)
	fmt.Printf("Serving live feed on http://%s:%d for %s\n", cfg.Feed.Host, cfg.Feed.Port, cfg.Feed.Duration)
	return server.Run(ctx, cfg.Feed.Duration)
}
