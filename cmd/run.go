package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/gatekeeper/internal/actuator"
	"github.com/kozaktomas/gatekeeper/internal/camera"
	"github.com/kozaktomas/gatekeeper/internal/config"
	"github.com/kozaktomas/gatekeeper/internal/escalation"
	"github.com/kozaktomas/gatekeeper/internal/feed"
	"github.com/kozaktomas/gatekeeper/internal/gate"
	"github.com/kozaktomas/gatekeeper/internal/motion"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gate verification cycle",
	Long: `Wait for motion on the serial line, capture one frame and verify the face.
A verified visitor pulses the indicator pin; anything else sends an alert and
starts the live feed. By default a single cycle runs and the process exits;
use --loop to keep serving the gate.`,
	Args: cobra.NoArgs,
	RunE: runGate,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("loop", false, "Start a new cycle after each one ends")
	runCmd.Flags().Duration("motion-timeout", 0, "End the cycle as idle when no motion arrives in time (0 waits forever)")
	runCmd.Flags().Float64("threshold", 0, "Maximum descriptor distance for a match (overrides GATE_MATCH_THRESHOLD)")
}

func runGate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("motion-timeout") {
		cfg.Motion.Timeout = mustGetDuration(cmd, "motion-timeout")
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Matching.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Startup failures are fatal before any cycle begins.
	store := openStore(cfg)
	if _, err := store.Load(); err != nil {
		return err
	}

	sources, err := openCameras(ctx, cfg, cfg.Camera.Warmup)
	if err != nil {
		return err
	}
	loop := mustGetBool(cmd, "loop")
	var source camera.Source = sources(cfg.Camera.Warmup)

	// In loop mode the next cycle may start while the feed is still up, so
	// the feed runs in-process and shares one capture lock with the gate.
	var feedLauncher *feed.Launcher
	if loop {
		shared := camera.NewShared(source)
		source = shared
		feedLauncher = feed.NewLauncher(ctx, shared.With(sources(0)),
			cfg.Feed.Host, cfg.Feed.Port, cfg.Feed.FrameInterval, cfg.Feed.Duration)
	}

	channel, err := motion.OpenSerial(cfg.Motion.SerialPort, cfg.Motion.Baud)
	if err != nil {
		return err
	}
	defer channel.Close()

	indicator, err := actuator.OpenGPIO(cfg.Indicator.Pin)
	if err != nil {
		return err
	}
	defer indicator.Release()

	m, err := newMatcher(cfg)
	if err != nil {
		return err
	}

	var launcher escalation.Launcher
	if feedLauncher != nil {
		launcher = feedLauncher
	} else {
		launcher = processLauncher()
	}
	escalator, cleanup := buildEscalator(cfg, launcher)
	defer cleanup()

	controller, err := gate.New(gate.Components{
		Channel:   channel,
		Source:    source,
		Matcher:   m,
		Store:     store,
		Indicator: indicator,
		Escalator: escalator,
	}, gate.Settings{
		PollInterval:  cfg.Motion.PollInterval,
		Dwell:         cfg.Indicator.Dwell,
		MotionTimeout: cfg.Motion.Timeout,
		Threshold:     cfg.Matching.Threshold,
		FeedURL:       cfg.Feed.URL,
	})
	if err != nil {
		return err
	}

	slog.Info("gate ready",
		"serial_port", cfg.Motion.SerialPort,
		"indicator", indicator.Name(),
		"threshold", cfg.Matching.Threshold,
	)

	if loop {
		err := controller.RunLoop(ctx)
		// the feed shares ctx and stops with it; wait for its shutdown
		if ctx.Err() != nil {
			feedLauncher.Wait()
		}
		return err
	}

	cycle, err := controller.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("Interrupted.")
			return nil
		}
		return err
	}
	printCycle(cycle)
	return nil
}

// buildEscalator wires the configured notifiers and the feed launcher. The
// returned cleanup disconnects from the MQTT broker.
func buildEscalator(cfg *config.Config, launcher escalation.Launcher) (*escalation.Service, func()) {
	var notifiers []escalation.Notifier
	cleanup := func() {}

	if cfg.Twilio.Enabled() {
		sms, err := escalation.NewSMSNotifier(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, cfg.Twilio.To)
		if err != nil {
			slog.Warn("sms alerts disabled", "error", err)
		} else {
			notifiers = append(notifiers, sms)
		}
	}

	if cfg.MQTT.Enabled() {
		client, err := escalation.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, 10*time.Second)
		if err != nil {
			// the gate still works without the event bus
			slog.Warn("mqtt alerts disabled", "error", err)
		} else {
			notifiers = append(notifiers, escalation.NewMQTTNotifier(client, cfg.MQTT.Topic))
			cleanup = func() { client.Disconnect(250) }
		}
	}

	service := escalation.NewService(notifiers, launcher,
		escalation.WithTimeout(cfg.Escalation.Timeout),
		escalation.WithSettle(cfg.Escalation.Settle),
	)
	return service, cleanup
}

// processLauncher starts `gatekeeper feed` as a child that outlives a
// one-shot gate run. It returns nil when the executable cannot be located.
func processLauncher() escalation.Launcher {
	exe, err := os.Executable()
	if err != nil {
		slog.Warn("live feed disabled, executable path unknown", "error", err)
		return nil
	}
	feedArgs := []string{"feed"}
	if configFile != "" {
		feedArgs = append(feedArgs, "--config", configFile)
	}
	return escalation.NewProcessLauncher(exe, feedArgs, os.Stderr, os.Stderr)
}

func printCycle(cycle *gate.Cycle) {
	fmt.Printf("Cycle %s: %s\n", cycle.ID, cycle.Outcome)
	if cycle.Outcome == gate.Verified {
		fmt.Printf("  Identity: %s (distance %.3f)\n", cycle.Match.Identity.Name, cycle.Match.Distance)
	}
	if cycle.Err != nil {
		fmt.Printf("  Reason:   %v\n", cycle.Err)
	}
	if cycle.Escalation != nil {
		fmt.Printf("  Alerted:  %v\n", cycle.Escalation.Notified)
		fmt.Printf("  Feed:     %v\n", cycle.Escalation.Launched)
	}
}
