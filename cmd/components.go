package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/camera"
	"github.com/kozaktomas/gatekeeper/internal/config"
	"github.com/kozaktomas/gatekeeper/internal/identity"
	"github.com/kozaktomas/gatekeeper/internal/matcher"
)

// loadConfig loads the configuration and installs the logger it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.Log, os.Stderr)
	return cfg, nil
}

// setupLogger installs a text or JSON slog handler as the default logger.
func setupLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	var handler slog.Handler
	if strings.EqualFold(c.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func openStore(cfg *config.Config) *identity.Store {
	return identity.NewStore(cfg.Identity.DB, cfg.Identity.FaceDir, cfg.Identity.DescriptorDim)
}

func newMatcher(cfg *config.Config) (*matcher.Client, error) {
	distance, err := matcher.ParseMetric(cfg.Matching.Metric)
	if err != nil {
		return nil, err
	}
	return matcher.NewClient(cfg.Matching.EmbeddingURL, distance, cfg.Matching.MaxImageSize), nil
}

func newDeviceSource(cfg *config.Config, device string, warmup time.Duration) *camera.DeviceSource {
	opts := []camera.DeviceOption{camera.WithFFmpeg(cfg.Camera.FFmpeg)}
	if cfg.Camera.Resolution != "" {
		opts = append(opts, camera.WithResolution(cfg.Camera.Resolution))
	}
	return camera.NewDeviceSource(device, warmup, opts...)
}

// probeCamera finds the first working V4L2 device.
func probeCamera(ctx context.Context, cfg *config.Config) (string, error) {
	return camera.Probe(ctx, cfg.Camera.ProbeMax, func(device string) camera.Source {
		return newDeviceSource(cfg, device, 0)
	})
}

// openCamera returns the configured capture source. Without a snapshot URL or
// an explicit device the devices are probed; finding none is an error.
func openCamera(ctx context.Context, cfg *config.Config, warmup time.Duration) (camera.Source, error) {
	sources, err := openCameras(ctx, cfg, warmup)
	if err != nil {
		return nil, err
	}
	return sources(warmup), nil
}

// openCameras resolves the camera once and returns a constructor for sources
// on it, so the gate and the in-process feed can use different warm-ups on
// the same device.
func openCameras(ctx context.Context, cfg *config.Config, warmup time.Duration) (func(warmup time.Duration) camera.Source, error) {
	if cfg.Camera.SnapshotURL != "" {
		slog.Info("using network camera", "url", cfg.Camera.SnapshotURL)
		return func(warmup time.Duration) camera.Source {
			return camera.NewSnapshotSource(cfg.Camera.SnapshotURL, warmup)
		}, nil
	}

	device := cfg.Camera.Device
	if device == "" {
		found, err := probeCamera(ctx, cfg)
		if err != nil {
			return nil, err
		}
		device = found
	}
	if _, err := os.Stat(device); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", camera.ErrDeviceUnavailable, device, err)
	}
	slog.Info("using camera", "device", device, "warmup", warmup)
	return func(warmup time.Duration) camera.Source {
		return newDeviceSource(cfg, device, warmup)
	}, nil
}
