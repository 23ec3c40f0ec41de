package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/camera"
	"github.com/kozaktomas/gatekeeper/internal/config"
)

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("state changed", "state", "capturing")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q", buf.String())
	}
	if entry["msg"] != "state changed" || entry["state"] != "capturing" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestSetupLogger_TextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info line logged at warn level")
	}
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("expected text warn line, got %q", buf.String())
	}
}

func TestOpenCamera(t *testing.T) {
	cfg := config.Defaults()
	cfg.Camera.SnapshotURL = "http://camera.local/capture"
	source, err := openCamera(context.Background(), cfg, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := source.(*camera.SnapshotSource); !ok {
		t.Errorf("expected snapshot source, got %T", source)
	}

	cfg = config.Defaults()
	cfg.Camera.Device = "/dev/does-not-exist"
	if _, err := openCamera(context.Background(), cfg, 0); !errors.Is(err, camera.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestBuildEscalator_NoNotifiers(t *testing.T) {
	service, cleanup := buildEscalator(config.Defaults(), nil)
	defer cleanup()
	if service == nil {
		t.Fatal("expected a service")
	}
}

func TestOpenCameras_DeviceSourcesKeepTheirWarmup(t *testing.T) {
	cfg := config.Defaults()
	cfg.Camera.Device = t.TempDir()
	sources, err := openCameras(context.Background(), cfg, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gate, ok := sources(time.Second).(*camera.DeviceSource)
	if !ok {
		t.Fatalf("expected device source, got %T", gate)
	}
	if gate.Device() != cfg.Camera.Device {
		t.Errorf("expected device %s, got %s", cfg.Camera.Device, gate.Device())
	}
	if other := sources(0).(*camera.DeviceSource); other.Device() != gate.Device() {
		t.Errorf("expected both sources on %s, got %s", gate.Device(), other.Device())
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"run"},
		{"enroll", "add"},
		{"enroll", "remove"},
		{"enroll", "list"},
		{"enroll", "interactive"},
		{"feed"},
		{"camera", "probe"},
		{"version"},
	} {
		found, _, err := rootCmd.Find(path)
		if err != nil || found.Name() != path[len(path)-1] {
			t.Errorf("command %v not registered", path)
		}
	}
}
