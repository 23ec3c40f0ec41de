package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Identity.DB != "face_db.json" || cfg.Identity.FaceDir != "registered_faces" {
		t.Errorf("unexpected identity defaults %+v", cfg.Identity)
	}
	if cfg.Motion.Baud != 115200 {
		t.Errorf("expected baud 115200, got %d", cfg.Motion.Baud)
	}
	if cfg.Motion.PollInterval != 100*time.Millisecond {
		t.Errorf("expected 100ms poll interval, got %v", cfg.Motion.PollInterval)
	}
	if cfg.Motion.Timeout != 0 {
		t.Errorf("expected no motion timeout by default, got %v", cfg.Motion.Timeout)
	}
	if cfg.Camera.Warmup != 2*time.Second || cfg.Camera.ProbeMax != 10 {
		t.Errorf("unexpected camera defaults %+v", cfg.Camera)
	}
	if cfg.Indicator.Pin != "GPIO17" || cfg.Indicator.Dwell != 5*time.Second {
		t.Errorf("unexpected indicator defaults %+v", cfg.Indicator)
	}
	if cfg.Matching.Threshold != 0.5 || cfg.Matching.Metric != "euclidean" {
		t.Errorf("unexpected matching defaults %+v", cfg.Matching)
	}
	if cfg.Escalation.Timeout != 15*time.Second || cfg.Escalation.Settle != 2*time.Second {
		t.Errorf("unexpected escalation defaults %+v", cfg.Escalation)
	}
	if cfg.Feed.Port != 5000 || cfg.Feed.Duration != 10*time.Minute || cfg.Feed.FrameInterval != 500*time.Millisecond {
		t.Errorf("unexpected feed defaults %+v", cfg.Feed)
	}
	if cfg.Twilio.Enabled() || cfg.MQTT.Enabled() {
		t.Error("notifiers must be disabled by default")
	}
}

func TestDefaults_Validate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Errorf("defaults should be valid, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GATE_CONFIG", "")
	t.Setenv("GATE_IDENTITY_DB", "/var/lib/gate/faces.json")
	t.Setenv("GATE_SERIAL_PORT", "/dev/ttyUSB0")
	t.Setenv("GATE_SERIAL_BAUD", "9600")
	t.Setenv("GATE_MOTION_TIMEOUT", "30s")
	t.Setenv("GATE_MATCH_THRESHOLD", "0.42")
	t.Setenv("GATE_DWELL", "3s")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TWILIO_FROM", "+15550001")
	t.Setenv("TWILIO_TO", "+15550002")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Identity.DB != "/var/lib/gate/faces.json" {
		t.Errorf("expected identity db override, got %q", cfg.Identity.DB)
	}
	if cfg.Motion.SerialPort != "/dev/ttyUSB0" || cfg.Motion.Baud != 9600 {
		t.Errorf("unexpected motion config %+v", cfg.Motion)
	}
	if cfg.Motion.Timeout != 30*time.Second {
		t.Errorf("expected 30s motion timeout, got %v", cfg.Motion.Timeout)
	}
	if cfg.Matching.Threshold != 0.42 {
		t.Errorf("expected threshold 0.42, got %v", cfg.Matching.Threshold)
	}
	if cfg.Indicator.Dwell != 3*time.Second {
		t.Errorf("expected 3s dwell, got %v", cfg.Indicator.Dwell)
	}
	if !cfg.Twilio.Enabled() {
		t.Error("expected twilio to be enabled")
	}
	if !cfg.MQTT.Enabled() {
		t.Error("expected mqtt to be enabled")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(*Config) bool
	}{
		{"non-numeric baud", "GATE_SERIAL_BAUD", "fast", func(c *Config) bool { return c.Motion.Baud == 115200 }},
		{"negative baud", "GATE_SERIAL_BAUD", "-1", func(c *Config) bool { return c.Motion.Baud == 115200 }},
		{"zero probe max", "GATE_CAMERA_PROBE_MAX", "0", func(c *Config) bool { return c.Camera.ProbeMax == 10 }},
		{"bad duration", "GATE_DWELL", "five", func(c *Config) bool { return c.Indicator.Dwell == 5*time.Second }},
		{"negative duration", "GATE_DWELL", "-5s", func(c *Config) bool { return c.Indicator.Dwell == 5*time.Second }},
		{"bad threshold", "GATE_MATCH_THRESHOLD", "close", func(c *Config) bool { return c.Matching.Threshold == 0.5 }},
		{"zero threshold", "GATE_MATCH_THRESHOLD", "0", func(c *Config) bool { return c.Matching.Threshold == 0.5 }},
		{"zero timeout accepted", "GATE_MOTION_TIMEOUT", "0s", func(c *Config) bool { return c.Motion.Timeout == 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GATE_CONFIG", "")
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("%s=%q did not fall back to the default", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_ConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	overlay := "motion:\n  serial_port: /dev/ttyAMA0\nindicator:\n  dwell: 7s\nfeed:\n  url: https://gate.example.com\n"
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatalf("failed to write overlay: %v", err)
	}
	t.Setenv("GATE_CONFIG", path)
	// environment wins over the file
	t.Setenv("GATE_DWELL", "1s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Motion.SerialPort != "/dev/ttyAMA0" {
		t.Errorf("expected serial port from file, got %q", cfg.Motion.SerialPort)
	}
	if cfg.Feed.URL != "https://gate.example.com" {
		t.Errorf("expected feed url from file, got %q", cfg.Feed.URL)
	}
	if cfg.Indicator.Dwell != time.Second {
		t.Errorf("expected env to override file dwell, got %v", cfg.Indicator.Dwell)
	}
	if cfg.Motion.Baud != 115200 {
		t.Errorf("expected untouched default baud, got %d", cfg.Motion.Baud)
	}
}

func TestLoad_ConfigFileErrors(t *testing.T) {
	t.Setenv("GATE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("motion: [unclosed"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	t.Setenv("GATE_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"empty serial port", func(c *Config) { c.Motion.SerialPort = "" }, "GATE_SERIAL_PORT"},
		{"empty pin", func(c *Config) { c.Indicator.Pin = "" }, "GATE_INDICATOR_PIN"},
		{"empty embedding url", func(c *Config) { c.Matching.EmbeddingURL = "" }, "EMBEDDING_URL"},
		{"zero threshold", func(c *Config) { c.Matching.Threshold = 0 }, "GATE_MATCH_THRESHOLD"},
		{"unknown metric", func(c *Config) { c.Matching.Metric = "manhattan" }, "manhattan"},
		{"no camera", func(c *Config) { c.Camera.ProbeMax = 0 }, "no camera"},
		{"mqtt without topic", func(c *Config) {
			c.MQTT.Broker = "tcp://broker:1883"
			c.MQTT.Topic = ""
		}, "MQTT_TOPIC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Motion.SerialPort = ""
	cfg.Indicator.Pin = ""

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "GATE_SERIAL_PORT") || !strings.Contains(err.Error(), "GATE_INDICATOR_PIN") {
		t.Errorf("expected both problems reported, got %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := LogConfig{Level: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
