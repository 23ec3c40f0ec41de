package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/gatekeeper/internal/matcher"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Identity   IdentityConfig   `yaml:"identity"`
	Motion     MotionConfig     `yaml:"motion"`
	Camera     CameraConfig     `yaml:"camera"`
	Indicator  IndicatorConfig  `yaml:"indicator"`
	Matching   MatchingConfig   `yaml:"matching"`
	Escalation EscalationConfig `yaml:"escalation"`
	Twilio     TwilioConfig     `yaml:"twilio"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Feed       FeedConfig       `yaml:"feed"`
	Log        LogConfig        `yaml:"log"`
}

type IdentityConfig struct {
	DB            string `yaml:"db"`             // identity document (JSON)
	FaceDir       string `yaml:"face_dir"`       // reference images
	DescriptorDim int    `yaml:"descriptor_dim"` // 0 accepts any length
}

type MotionConfig struct {
	SerialPort   string        `yaml:"serial_port"`
	Baud         int           `yaml:"baud"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"` // 0 waits forever
}

type CameraConfig struct {
	Device      string        `yaml:"device"`       // empty probes /dev/video0..N-1
	SnapshotURL string        `yaml:"snapshot_url"` // takes precedence over Device
	ProbeMax    int           `yaml:"probe_max"`
	Warmup      time.Duration `yaml:"warmup"`
	Resolution  string        `yaml:"resolution"` // e.g. 1280x720, empty keeps the device default
	FFmpeg      string        `yaml:"ffmpeg"`
}

type IndicatorConfig struct {
	Pin   string        `yaml:"pin"`
	Dwell time.Duration `yaml:"dwell"`
}

type MatchingConfig struct {
	EmbeddingURL string  `yaml:"embedding_url"`
	Threshold    float64 `yaml:"threshold"`
	Metric       string  `yaml:"metric"` // euclidean or cosine
	MaxImageSize int     `yaml:"max_image_size"`
}

type EscalationConfig struct {
	Timeout time.Duration `yaml:"timeout"` // bound of each notification and the feed launch
	Settle  time.Duration `yaml:"settle"`  // pause between notifications and the feed launch
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
	To         string `yaml:"to"`
}

// Enabled reports whether SMS alerts are configured.
func (c *TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != "" && c.To != ""
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. tcp://localhost:1883, empty disables MQTT alerts
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// Enabled reports whether MQTT alerts are configured.
func (c *MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

type FeedConfig struct {
	URL           string        `yaml:"url"` // public address sent in alerts
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Duration      time.Duration `yaml:"duration"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SlogLevel maps Level to a slog level, defaulting to info.
func (c *LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envString overwrites *dst with the environment variable when it is set.
func envString(key string, dst *string) {
	if s, ok := os.LookupEnv(key); ok {
		*dst = s
	}
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat is envInt for positive floating-point values.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration parses a Go duration ("500ms", "2s"). Zero is accepted, negative
// and invalid values fall back to the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration from the built-in defaults, the optional YAML
// file named by GATE_CONFIG and the environment, in that order.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("GATE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("GATE_IDENTITY_DB", &c.Identity.DB)
	envString("GATE_FACE_DIR", &c.Identity.FaceDir)
	c.Identity.DescriptorDim = envInt("GATE_DESCRIPTOR_DIM", c.Identity.DescriptorDim)

	envString("GATE_SERIAL_PORT", &c.Motion.SerialPort)
	c.Motion.Baud = envInt("GATE_SERIAL_BAUD", c.Motion.Baud)
	c.Motion.PollInterval = envDuration("GATE_POLL_INTERVAL", c.Motion.PollInterval)
	c.Motion.Timeout = envDuration("GATE_MOTION_TIMEOUT", c.Motion.Timeout)

	envString("GATE_CAMERA_DEVICE", &c.Camera.Device)
	envString("GATE_CAMERA_SNAPSHOT_URL", &c.Camera.SnapshotURL)
	c.Camera.ProbeMax = envInt("GATE_CAMERA_PROBE_MAX", c.Camera.ProbeMax)
	c.Camera.Warmup = envDuration("GATE_CAMERA_WARMUP", c.Camera.Warmup)
	envString("GATE_CAMERA_RESOLUTION", &c.Camera.Resolution)
	envString("GATE_FFMPEG", &c.Camera.FFmpeg)

	envString("GATE_INDICATOR_PIN", &c.Indicator.Pin)
	c.Indicator.Dwell = envDuration("GATE_DWELL", c.Indicator.Dwell)

	envString("EMBEDDING_URL", &c.Matching.EmbeddingURL)
	c.Matching.Threshold = envFloat("GATE_MATCH_THRESHOLD", c.Matching.Threshold)
	envString("GATE_DISTANCE_METRIC", &c.Matching.Metric)
	c.Matching.MaxImageSize = envInt("GATE_MAX_IMAGE_SIZE", c.Matching.MaxImageSize)

	c.Escalation.Timeout = envDuration("GATE_ESCALATION_TIMEOUT", c.Escalation.Timeout)
	c.Escalation.Settle = envDuration("GATE_ESCALATION_SETTLE", c.Escalation.Settle)

	envString("TWILIO_ACCOUNT_SID", &c.Twilio.AccountSID)
	envString("TWILIO_AUTH_TOKEN", &c.Twilio.AuthToken)
	envString("TWILIO_FROM", &c.Twilio.From)
	envString("TWILIO_TO", &c.Twilio.To)

	envString("MQTT_BROKER", &c.MQTT.Broker)
	envString("MQTT_TOPIC", &c.MQTT.Topic)
	envString("MQTT_CLIENT_ID", &c.MQTT.ClientID)

	envString("FEED_URL", &c.Feed.URL)
	envString("FEED_HOST", &c.Feed.Host)
	c.Feed.Port = envInt("FEED_PORT", c.Feed.Port)
	c.Feed.Duration = envDuration("FEED_DURATION", c.Feed.Duration)
	c.Feed.FrameInterval = envDuration("FEED_FRAME_INTERVAL", c.Feed.FrameInterval)

	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)
}

// Validate reports every setting the gate cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Identity.DB == "" {
		errs = append(errs, errors.New("identity document path is empty (GATE_IDENTITY_DB)"))
	}
	if c.Identity.FaceDir == "" {
		errs = append(errs, errors.New("reference image directory is empty (GATE_FACE_DIR)"))
	}
	if c.Motion.SerialPort == "" {
		errs = append(errs, errors.New("serial port is empty (GATE_SERIAL_PORT)"))
	}
	if c.Motion.Baud <= 0 {
		errs = append(errs, fmt.Errorf("invalid baud rate %d", c.Motion.Baud))
	}
	if c.Motion.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive (GATE_POLL_INTERVAL)"))
	}
	if c.Camera.SnapshotURL == "" && c.Camera.Device == "" && c.Camera.ProbeMax <= 0 {
		errs = append(errs, errors.New("no camera configured and probing disabled"))
	}
	if c.Indicator.Pin == "" {
		errs = append(errs, errors.New("indicator pin is empty (GATE_INDICATOR_PIN)"))
	}
	if c.Matching.EmbeddingURL == "" {
		errs = append(errs, errors.New("embedding server URL is empty (EMBEDDING_URL)"))
	}
	if c.Matching.Threshold <= 0 {
		errs = append(errs, errors.New("match threshold must be positive (GATE_MATCH_THRESHOLD)"))
	}
	if _, err := matcher.ParseMetric(c.Matching.Metric); err != nil {
		errs = append(errs, err)
	}
	if c.MQTT.Enabled() && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt topic is empty (MQTT_TOPIC)"))
	}
	return errors.Join(errs...)
}
