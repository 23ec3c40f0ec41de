package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec. Standard error is folded into the
// returned error.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// DeviceSource grabs frames from a V4L2 device through ffmpeg. Each Capture
// starts one ffmpeg process, which opens the device, drops the frames of the
// warm-up period, writes one JPEG and exits.
type DeviceSource struct {
	device     string
	warmup     time.Duration
	resolution string
	ffmpeg     string
	run        Runner
	stat       func(string) (os.FileInfo, error)
}

// DeviceOption configures a DeviceSource.
type DeviceOption func(*DeviceSource)

// WithResolution requests a capture size such as "1280x720".
func WithResolution(res string) DeviceOption {
	return func(s *DeviceSource) { s.resolution = res }
}

// WithRunner replaces the command runner.
func WithRunner(run Runner) DeviceOption {
	return func(s *DeviceSource) { s.run = run }
}

// WithFFmpeg sets the ffmpeg binary path.
func WithFFmpeg(path string) DeviceOption {
	return func(s *DeviceSource) { s.ffmpeg = path }
}

// withStat replaces the device existence check, for tests.
func withStat(stat func(string) (os.FileInfo, error)) DeviceOption {
	return func(s *DeviceSource) { s.stat = stat }
}

// NewDeviceSource creates a source for a device path like /dev/video0.
func NewDeviceSource(device string, warmup time.Duration, opts ...DeviceOption) *DeviceSource {
	s := &DeviceSource{
		device: device,
		warmup: warmup,
		ffmpeg: "ffmpeg",
		run:    ExecRunner,
		stat:   os.Stat,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Device returns the device path.
func (s *DeviceSource) Device() string {
	return s.device
}

// Capture opens the device, waits out the warm-up and returns one frame.
func (s *DeviceSource) Capture(ctx context.Context) (Frame, error) {
	if _, err := s.stat(s.device); err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, s.device, err)
	}

	out, err := s.run(ctx, s.ffmpeg, s.args()...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Frame{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		if ctx.Err() != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrCaptureFailure, ctx.Err())
		}
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrCaptureFailure, s.device, err)
	}
	if !looksLikeJPEG(out) {
		return Frame{}, fmt.Errorf("%w: %s returned %d bytes that are not a JPEG", ErrCaptureFailure, s.device, len(out))
	}

	return Frame{Data: out, CapturedAt: time.Now(), Device: s.device}, nil
}

func (s *DeviceSource) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if s.resolution != "" {
		args = append(args, "-video_size", s.resolution)
	}
	args = append(args, "-i", s.device)
	if s.warmup > 0 {
		// output-side seek discards the frames produced while the sensor settles
		args = append(args, "-ss", strconv.FormatFloat(s.warmup.Seconds(), 'f', 3, 64))
	}
	return append(args, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

// DevicePath returns the V4L2 path for a camera index.
func DevicePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}

// Probe tries the devices /dev/video0 .. /dev/video<count-1> in order and
// returns the first that delivers a frame. newSource builds the source for a
// device path. ErrDeviceUnavailable is returned when no device works.
func Probe(ctx context.Context, count int, newSource func(device string) Source) (string, error) {
	var lastErr error
	for i := 0; i < count; i++ {
		device := DevicePath(i)
		if _, err := newSource(device).Capture(ctx); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return device, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no devices probed")
	}
	return "", fmt.Errorf("%w: no working camera among %d devices (last error: %v)", ErrDeviceUnavailable, count, lastErr)
}
