// Package camera grabs still frames from an imaging device. The device is
// opened for every capture and released right after the frame is read, so the
// camera is never held while the gate waits for motion.
package camera

import (
	"bytes"
	"context"
	"errors"
	"time"
)

var (
	// ErrDeviceUnavailable means the device could not be opened at all.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrCaptureFailure means the device opened but produced no usable frame.
	ErrCaptureFailure = errors.New("failed to capture frame")
)

// Frame is one JPEG-encoded still image.
type Frame struct {
	Data       []byte
	CapturedAt time.Time
	Device     string
}

// Source yields a single frame on demand.
type Source interface {
	Capture(ctx context.Context) (Frame, error)
}

var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// looksLikeJPEG checks the SOI marker so an empty or truncated grab is not
// passed on as a frame.
func looksLikeJPEG(data []byte) bool {
	return len(data) > len(jpegMagic) && bytes.HasPrefix(data, jpegMagic)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
