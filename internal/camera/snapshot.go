package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxSnapshotSize caps the body read from a network camera.
const maxSnapshotSize = 16 << 20

// SnapshotSource fetches frames from a network camera that serves a JPEG
// snapshot over HTTP (ESP32-CAM style /capture endpoints).
type SnapshotSource struct {
	url    string
	warmup time.Duration
	client *http.Client
}

// NewSnapshotSource creates a source for the snapshot URL. warmup is waited
// before the request, for cameras that need time after motion to adjust
// exposure.
func NewSnapshotSource(url string, warmup time.Duration) *SnapshotSource {
	return &SnapshotSource{
		url:    url,
		warmup: warmup,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Capture requests one snapshot.
func (s *SnapshotSource) Capture(ctx context.Context) (Frame, error) {
	if err := sleepContext(ctx, s.warmup); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrCaptureFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Frame{}, fmt.Errorf("%w: %s answered status %d", ErrCaptureFailure, s.url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrCaptureFailure, err)
	}
	if !looksLikeJPEG(data) {
		return Frame{}, fmt.Errorf("%w: %s returned %d bytes that are not a JPEG", ErrCaptureFailure, s.url, len(data))
	}
	return Frame{Data: data, CapturedAt: time.Now(), Device: s.url}, nil
}
