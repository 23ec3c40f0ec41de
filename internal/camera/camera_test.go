package camera

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"slices"
	"testing"
	"time"
)

var fakeJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func statOK(string) (os.FileInfo, error) { return nil, nil }

func statMissing(string) (os.FileInfo, error) { return nil, os.ErrNotExist }

func TestDeviceSource_Capture(t *testing.T) {
	var gotName string
	var gotArgs []string
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return fakeJPEG, nil
	}

	src := NewDeviceSource("/dev/video2", 2*time.Second,
		WithRunner(run), WithResolution("640x480"), WithFFmpeg("/usr/bin/ffmpeg"), withStat(statOK))
	frame, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotName != "/usr/bin/ffmpeg" {
		t.Errorf("expected ffmpeg path, got %s", gotName)
	}
	for _, want := range [][]string{
		{"-i", "/dev/video2"},
		{"-ss", "2.000"},
		{"-video_size", "640x480"},
		{"-frames:v", "1"},
	} {
		i := slices.Index(gotArgs, want[0])
		if i < 0 || i+1 >= len(gotArgs) || gotArgs[i+1] != want[1] {
			t.Errorf("expected %s %s in args %v", want[0], want[1], gotArgs)
		}
	}
	if frame.Device != "/dev/video2" || len(frame.Data) != len(fakeJPEG) {
		t.Errorf("unexpected frame %+v", frame)
	}
	if frame.CapturedAt.IsZero() {
		t.Error("expected capture time to be set")
	}
}

func TestDeviceSource_NoWarmupArg(t *testing.T) {
	var gotArgs []string
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return fakeJPEG, nil
	}

	src := NewDeviceSource("/dev/video0", 0, WithRunner(run), withStat(statOK))
	if _, err := src.Capture(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slices.Contains(gotArgs, "-ss") {
		t.Errorf("did not expect -ss without warm-up: %v", gotArgs)
	}
}

func TestDeviceSource_Errors(t *testing.T) {
	tests := []struct {
		name string
		stat func(string) (os.FileInfo, error)
		out  []byte
		err  error
		want error
	}{
		{"missing device", statMissing, nil, nil, ErrDeviceUnavailable},
		{"ffmpeg not installed", statOK, nil, exec.ErrNotFound, ErrDeviceUnavailable},
		{"ffmpeg failed", statOK, nil, errors.New("exit status 1: device busy"), ErrCaptureFailure},
		{"empty output", statOK, []byte{}, nil, ErrCaptureFailure},
		{"not a jpeg", statOK, []byte("garbage data"), nil, ErrCaptureFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
				return tt.out, tt.err
			}
			src := NewDeviceSource("/dev/video0", 0, WithRunner(run), withStat(tt.stat))

			_, err := src.Capture(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

type stubSource struct {
	err error
}

func (s stubSource) Capture(ctx context.Context) (Frame, error) {
	if s.err != nil {
		return Frame{}, s.err
	}
	return Frame{Data: fakeJPEG}, nil
}

func TestProbe(t *testing.T) {
	working := map[string]bool{"/dev/video2": true, "/dev/video3": true}
	var tried []string

	device, err := Probe(context.Background(), 10, func(device string) Source {
		tried = append(tried, device)
		if working[device] {
			return stubSource{}
		}
		return stubSource{err: ErrDeviceUnavailable}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if device != "/dev/video2" {
		t.Errorf("expected first working device /dev/video2, got %s", device)
	}
	if len(tried) != 3 {
		t.Errorf("expected probing to stop at the first working device, tried %v", tried)
	}
}

func TestProbe_NoCamera(t *testing.T) {
	_, err := Probe(context.Background(), 4, func(string) Source {
		return stubSource{err: ErrCaptureFailure}
	})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestSnapshotSource_Capture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(fakeJPEG)
	}))
	defer server.Close()

	frame, err := NewSnapshotSource(server.URL+"/capture", 0).Capture(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(frame.Data) != string(fakeJPEG) {
		t.Error("unexpected frame data")
	}
}

func TestSnapshotSource_Errors(t *testing.T) {
	t.Run("bad status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "busy", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := NewSnapshotSource(server.URL, 0).Capture(context.Background())
		if !errors.Is(err, ErrCaptureFailure) {
			t.Errorf("expected ErrCaptureFailure, got %v", err)
		}
	})

	t.Run("not a jpeg", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>login</html>"))
		}))
		defer server.Close()

		_, err := NewSnapshotSource(server.URL, 0).Capture(context.Background())
		if !errors.Is(err, ErrCaptureFailure) {
			t.Errorf("expected ErrCaptureFailure, got %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := NewSnapshotSource(url, 0).Capture(context.Background())
		if !errors.Is(err, ErrDeviceUnavailable) {
			t.Errorf("expected ErrDeviceUnavailable, got %v", err)
		}
	})

	t.Run("cancelled during warm-up", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewSnapshotSource("http://127.0.0.1:1", time.Hour).Capture(ctx)
		if !errors.Is(err, ErrCaptureFailure) {
			t.Errorf("expected ErrCaptureFailure, got %v", err)
		}
	})
}
