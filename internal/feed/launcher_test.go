package feed

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/mock"
)

func TestLauncher_ServesOneFeedAtATime(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := mock.NewMockSource(testFrame)
	l := NewLauncher(base, source, "127.0.0.1", 0, 10*time.Millisecond, 0)

	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("launch failed: %v", err)
	}
	addr, running := l.Running()
	if !running {
		t.Fatal("expected the feed to be running")
	}

	resp, err := http.Get("http://" + addr + "/snapshot")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if source.CaptureCount() != 1 {
		t.Errorf("expected the feed to read the shared source, got %d captures", source.CaptureCount())
	}

	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("second launch failed: %v", err)
	}
	if again, _ := l.Running(); again != addr {
		t.Errorf("expected the running feed to be kept on %s, got %s", addr, again)
	}

	cancel()
	l.Wait()
	if _, running := l.Running(); running {
		t.Error("expected the feed to stop with its base context")
	}
}

func TestLauncher_StopsAfterDuration(t *testing.T) {
	l := NewLauncher(context.Background(), mock.NewMockSource(testFrame), "127.0.0.1", 0, 0, 20*time.Millisecond)
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop after its duration")
	}

	// a later escalation gets a fresh feed
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("relaunch failed: %v", err)
	}
	l.Wait()
}

func TestLauncher_PortInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	l := NewLauncher(context.Background(), mock.NewMockSource(testFrame), "127.0.0.1", port, 0, time.Second)
	if err := l.Launch(context.Background()); err == nil {
		t.Fatal("expected an error for a busy port")
	}
	if _, running := l.Running(); running {
		t.Error("expected no feed after a failed launch")
	}
}

func TestLauncher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := NewLauncher(context.Background(), mock.NewMockSource(testFrame), "127.0.0.1", 0, 0, time.Second)
	if err := l.Launch(ctx); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}
