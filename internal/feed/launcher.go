package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/camera"
)

// Launcher starts the live feed inside the gate process, reading from the
// same camera source as the gate. At most one feed runs at a time; launching
// while one is up keeps the running feed.
type Launcher struct {
	base     context.Context
	source   camera.Source
	host     string
	port     int
	interval time.Duration
	duration time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	addr    string
	stopped chan struct{}
}

// NewLauncher creates a launcher. Every feed it starts stops after duration
// or when base is cancelled, whichever comes first.
func NewLauncher(base context.Context, source camera.Source, host string, port int, interval, duration time.Duration) *Launcher {
	return &Launcher{
		base:     base,
		source:   source,
		host:     host,
		port:     port,
		interval: interval,
		duration: duration,
		logger:   slog.Default(),
	}
}

// Launch binds the feed address and serves in the background. The address is
// bound before Launch returns, so a busy port is reported to the caller.
func (l *Launcher) Launch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		l.logger.Info("live feed already running", "addr", l.addr)
		return nil
	}

	server := NewServer(l.source, l.host, l.port, l.interval)
	ln, err := server.Listen()
	if err != nil {
		return err
	}
	l.running = true
	l.addr = ln.Addr().String()
	stopped := make(chan struct{})
	l.stopped = stopped

	go func() {
		defer close(stopped)
		if err := server.Serve(l.base, ln, l.duration); err != nil {
			l.logger.Error("live feed stopped with error", "error", err)
		}
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()
	return nil
}

// Running reports whether a feed is being served and on which address.
func (l *Launcher) Running() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr, l.running
}

// Wait blocks until the last launched feed has stopped.
func (l *Launcher) Wait() {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped != nil {
		<-stopped
	}
}
