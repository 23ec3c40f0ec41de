package escalation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/constants"
)

// ErrFeedExited is returned when the feed process dies during its start grace.
var ErrFeedExited = errors.New("live feed process exited right after start")

// ProcessLauncher starts the live feed as a separate process that outlives
// the gate process.
type ProcessLauncher struct {
	path   string
	args   []string
	stdout io.Writer
	stderr io.Writer
	grace  time.Duration
}

// ProcessOption configures a ProcessLauncher.
type ProcessOption func(*ProcessLauncher)

// WithStartGrace sets how long Launch watches the child before reporting it
// as started. Zero reports success as soon as the process is spawned.
func WithStartGrace(d time.Duration) ProcessOption {
	return func(l *ProcessLauncher) { l.grace = d }
}

// NewProcessLauncher creates a launcher for the command. Output of the child
// goes to stdout and stderr, which may be nil to discard it.
func NewProcessLauncher(path string, args []string, stdout, stderr io.Writer, opts ...ProcessOption) *ProcessLauncher {
	l := &ProcessLauncher{
		path:   path,
		args:   args,
		stdout: stdout,
		stderr: stderr,
		grace:  constants.DefaultFeedStartGrace,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch starts the process and returns once it has survived the start grace.
// A child that exits within the grace (port in use, camera missing) is
// reported as ErrFeedExited.
func (l *ProcessLauncher) Launch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// not CommandContext: the feed must keep running after this cycle ends
	cmd := exec.Command(l.path, l.args...)
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", l.path, err)
	}
	pid := cmd.Process.Pid

	// reap the child when it exits so loop mode leaves no zombies
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if l.grace > 0 {
		t := time.NewTimer(l.grace)
		defer t.Stop()
		select {
		case err := <-exited:
			if err != nil {
				return fmt.Errorf("%w: %v", ErrFeedExited, err)
			}
			return ErrFeedExited
		case <-ctx.Done():
			// the child keeps running, only the wait is cut short
		case <-t.C:
		}
	}
	slog.Info("live feed process started", "path", l.path, "pid", pid)
	return nil
}
