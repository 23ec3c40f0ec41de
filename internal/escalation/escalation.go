// Package escalation alerts a human when the gate cannot verify a visitor:
// notifications go out first, then the live feed is started. Every action is
// best-effort and bounded in time.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/constants"
)

// Alert describes why the gate escalated.
type Alert struct {
	CycleID string    `json:"cycle_id"`
	Outcome string    `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
	FeedURL string    `json:"feed_url"`
	At      time.Time `json:"at"`
}

// Message renders the human-readable notification body.
func (a Alert) Message() string {
	return fmt.Sprintf(constants.AlertTemplate, a.FeedURL)
}

// Notifier delivers an alert over one transport.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert Alert) error
}

// Launcher starts the live feed. Only start semantics are needed; the feed
// runs independently afterwards.
type Launcher interface {
	Launch(ctx context.Context) error
}

// Report summarizes one escalation. Errors are informational; escalation
// never fails as a whole.
type Report struct {
	Notified     []string
	NotifyErrors map[string]error
	Launched     bool
	LaunchError  error
}

// Service runs the escalation actions.
type Service struct {
	notifiers []Notifier
	launcher  Launcher
	timeout   time.Duration
	settle    time.Duration
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds each notification and the feed launch.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithSettle sets the pause between notifications and the feed launch.
func WithSettle(d time.Duration) Option {
	return func(s *Service) { s.settle = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a service. launcher may be nil when no feed is configured.
func NewService(notifiers []Notifier, launcher Launcher, opts ...Option) *Service {
	s := &Service{
		notifiers: notifiers,
		launcher:  launcher,
		timeout:   constants.DefaultEscalationTimeout,
		settle:    constants.DefaultFeedSettle,
		logger:    slog.Default(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Escalate sends the alert through every notifier and then starts the feed.
// A failing or hanging notifier does not prevent the others or the launch.
func (s *Service) Escalate(ctx context.Context, alert Alert) Report {
	report := Report{NotifyErrors: map[string]error{}}
	log := s.logger.With("cycle_id", alert.CycleID, "outcome", alert.Outcome)

	if len(s.notifiers) == 0 {
		log.Warn("no notifier configured, alert not sent")
	}
	for _, n := range s.notifiers {
		err := bounded(ctx, s.timeout, func(ctx context.Context) error {
			return n.Notify(ctx, alert)
		})
		if err != nil {
			report.NotifyErrors[n.Name()] = err
			log.Error("failed to send alert", "notifier", n.Name(), "error", err)
			continue
		}
		report.Notified = append(report.Notified, n.Name())
		log.Info("alert sent", "notifier", n.Name())
	}

	if s.launcher == nil {
		log.Warn("no live feed launcher configured")
		return report
	}
	if err := s.sleep(ctx, s.settle); err != nil {
		log.Warn("settle pause interrupted", "error", err)
	}

	log.Info("starting live feed", "url", alert.FeedURL)
	if err := bounded(ctx, s.timeout, s.launcher.Launch); err != nil {
		report.LaunchError = err
		log.Error("failed to start live feed", "error", err)
		return report
	}
	report.Launched = true
	return report
}

// ErrTimeout is reported for an action that did not finish in time.
var ErrTimeout = errors.New("escalation action timed out")

// bounded runs fn with a deadline and returns once fn finishes or the deadline
// passes, whichever comes first. fn keeps running in the background after a
// timeout, its result is dropped.
func bounded(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %v: %v", ErrTimeout, timeout, err)
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		return ctx.Err()
	}
}

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
