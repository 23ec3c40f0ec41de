// Package gate runs the verification cycle: wait for motion, capture one
// frame, match it against the enrolled identities, then either pulse the
// indicator or escalate to a human.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/gatekeeper/internal/camera"
	"github.com/kozaktomas/gatekeeper/internal/constants"
	"github.com/kozaktomas/gatekeeper/internal/escalation"
	"github.com/kozaktomas/gatekeeper/internal/identity"
	"github.com/kozaktomas/gatekeeper/internal/matcher"
	"github.com/kozaktomas/gatekeeper/internal/motion"
)

// ErrMotionTimeout means no motion arrived within the configured timeout.
var ErrMotionTimeout = errors.New("no motion before timeout")

// IdentitySource provides the snapshot of enrolled identities for a cycle.
// *identity.Store satisfies it.
type IdentitySource interface {
	List() ([]identity.Identity, error)
}

// Indicator is the unlock signal. *actuator.Indicator satisfies it.
type Indicator interface {
	Pulse(ctx context.Context, dwell time.Duration) error
	Release() error
}

// Escalator alerts a human. *escalation.Service satisfies it.
type Escalator interface {
	Escalate(ctx context.Context, alert escalation.Alert) escalation.Report
}

// Settings are the tunable values of a cycle.
type Settings struct {
	PollInterval time.Duration
	Dwell        time.Duration
	// MotionTimeout bounds the wait for motion; zero waits forever.
	MotionTimeout time.Duration
	Threshold     float64
	FeedURL       string
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		PollInterval: constants.DefaultPollInterval,
		Dwell:        constants.DefaultDwell,
		Threshold:    constants.DefaultDistanceThreshold,
	}
}

// Components are the collaborators owned by the controller for its lifetime.
type Components struct {
	Channel   motion.Channel
	Source    camera.Source
	Matcher   matcher.Matcher
	Store     IdentitySource
	Indicator Indicator
	Escalator Escalator
}

// Controller sequences the verification cycle.
type Controller struct {
	channel   motion.Channel
	source    camera.Source
	matcher   matcher.Matcher
	store     IdentitySource
	indicator Indicator
	escalator Escalator
	settings  Settings
	logger    *slog.Logger

	// channelFailures counts back-to-back cycles that ended on a motion
	// channel error; only the first of an outage is escalated.
	channelFailures int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a controller. Every component is required.
func New(components Components, settings Settings, opts ...Option) (*Controller, error) {
	switch {
	case components.Channel == nil:
		return nil, errors.New("motion channel is required")
	case components.Source == nil:
		return nil, errors.New("capture source is required")
	case components.Matcher == nil:
		return nil, errors.New("matcher is required")
	case components.Store == nil:
		return nil, errors.New("identity store is required")
	case components.Indicator == nil:
		return nil, errors.New("indicator is required")
	case components.Escalator == nil:
		return nil, errors.New("escalator is required")
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = constants.DefaultPollInterval
	}

	c := &Controller{
		channel:   components.Channel,
		source:    components.Source,
		matcher:   components.Matcher,
		store:     components.Store,
		indicator: components.Indicator,
		escalator: components.Escalator,
		settings:  settings,
		logger:    slog.Default(),
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes one cycle. Collaborator failures during the cycle are routed
// to escalation and recorded on the returned cycle, except that a motion
// channel that keeps failing is escalated only on the first cycle of the
// outage. The error is non-nil only when the identity store cannot be read
// or ctx is cancelled. The motion channel is reset and the indicator
// released before Run returns, on every path.
func (c *Controller) Run(ctx context.Context) (*Cycle, error) {
	cycle := &Cycle{ID: uuid.NewString(), StartedAt: c.now()}
	log := c.logger.With("cycle_id", cycle.ID)
	defer c.finish(cycle, log)

	snapshot, err := c.store.List()
	if err != nil {
		return cycle, fmt.Errorf("failed to load identities: %w", err)
	}

	c.enter(cycle, AwaitingMotion, log)
	msg, err := c.awaitMotion(ctx, log)
	switch {
	case err == nil:
		cycle.Motion = msg
	case errors.Is(err, ErrMotionTimeout):
		cycle.Outcome = Idle
		return cycle, nil
	case ctx.Err() != nil:
		return cycle, ctx.Err()
	default:
		cycle.Err = err
		cycle.Outcome = Unverified
		c.channelFailures++
		if c.channelFailures > 1 {
			log.Warn("motion channel still failing, alert already sent", "failures", c.channelFailures)
			return cycle, nil
		}
		c.escalate(ctx, cycle, log)
		return cycle, nil
	}

	c.enter(cycle, Capturing, log)
	frame, err := c.source.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cycle, ctx.Err()
		}
		cycle.Err = err
		cycle.Outcome = CaptureFailed
		c.escalate(ctx, cycle, log)
		return cycle, nil
	}
	cycle.Frame = frame

	c.enter(cycle, Matching, log)
	res, err := matcher.Verify(ctx, c.matcher, frame.Data, snapshot, c.settings.Threshold)
	cycle.Match = res
	switch {
	case err == nil:
		cycle.Outcome = Verified
	case errors.Is(err, matcher.ErrAmbiguousFace):
		cycle.Outcome = AmbiguousFace
		cycle.Err = err
	case errors.Is(err, matcher.ErrNoMatch):
		cycle.Outcome = Unverified
		cycle.Err = err
	default:
		if ctx.Err() != nil {
			return cycle, ctx.Err()
		}
		cycle.Outcome = Unverified
		cycle.Err = err
	}

	if cycle.Outcome != Verified {
		log.Info("face not verified", "outcome", cycle.Outcome.String(), "compared", res.Compared, "error", cycle.Err)
		c.escalate(ctx, cycle, log)
		return cycle, nil
	}

	log.Info("face verified",
		"identity", res.Identity.Name,
		"identity_id", res.Identity.ID,
		"distance", res.Distance,
	)
	c.enter(cycle, Actuating, log)
	if err := c.indicator.Pulse(ctx, c.settings.Dwell); err != nil {
		cycle.Err = err
		log.Error("indicator pulse failed", "error", err)
		if ctx.Err() != nil {
			return cycle, ctx.Err()
		}
	}
	return cycle, nil
}

// RunLoop runs cycles back to back until ctx is cancelled. Each cycle takes
// a fresh snapshot of the identities. While the motion channel keeps failing
// the next cycle is delayed by a growing backoff. It returns nil on
// cancellation and the error of the first cycle that fails outright otherwise.
func (c *Controller) RunLoop(ctx context.Context) error {
	for {
		_, err := c.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if d := c.channelBackoff(); d > 0 {
			if err := c.sleep(ctx, d); err != nil {
				return nil
			}
		}
	}
}

// channelBackoff doubles the poll interval for every failed cycle of the
// current outage, up to constants.MaxChannelBackoff.
func (c *Controller) channelBackoff() time.Duration {
	if c.channelFailures == 0 {
		return 0
	}
	d := c.settings.PollInterval
	for i := 1; i < c.channelFailures && d < constants.MaxChannelBackoff; i++ {
		d *= 2
	}
	return min(d, constants.MaxChannelBackoff)
}

func (c *Controller) awaitMotion(ctx context.Context, log *slog.Logger) (motion.Message, error) {
	var deadline time.Time
	if c.settings.MotionTimeout > 0 {
		deadline = c.now().Add(c.settings.MotionTimeout)
	}

	for {
		if !deadline.IsZero() && !c.now().Before(deadline) {
			log.Info("motion wait timed out", "timeout", c.settings.MotionTimeout)
			return motion.Message{}, ErrMotionTimeout
		}

		msg, ok, err := c.channel.Poll()
		if err != nil {
			log.Error("motion channel read failed", "error", err)
			return motion.Message{}, fmt.Errorf("motion channel: %w", err)
		}
		if c.channelFailures > 0 {
			log.Info("motion channel recovered", "failed_cycles", c.channelFailures)
			c.channelFailures = 0
		}
		if ok {
			switch msg.Event {
			case motion.Motion:
				log.Info("motion detected")
				return msg, nil
			case motion.NoMotion:
				log.Debug("no motion")
			default:
				log.Warn("ignoring unknown motion token", "raw", msg.Raw)
			}
			// drain buffered lines before sleeping
			continue
		}
		if err := c.sleep(ctx, c.settings.PollInterval); err != nil {
			return motion.Message{}, err
		}
	}
}

func (c *Controller) escalate(ctx context.Context, cycle *Cycle, log *slog.Logger) {
	c.enter(cycle, Escalating, log)
	alert := escalation.Alert{
		CycleID: cycle.ID,
		Outcome: cycle.Outcome.String(),
		FeedURL: c.settings.FeedURL,
		At:      c.now(),
	}
	if cycle.Err != nil {
		alert.Reason = cycle.Err.Error()
	}
	report := c.escalator.Escalate(ctx, alert)
	cycle.Escalation = &report
}

func (c *Controller) enter(cycle *Cycle, s State, log *slog.Logger) {
	cycle.States = append(cycle.States, s)
	log.Debug("state changed", "state", s.String())
}

// finish is the Done state. It runs on every return path of Run.
func (c *Controller) finish(cycle *Cycle, log *slog.Logger) {
	c.enter(cycle, Done, log)
	if err := c.channel.Reset(); err != nil {
		log.Warn("failed to reset motion channel", "error", err)
	}
	if err := c.indicator.Release(); err != nil {
		log.Error("failed to release indicator", "error", err)
	}
	cycle.EndedAt = c.now()
	log.Info("cycle finished",
		"outcome", cycle.Outcome.String(),
		"duration", cycle.EndedAt.Sub(cycle.StartedAt).Round(time.Millisecond),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
