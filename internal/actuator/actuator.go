// Package actuator drives the indicator line that signals an unlock. The line
// is HIGH while active and LOW when idle.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ErrPinUnavailable means the GPIO line could not be found or initialized.
var ErrPinUnavailable = errors.New("indicator pin unavailable")

// Line is a binary output. gpio.PinOut satisfies it.
type Line interface {
	Out(l gpio.Level) error
}

// Indicator owns one output line.
type Indicator struct {
	line  Line
	name  string
	sleep func(ctx context.Context, d time.Duration) error
}

// New wraps an output line and drives it LOW.
func New(line Line, name string) (*Indicator, error) {
	ind := &Indicator{line: line, name: name, sleep: sleepContext}
	if err := ind.Release(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPinUnavailable, name, err)
	}
	return ind, nil
}

// OpenGPIO initializes the host drivers and opens the named pin (e.g. "GPIO17").
func OpenGPIO(name string) (*Indicator, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: host init: %v", ErrPinUnavailable, err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: no pin named %q", ErrPinUnavailable, name)
	}
	return New(pin, name)
}

// Name returns the line name.
func (i *Indicator) Name() string {
	return i.name
}

// Pulse asserts the line, holds it for dwell and deasserts it. It blocks for
// the whole dwell. The line is driven LOW on every return path; a cancelled
// context shortens the hold.
func (i *Indicator) Pulse(ctx context.Context, dwell time.Duration) (err error) {
	if err := i.line.Out(gpio.High); err != nil {
		// the line may be half-set, try to bring it back to idle
		_ = i.line.Out(gpio.Low)
		return fmt.Errorf("failed to assert %s: %w", i.name, err)
	}
	defer func() {
		if lowErr := i.line.Out(gpio.Low); lowErr != nil && err == nil {
			err = fmt.Errorf("failed to deassert %s: %w", i.name, lowErr)
		}
	}()
	if err := i.sleep(ctx, dwell); err != nil {
		return fmt.Errorf("pulse on %s interrupted: %w", i.name, err)
	}
	return nil
}

// Release drives the line to its idle LOW state.
func (i *Indicator) Release() error {
	return i.line.Out(gpio.Low)
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
