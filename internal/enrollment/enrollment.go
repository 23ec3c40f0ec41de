// Package enrollment registers and removes the people the gate recognizes.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/gatekeeper/internal/camera"
	"github.com/kozaktomas/gatekeeper/internal/identity"
	"github.com/kozaktomas/gatekeeper/internal/matcher"
)

// Registry is the part of the identity store used by enrollment.
// *identity.Store satisfies it.
type Registry interface {
	Find(name string) (identity.Identity, bool, error)
	Add(name string, descriptor identity.Descriptor, image []byte) (identity.Identity, error)
	Remove(name string) (bool, error)
	List() ([]identity.Identity, error)
}

// Enroller captures a reference frame and stores the descriptor of the one
// face it shows.
type Enroller struct {
	source   camera.Source
	matcher  matcher.Matcher
	registry Registry
}

// New creates an enroller.
func New(source camera.Source, m matcher.Matcher, registry Registry) *Enroller {
	return &Enroller{source: source, matcher: m, registry: registry}
}

// Enroll registers name. The name is checked before the camera is opened, so
// a duplicate never costs a capture. The frame must show exactly one face.
func (e *Enroller) Enroll(ctx context.Context, name string) (identity.Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return identity.Identity{}, identity.ErrEmptyName
	}

	if existing, found, err := e.registry.Find(name); err != nil {
		return identity.Identity{}, err
	} else if found {
		return identity.Identity{}, fmt.Errorf("%w: %q is enrolled as %s", identity.ErrDuplicateIdentity, existing.Name, existing.ID)
	}

	frame, err := e.source.Capture(ctx)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("failed to capture reference frame: %w", err)
	}

	descriptors, err := e.matcher.ExtractDescriptors(ctx, frame.Data)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("descriptor extraction failed: %w", err)
	}
	descriptor, err := matcher.SingleDescriptor(descriptors)
	if err != nil {
		return identity.Identity{}, err
	}

	return e.registry.Add(name, descriptor, frame.Data)
}

// Remove deletes every identity named name. It reports false when nothing
// matched.
func (e *Enroller) Remove(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, identity.ErrEmptyName
	}
	return e.registry.Remove(name)
}

// List returns the enrolled identities.
func (e *Enroller) List() ([]identity.Identity, error) {
	return e.registry.List()
}

// Describe turns an enrollment error into a message for the operator.
func Describe(err error) string {
	switch {
	case errors.Is(err, identity.ErrEmptyName):
		return "Name cannot be empty."
	case errors.Is(err, identity.ErrDuplicateIdentity):
		return "A person with this name is already registered."
	case errors.Is(err, matcher.ErrAmbiguousFace):
		return "Exactly one face must be visible."
	case errors.Is(err, camera.ErrDeviceUnavailable):
		return "Camera not accessible."
	case errors.Is(err, camera.ErrCaptureFailure):
		return "Failed to capture image."
	case errors.Is(err, identity.ErrStoreCorrupt):
		return "The identity store is corrupt and was left untouched: " + err.Error()
	default:
		return err.Error()
	}
}
