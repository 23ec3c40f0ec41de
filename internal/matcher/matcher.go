// Package matcher holds the face-matching policy of the gate. Descriptor
// extraction is delegated to a Matcher implementation; this package decides
// what counts as a match.
package matcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/gatekeeper/internal/identity"
)

var (
	// ErrAmbiguousFace means the frame did not show exactly one face.
	ErrAmbiguousFace = errors.New("exactly one face must be visible")
	// ErrNoMatch means no enrolled identity is within the distance threshold.
	ErrNoMatch = errors.New("face not verified")
)

// Matcher extracts face descriptors from an image and compares them.
type Matcher interface {
	// ExtractDescriptors returns one descriptor per face found in the JPEG image.
	ExtractDescriptors(ctx context.Context, image []byte) ([]identity.Descriptor, error)
	// Distance compares two descriptors on the matcher's native scale.
	Distance(a, b identity.Descriptor) float64
}

// Result is the outcome of comparing one probe against the store.
type Result struct {
	Matched  bool
	Identity identity.Identity
	Distance float64
	// Compared is the number of stored identities the probe was compared with.
	Compared int
}

// SingleDescriptor enforces the one-face policy: anything but exactly one
// descriptor is ErrAmbiguousFace.
func SingleDescriptor(descriptors []identity.Descriptor) (identity.Descriptor, error) {
	if len(descriptors) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrAmbiguousFace, len(descriptors))
	}
	return descriptors[0], nil
}

// Closest compares the probe with every identity and returns the one with the
// smallest distance that is still within threshold. The result does not
// depend on the order of identities except for exact distance ties, which go
// to the lexically smaller id. A NaN distance is never a match. Without a
// match the error is ErrNoMatch.
func Closest(probe identity.Descriptor, identities []identity.Identity, distance DistanceFunc, threshold float64) (Result, error) {
	res := Result{Compared: len(identities)}
	for _, ident := range identities {
		d := distance(probe, ident.Descriptor)
		// written so that a NaN distance never matches
		if !(d <= threshold) {
			continue
		}
		if !res.Matched || d < res.Distance || (d == res.Distance && ident.ID < res.Identity.ID) {
			res.Matched = true
			res.Identity = ident
			res.Distance = d
		}
	}
	if !res.Matched {
		return res, ErrNoMatch
	}
	return res, nil
}

// Verify runs the whole matching step for one frame: extraction, the one-face
// policy and the closest-match search.
func Verify(ctx context.Context, m Matcher, image []byte, identities []identity.Identity, threshold float64) (Result, error) {
	descriptors, err := m.ExtractDescriptors(ctx, image)
	if err != nil {
		return Result{}, fmt.Errorf("descriptor extraction failed: %w", err)
	}
	probe, err := SingleDescriptor(descriptors)
	if err != nil {
		return Result{}, err
	}
	return Closest(probe, identities, m.Distance, threshold)
}
