package camera

import (
	"context"
	"sync"
)

// Shared serializes captures from several users of one device, such as the
// gate cycle and the live feed running in the same process.
type Shared struct {
	mu     *sync.Mutex
	source Source
}

// NewShared wraps source so that only one capture runs at a time.
func NewShared(source Source) *Shared {
	return &Shared{mu: &sync.Mutex{}, source: source}
}

// With returns a source that captures from other but takes the same lock.
// It lets users of one device keep different capture settings, like the
// feed grabbing frames without warm-up.
func (s *Shared) With(other Source) *Shared {
	return &Shared{mu: s.mu, source: other}
}

// Capture waits for any capture in progress, then grabs a frame.
func (s *Shared) Capture(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source.Capture(ctx)
}
