package camera

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type overlapSource struct {
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (o *overlapSource) Capture(ctx context.Context) (Frame, error) {
	n := o.active.Add(1)
	defer o.active.Add(-1)
	for {
		seen := o.maxSeen.Load()
		if n <= seen || o.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return Frame{Data: fakeJPEG}, nil
}

func TestShared_SerializesCaptures(t *testing.T) {
	inner := &overlapSource{}
	gate := NewShared(inner)
	feed := gate.With(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		src := gate
		if i%2 == 1 {
			src = feed
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := src.Capture(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := inner.maxSeen.Load(); got != 1 {
		t.Errorf("expected captures one at a time, saw %d at once", got)
	}
}
