package browser

import (
	"context"
	"sync"
	"time"

	"github.com/hazyhaar/evidence/capture/engine"
)

// idleTracker counts in-flight requests from network events and lets a
// caller wait for the count to stay below a threshold for a quiet window.
// Every start/finish restarts the window, the way puppeteer's network-idle
// waits do.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	changed  chan struct{} // closed and replaced on every change
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight: make(map[string]struct{}),
		changed:  make(chan struct{}),
	}
}

// started marks id in flight. Redirect hops reuse the request ID and count
// once.
func (t *idleTracker) started(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.notifyLocked()
}

func (t *idleTracker) finished(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[id]; !ok {
		return
	}
	delete(t.inflight, id)
	t.notifyLocked()
}

func (t *idleTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

func (t *idleTracker) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// wait blocks until fewer than below requests stay in flight for quiet.
func (t *idleTracker) wait(ctx context.Context, below int, quiet, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		t.mu.Lock()
		idle := len(t.inflight) < below
		changed := t.changed
		t.mu.Unlock()

		var quietC <-chan time.Time
		var quietTimer *time.Timer
		if idle {
			quietTimer = time.NewTimer(quiet)
			quietC = quietTimer.C
		}

		select {
		case <-quietC:
			return nil
		case <-changed:
		case <-deadline.C:
			if quietTimer != nil {
				quietTimer.Stop()
			}
			return engine.ErrIdleTimeout
		case <-ctx.Done():
			if quietTimer != nil {
				quietTimer.Stop()
			}
			return ctx.Err()
		}
		if quietTimer != nil {
			quietTimer.Stop()
		}
	}
}
