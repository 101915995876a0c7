package chrome

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

const readyPollInterval = 25 * time.Millisecond

// readyProbe reports whether the document finished loading.
type readyProbe func(ctx context.Context) (bool, error)

// networkTracker counts in-flight requests of one tab.
type networkTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	last     time.Time
	now      func() time.Time
}

func newNetworkTracker() *networkTracker {
	return &networkTracker{
		inflight: make(map[network.RequestID]struct{}),
		last:     time.Now(),
		now:      time.Now,
	}
}

func (n *networkTracker) observe(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		n.started(e.RequestID)
	case *network.EventLoadingFinished:
		n.finished(e.RequestID)
	case *network.EventLoadingFailed:
		n.finished(e.RequestID)
	}
}

func (n *networkTracker) started(id network.RequestID) {
	n.mu.Lock()
	n.inflight[id] = struct{}{}
	n.last = n.now()
	n.mu.Unlock()
}

func (n *networkTracker) finished(id network.RequestID) {
	n.mu.Lock()
	delete(n.inflight, id)
	n.last = n.now()
	n.mu.Unlock()
}

// idleFor reports whether nothing is in flight and nothing happened for d.
func (n *networkTracker) idleFor(d time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inflight) == 0 && n.now().Sub(n.last) >= d
}

// waitForRenderReady blocks until the document is complete and the network
// has been quiet for the given window, or ctx ends.
func waitForRenderReady(ctx context.Context, ready readyProbe, net *networkTracker, quiet time.Duration) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := ready(ctx)
		if err != nil {
			return err
		}
		if ok && net.idleFor(quiet) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
