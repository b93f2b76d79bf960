package querycache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type countingHooks struct {
	nopHooks
	started   atomic.Int32
	finished  atomic.Int32
	discarded atomic.Int32
	joined    atomic.Int32
}

func (h *countingHooks) FetchStarted(string)                        { h.started.Add(1) }
func (h *countingHooks) FetchFinished(string, error, time.Duration) { h.finished.Add(1) }
func (h *countingHooks) Discarded(string)                           { h.discarded.Add(1) }
func (h *countingHooks) Joined(string)                              { h.joined.Add(1) }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	if opts.StaleTime == 0 {
		opts.StaleTime = time.Hour
	}
	c := New(opts)
	t.Cleanup(c.Close)
	return c
}
