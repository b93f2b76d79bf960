package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/buoy-console/internal/gateway"
)

func stringQuery(key Key, fn func(ctx context.Context) (string, error)) Query[string] {
	return Query[string]{Key: key, Enabled: true, Fetch: fn}
}

func TestFetchCollapsesConcurrentCallers(t *testing.T) {
	c := newTestCache(t, Options{})
	var calls, inflight, maxInflight atomic.Int32
	gate := make(chan struct{})

	q := stringQuery(NewKey("datasets"), func(ctx context.Context) (string, error) {
		calls.Add(1)
		cur := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			m := maxInflight.Load()
			if cur <= m || maxInflight.CompareAndSwap(m, cur) {
				break
			}
		}
		<-gate
		return "list", nil
	})

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Fetch(context.Background(), c, q)
			if err != nil {
				t.Errorf("Fetch: %v", err)
				return
			}
			results <- v
		}()
	}
	waitFor(t, "first fetch to start", func() bool { return calls.Load() == 1 })
	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(results)

	for v := range results {
		if v != "list" {
			t.Fatalf("got=%q want=list", v)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("network calls=%d want=1", got)
	}
	if got := maxInflight.Load(); got != 1 {
		t.Fatalf("max in-flight=%d want=1", got)
	}
}

func TestReadPendingThenValue(t *testing.T) {
	c := newTestCache(t, Options{})
	gate := make(chan struct{})
	q := stringQuery(NewKey("dataset", "buoy_a"), func(ctx context.Context) (string, error) {
		<-gate
		return "buoy_a", nil
	})

	snap := Read(context.Background(), c, q)
	if !snap.Loading() || !snap.Fetching {
		t.Fatalf("expected loading snapshot, got=%+v", snap)
	}
	close(gate)

	snap = Wait[string](context.Background(), c, q.Key)
	if !snap.IsSuccess() || snap.Data != "buoy_a" {
		t.Fatalf("unexpected snapshot after wait: %+v", snap)
	}

	again := Read(context.Background(), c, q)
	if again.Fetching || again.Data != "buoy_a" {
		t.Fatalf("fresh value must not refetch: %+v", again)
	}
}

func TestStaleValueServedWhileRevalidating(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, Options{StaleTime: time.Minute, Now: clock.Now})

	var n atomic.Int32
	gate := make(chan struct{}, 1)
	q := stringQuery(NewKey("pipelines"), func(ctx context.Context) (string, error) {
		if n.Add(1) == 1 {
			return "v1", nil
		}
		<-gate
		return "v2", nil
	})

	if _, err := Fetch(context.Background(), c, q); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	clock.Advance(2 * time.Minute)

	snap := Read(context.Background(), c, q)
	if snap.Data != "v1" || !snap.Fetching || !snap.Stale {
		t.Fatalf("expected stale v1 with background refresh, got=%+v", snap)
	}
	gate <- struct{}{}
	if got := Wait[string](context.Background(), c, q.Key); got.Data != "v2" {
		t.Fatalf("after refresh got=%q want=v2", got.Data)
	}
}

func TestDisabledQueryNeverFires(t *testing.T) {
	c := newTestCache(t, Options{})
	var calls atomic.Int32
	q := Query[string]{
		Key:     NewKey("pipeline", 3),
		Enabled: false,
		Fetch: func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "p", nil
		},
	}

	snap := Read(context.Background(), c, q)
	if !snap.Disabled || snap.HasData || snap.Fetching {
		t.Fatalf("unexpected disabled snapshot: %+v", snap)
	}
	if _, err := Fetch(context.Background(), c, q); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Fetch err=%v want ErrDisabled", err)
	}
	if c.Len() != 0 {
		t.Fatalf("disabled query must not create an entry")
	}
	if calls.Load() != 0 {
		t.Fatalf("disabled query fired")
	}
}

func TestErrorsAreIsolatedPerKey(t *testing.T) {
	c := newTestCache(t, Options{})
	boom := errors.New("boom")

	ok := stringQuery(NewKey("datasets"), func(ctx context.Context) (string, error) { return "list", nil })
	var failNext atomic.Bool
	bad := stringQuery(NewKey("pipelines"), func(ctx context.Context) (string, error) {
		if failNext.Load() {
			return "", boom
		}
		return "pipelines-v1", nil
	})

	if _, err := Fetch(context.Background(), c, ok); err != nil {
		t.Fatalf("Fetch ok: %v", err)
	}
	if _, err := Fetch(context.Background(), c, bad); err != nil {
		t.Fatalf("Fetch bad (first): %v", err)
	}

	failNext.Store(true)
	if err := c.Refetch(context.Background(), bad.Key); !errors.Is(err, boom) {
		t.Fatalf("Refetch err=%v want boom", err)
	}

	okSnap := Peek[string](c, ok.Key)
	if !okSnap.IsSuccess() || okSnap.Data != "list" {
		t.Fatalf("other key affected by failure: %+v", okSnap)
	}
	badSnap := Peek[string](c, bad.Key)
	if !badSnap.IsError() || !errors.Is(badSnap.Err, boom) {
		t.Fatalf("expected error status, got=%+v", badSnap)
	}
	if badSnap.Data != "pipelines-v1" {
		t.Fatalf("failed refetch must keep the previous value, got=%q", badSnap.Data)
	}
}

func TestUnauthorizedNeverWritesValue(t *testing.T) {
	c := newTestCache(t, Options{})
	q := stringQuery(NewKey("datasets"), func(ctx context.Context) (string, error) {
		return "", &gateway.UnauthorizedError{LoginURL: "/backend/login/?next=%2Fmanage%2F"}
	})

	_, err := Fetch(context.Background(), c, q)
	if _, ok := gateway.IsUnauthorized(err); !ok {
		t.Fatalf("expected unauthorized error, got=%v", err)
	}
	snap := Peek[string](c, q.Key)
	if snap.HasData {
		t.Fatalf("unauthorized fetch wrote a value: %+v", snap)
	}
}

func TestReadDoesNotRetryFailuresButMountDoes(t *testing.T) {
	c := newTestCache(t, Options{})
	var calls atomic.Int32
	q := stringQuery(NewKey("datasets"), func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("down")
	})

	Read(context.Background(), c, q)
	Wait[string](context.Background(), c, q.Key)
	for i := 0; i < 3; i++ {
		if snap := Read(context.Background(), c, q); snap.Fetching {
			t.Fatalf("re-render retried a failed query")
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d want=1", calls.Load())
	}

	if snap := Mount(context.Background(), c, q); !snap.Fetching {
		t.Fatalf("mount must retry a failed query")
	}
	Wait[string](context.Background(), c, q.Key)
	if calls.Load() != 2 {
		t.Fatalf("calls=%d want=2", calls.Load())
	}
}

func TestInvalidateRefetchesEagerly(t *testing.T) {
	c := newTestCache(t, Options{})
	var version atomic.Int32
	version.Store(1)
	q := stringQuery(NewKey("dataset", "buoy_a"), func(ctx context.Context) (string, error) {
		if version.Load() == 1 {
			return "v1", nil
		}
		return "v2", nil
	})

	if v, _ := Fetch(context.Background(), c, q); v != "v1" {
		t.Fatalf("got=%q want=v1", v)
	}
	version.Store(2)
	c.Invalidate(q.Key)

	waitFor(t, "refetched value", func() bool { return Peek[string](c, q.Key).Data == "v2" })
}

func TestInvalidateDuringFetchQueuesFollowUp(t *testing.T) {
	c := newTestCache(t, Options{})
	var calls, inflight, maxInflight atomic.Int32
	gate := make(chan struct{})
	q := stringQuery(NewKey("dataset", "buoy_a"), func(ctx context.Context) (string, error) {
		n := calls.Add(1)
		if cur := inflight.Add(1); cur > maxInflight.Load() {
			maxInflight.Store(cur)
		}
		defer inflight.Add(-1)
		if n == 1 {
			<-gate
			return "before-mutation", nil
		}
		return "after-mutation", nil
	})

	Read(context.Background(), c, q)
	waitFor(t, "first fetch", func() bool { return calls.Load() == 1 })
	c.Invalidate(q.Key)
	close(gate)

	waitFor(t, "follow-up fetch", func() bool { return Peek[string](c, q.Key).Data == "after-mutation" })
	if calls.Load() != 2 {
		t.Fatalf("calls=%d want=2", calls.Load())
	}
	if maxInflight.Load() != 1 {
		t.Fatalf("max in-flight=%d want=1", maxInflight.Load())
	}
}

func TestRefetchWaitsForDataNewerThanTheCall(t *testing.T) {
	c := newTestCache(t, Options{})
	var calls atomic.Int32
	gate := make(chan struct{})
	q := stringQuery(NewKey("dataset", "buoy_a"), func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-gate
			return "old", nil
		}
		return "new", nil
	})

	Read(context.Background(), c, q)
	waitFor(t, "first fetch", func() bool { return calls.Load() == 1 })

	errCh := make(chan error, 1)
	go func() { errCh <- c.Refetch(context.Background(), q.Key) }()
	time.Sleep(10 * time.Millisecond)
	close(gate)

	if err := <-errCh; err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if got := Peek[string](c, q.Key).Data; got != "new" {
		t.Fatalf("after Refetch got=%q want=new", got)
	}
}

func TestRefetchUnknownKey(t *testing.T) {
	c := newTestCache(t, Options{})
	if err := c.Refetch(context.Background(), NewKey("dataset", "nope")); !errors.Is(err, ErrNoFetcher) {
		t.Fatalf("err=%v want ErrNoFetcher", err)
	}
}

func TestAbandonedFetchIsDiscarded(t *testing.T) {
	hooks := &countingHooks{}
	c := newTestCache(t, Options{Hooks: hooks})
	started := make(chan struct{})
	q := stringQuery(NewKey("dataset", "buoy_a"), func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "late", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	if _, err := Fetch(ctx, c, q); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}

	waitFor(t, "late result to land", func() bool { return hooks.finished.Load() >= 1 && hooks.discarded.Load() >= 1 })
	if got := hooks.discarded.Load(); got != 1 {
		t.Fatalf("discards got=%d want=1", got)
	}
	snap := Peek[string](c, q.Key)
	if snap.HasData || snap.Err != nil || snap.Fetching {
		t.Fatalf("abandoned fetch left state behind: %+v", snap)
	}
}

func TestSetDataReplacesValue(t *testing.T) {
	c := newTestCache(t, Options{})
	key := NewKey("datasets")
	var got []uint64
	var mu sync.Mutex
	unsub := c.Subscribe(key, func(st State) {
		mu.Lock()
		got = append(got, st.Version)
		mu.Unlock()
	})
	defer unsub()

	c.SetData(key, []string{"a"})
	c.SetData(key, []string{"a", "b"})

	snap := Peek[[]string](c, key)
	if len(snap.Data) != 2 || snap.Version != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("listener versions=%v", got)
	}
}

func TestSweepRemovesIdleEntries(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, Options{GCTime: time.Minute, Now: clock.Now})

	idle := stringQuery(NewKey("pipelines"), func(ctx context.Context) (string, error) { return "p", nil })
	watched := stringQuery(NewKey("datasets"), func(ctx context.Context) (string, error) { return "d", nil })
	if _, err := Fetch(context.Background(), c, idle); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	o := Observe(context.Background(), c, watched, nil)
	defer o.Close()
	Wait[string](context.Background(), c, watched.Key)

	clock.Advance(2 * time.Minute)
	if n := c.Sweep(); n != 1 {
		t.Fatalf("swept=%d want=1", n)
	}
	if _, ok := c.Get(idle.Key); ok {
		t.Fatalf("idle entry survived sweep")
	}
	if _, ok := c.Get(watched.Key); !ok {
		t.Fatalf("observed entry was swept")
	}
}

func TestInvalidateTag(t *testing.T) {
	c := newTestCache(t, Options{})
	var calls atomic.Int32
	mk := func(slug string) Query[string] {
		return stringQuery(NewKey("dataset", slug), func(ctx context.Context) (string, error) {
			calls.Add(1)
			return slug, nil
		})
	}
	for _, slug := range []string{"a", "b"} {
		if _, err := Fetch(context.Background(), c, mk(slug)); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	other := stringQuery(NewKey("datasets"), func(ctx context.Context) (string, error) { return "x", nil })
	if _, err := Fetch(context.Background(), c, other); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	c.InvalidateTag("dataset")
	waitFor(t, "tagged refetches", func() bool { return calls.Load() == 4 })
	if st, _ := c.Get(other.Key); st.Fetching || st.Stale {
		t.Fatalf("untagged entry touched: %+v", st)
	}
}

func TestClosedCacheRefusesWork(t *testing.T) {
	c := New(Options{})
	c.Close()
	q := stringQuery(NewKey("datasets"), func(ctx context.Context) (string, error) { return "x", nil })
	if _, err := Fetch(context.Background(), c, q); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", err)
	}
}
