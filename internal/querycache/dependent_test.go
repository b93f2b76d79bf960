package querycache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
)

type testDataset struct {
	Slug     string
	Pipeline *int64
}

func selectPipeline(d *testDataset) (int64, bool) {
	if d == nil || d.Pipeline == nil {
		return 0, false
	}
	return *d.Pipeline, true
}

func TestDependentFiresOnceWhenParamResolves(t *testing.T) {
	c := newTestCache(t, Options{})
	var current atomic.Pointer[testDataset]
	current.Store(&testDataset{Slug: "buoy_a"})

	parent := Query[*testDataset]{
		Key:     NewKey("dataset", "buoy_a"),
		Enabled: true,
		Fetch: func(ctx context.Context) (*testDataset, error) {
			return current.Load(), nil
		},
	}
	var childCalls atomic.Int32
	build := func(id int64) Query[string] {
		return stringQuery(NewKey("pipeline", id), func(ctx context.Context) (string, error) {
			childCalls.Add(1)
			return fmt.Sprintf("pipeline-%d", id), nil
		})
	}

	d := Depend(context.Background(), c, parent, selectPipeline, build, nil)
	defer d.Close()

	waitFor(t, "parent load", func() bool { return d.Parent().HasData })
	if !d.Child().Disabled {
		t.Fatalf("child must stay disabled while the parameter is unresolved")
	}
	if _, ok := c.Get(NewKey("pipeline", 3)); ok {
		t.Fatalf("disabled child created an entry")
	}

	id := int64(3)
	current.Store(&testDataset{Slug: "buoy_a", Pipeline: &id})
	c.Invalidate(parent.Key)
	waitFor(t, "child load", func() bool { return d.Child().Data == "pipeline-3" })

	for i := 0; i < 5; i++ {
		if err := c.Refetch(context.Background(), parent.Key); err != nil {
			t.Fatalf("Refetch: %v", err)
		}
	}
	if got := childCalls.Load(); got != 1 {
		t.Fatalf("child fetches=%d want=1", got)
	}
	if p, ok := d.Param(); !ok || p != 3 {
		t.Fatalf("param=%v,%v want=3,true", p, ok)
	}
	if d.ChildKey() != NewKey("pipeline", 3) {
		t.Fatalf("child key=%s", d.ChildKey())
	}
}

func TestDependentFollowsParameterChange(t *testing.T) {
	c := newTestCache(t, Options{})
	first, second := int64(1), int64(2)
	var current atomic.Pointer[testDataset]
	current.Store(&testDataset{Slug: "buoy_a", Pipeline: &first})

	parent := Query[*testDataset]{
		Key:     NewKey("dataset", "buoy_a"),
		Enabled: true,
		Fetch: func(ctx context.Context) (*testDataset, error) {
			return current.Load(), nil
		},
	}
	build := func(id int64) Query[string] {
		return stringQuery(NewKey("pipeline", id), func(ctx context.Context) (string, error) {
			return fmt.Sprintf("pipeline-%d", id), nil
		})
	}

	var last atomic.Value
	d := Depend(context.Background(), c, parent, selectPipeline, build, func(s Snapshot[string]) {
		if s.HasData {
			last.Store(s.Data)
		}
	})
	defer d.Close()
	waitFor(t, "first pipeline", func() bool { return last.Load() == "pipeline-1" })

	current.Store(&testDataset{Slug: "buoy_a", Pipeline: &second})
	c.Invalidate(parent.Key)
	waitFor(t, "second pipeline", func() bool { return last.Load() == "pipeline-2" })

	current.Store(&testDataset{Slug: "buoy_a"})
	c.Invalidate(parent.Key)
	waitFor(t, "child disabled again", func() bool { return d.Child().Disabled })
}
