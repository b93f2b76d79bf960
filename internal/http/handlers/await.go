package handlers

import (
	"context"
	"time"

	"github.com/yungbote/buoy-console/internal/datasets"
	"github.com/yungbote/buoy-console/internal/querycache"
)

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// awaitQuery binds q for at most wait. A view with data renders right away,
// even stale. The observer is detached rather than closed, so a fetch that
// outlives the wait still lands for the next render.
func awaitQuery[T any](ctx context.Context, c *querycache.Cache, q querycache.Query[T], wait time.Duration) querycache.Snapshot[T] {
	changed := make(chan struct{}, 1)
	o := querycache.Observe(ctx, c, q, func(s querycache.Snapshot[T]) {
		if !s.Loading() {
			signal(changed)
		}
	})
	defer o.Detach()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		snap := querycache.SnapshotOf[T](o.State())
		if !snap.Loading() {
			return snap
		}
		select {
		case <-changed:
		case <-timer.C:
			return querycache.SnapshotOf[T](o.State())
		case <-ctx.Done():
			return querycache.SnapshotOf[T](o.State())
		}
	}
}

type overviewState struct {
	Dataset  querycache.Snapshot[*datasets.Dataset]
	Pipeline querycache.Snapshot[*datasets.Pipeline]
	// HasPipeline reports whether the dataset names a pipeline at all.
	HasPipeline bool
}

// Loading reports whether the page still lacks something it can show.
func (o overviewState) Loading() bool {
	if o.Dataset.Loading() {
		return true
	}
	return o.HasPipeline && o.Pipeline.Loading()
}

// awaitOverview waits for the dataset, then lets the pipeline query follow it
// as a dependent edge: it stays disabled until the dataset names a pipeline.
func awaitOverview(ctx context.Context, st *datasets.Store, slug string, wait time.Duration) overviewState {
	deadline := time.Now().Add(wait)
	out := overviewState{Dataset: awaitQuery(ctx, st.Cache(), st.DatasetQuery(slug), wait)}
	if !out.Dataset.HasData {
		return out
	}

	changed := make(chan struct{}, 1)
	dep := st.DependPipeline(ctx, slug, func(querycache.Snapshot[*datasets.Pipeline]) { signal(changed) })
	defer dep.Detach()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	for {
		_, out.HasPipeline = dep.Param()
		out.Pipeline = dep.Child()
		if !out.HasPipeline || !out.Pipeline.Loading() {
			return out
		}
		select {
		case <-changed:
		case <-timer.C:
			return out
		case <-ctx.Done():
			return out
		}
	}
}
