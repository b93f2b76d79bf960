package querycache

import (
	"context"
	"sync"
)

// Dependent is an edge in the query graph: a child query whose parameter is
// selected from a parent query's value. The child stays disabled until the
// parameter resolves, is enabled exactly once per distinct parameter, and is
// only re-evaluated when the parent's value version changes.
type Dependent[P any, K comparable, T any] struct {
	parent *Observer
	child  *Observer

	sel      func(P) (K, bool)
	build    func(K) Query[T]
	onChange func(Snapshot[T])

	mu       sync.Mutex
	seen     bool
	version  uint64
	param    K
	resolved bool
	seq      uint64

	applyMu sync.Mutex
	applied uint64
}

func Depend[P any, K comparable, T any](
	ctx context.Context,
	c *Cache,
	parent Query[P],
	sel func(P) (K, bool),
	build func(K) Query[T],
	onChange func(Snapshot[T]),
) *Dependent[P, K, T] {
	d := &Dependent[P, K, T]{sel: sel, build: build, onChange: onChange}
	d.child = c.Observe(ctx, Spec{}, d.childChanged)
	d.parent = c.Observe(ctx, parent.Spec(), d.parentChanged)
	return d
}

func (d *Dependent[P, K, T]) parentChanged(st State) {
	spec, seq, ok := d.evaluate(st)
	if !ok {
		return
	}
	// Child updates are applied in evaluation order; a late evaluation for an
	// older parent version never replaces a newer parameter.
	d.applyMu.Lock()
	defer d.applyMu.Unlock()
	if seq <= d.applied {
		return
	}
	d.applied = seq
	d.child.SetSpec(spec)
}

func (d *Dependent[P, K, T]) evaluate(st State) (Spec, uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !st.HasValue {
		return Spec{}, 0, false
	}
	if d.seen && st.Version <= d.version {
		return Spec{}, 0, false
	}
	d.seen, d.version = true, st.Version

	p, ok := st.Value.(P)
	if !ok {
		return Spec{}, 0, false
	}
	k, ok := d.sel(p)
	if !ok {
		if !d.resolved {
			return Spec{}, 0, false
		}
		var zero K
		d.param, d.resolved = zero, false
		d.seq++
		return Spec{}, d.seq, true
	}
	if d.resolved && k == d.param {
		return Spec{}, 0, false
	}
	d.param, d.resolved = k, true
	d.seq++
	return d.build(k).Spec(), d.seq, true
}

func (d *Dependent[P, K, T]) childChanged(st State) {
	if d.onChange != nil {
		d.onChange(SnapshotOf[T](st))
	}
}

func (d *Dependent[P, K, T]) Parent() Snapshot[P] { return SnapshotOf[P](d.parent.State()) }
func (d *Dependent[P, K, T]) Child() Snapshot[T]  { return SnapshotOf[T](d.child.State()) }

// Param returns the parameter the child currently runs with.
func (d *Dependent[P, K, T]) Param() (K, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.param, d.resolved
}

func (d *Dependent[P, K, T]) ParentKey() Key { return d.parent.Key() }
func (d *Dependent[P, K, T]) ChildKey() Key  { return d.child.Key() }

func (d *Dependent[P, K, T]) Close() {
	d.parent.Close()
	d.child.Close()
}

func (d *Dependent[P, K, T]) Detach() {
	d.parent.Detach()
	d.child.Detach()
}
