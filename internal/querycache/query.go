package querycache

import "context"

// Fetcher loads the authoritative value for a key.
type Fetcher func(ctx context.Context) (any, error)

// Spec is the untyped declaration of a query.
type Spec struct {
	Key     Key
	Fetch   Fetcher
	Enabled bool
}

// Query declares how a typed resource is loaded. A query with Enabled=false
// is declared but disabled: it never fires and holds no value.
type Query[T any] struct {
	Key     Key
	Fetch   func(ctx context.Context) (T, error)
	Enabled bool
}

func (q Query[T]) Spec() Spec {
	var f Fetcher
	if q.Fetch != nil {
		fetch := q.Fetch
		f = func(ctx context.Context) (any, error) {
			v, err := fetch(ctx)
			if err != nil {
				return nil, err
			}
			return v, nil
		}
	}
	return Spec{Key: q.Key, Fetch: f, Enabled: q.Enabled && !q.Key.IsZero()}
}

// Read returns the cached snapshot immediately, starting a fetch when the
// entry has no value or is stale.
func Read[T any](ctx context.Context, c *Cache, q Query[T]) Snapshot[T] {
	return SnapshotOf[T](c.Read(ctx, q.Spec()))
}

// Mount is Read for a view being (re)opened: a previously failed query is
// attempted again.
func Mount[T any](ctx context.Context, c *Cache, q Query[T]) Snapshot[T] {
	return SnapshotOf[T](c.Mount(ctx, q.Spec()))
}

// Fetch blocks until the value is available. Fresh values return without a
// request; concurrent callers share one in-flight fetch.
func Fetch[T any](ctx context.Context, c *Cache, q Query[T]) (T, error) {
	var zero T
	spec := q.Spec()
	if !spec.Enabled {
		return zero, ErrDisabled
	}
	v, err := c.Fetch(ctx, spec)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, ErrTypeMismatch
	}
	return out, nil
}

// Peek returns the current snapshot without triggering anything.
func Peek[T any](c *Cache, key Key) Snapshot[T] {
	st, _ := c.Get(key)
	return SnapshotOf[T](st)
}

// Wait blocks until key has no in-flight fetch (or ctx ends) and returns the
// resulting snapshot.
func Wait[T any](ctx context.Context, c *Cache, key Key) Snapshot[T] {
	return SnapshotOf[T](c.Wait(ctx, key))
}
