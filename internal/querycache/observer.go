package querycache

import (
	"context"
	"sync"
)

// Observer binds a view to one key at a time. Switching to another key drops
// the interest in the previous one: a fetch for the old key that nobody else
// wants is cancelled and never written. onChange may be called more than
// once for the same state and is never called after Close.
type Observer struct {
	c   *Cache
	ctx context.Context

	mu       sync.Mutex
	spec     Spec
	bound    bool
	unsub    func()
	held     *call
	closed   bool
	onChange func(State)
}

func (c *Cache) Observe(ctx context.Context, spec Spec, onChange func(State)) *Observer {
	if ctx == nil {
		ctx = context.Background()
	}
	o := &Observer{c: c, ctx: ctx, onChange: onChange}
	o.SetSpec(spec)
	return o
}

// Observe is the typed form of Cache.Observe.
func Observe[T any](ctx context.Context, c *Cache, q Query[T], onChange func(Snapshot[T])) *Observer {
	return c.Observe(ctx, q.Spec(), func(st State) {
		if onChange != nil {
			onChange(SnapshotOf[T](st))
		}
	})
}

// SetSpec points the observer at spec. Calling it again with the same key
// and enablement is a no-op, so repeated renders never refire a query.
func (o *Observer) SetSpec(spec Spec) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.bound && o.spec.Key == spec.Key && o.spec.Enabled == spec.Enabled {
		if spec.Fetch != nil {
			o.spec.Fetch = spec.Fetch
		}
		o.mu.Unlock()
		return
	}

	oldKey, oldHeld, oldUnsub := o.spec.Key, o.held, o.unsub
	o.spec, o.bound, o.held, o.unsub = spec, true, nil, nil

	var (
		st      State
		deliver = func() {}
	)
	if spec.Enabled {
		o.unsub = o.c.Subscribe(spec.Key, o.handle)
		st, o.held, deliver = o.c.acquire(o.ctx, spec)
	} else {
		st = o.c.disabledState(spec.Key)
	}
	o.mu.Unlock()

	if oldUnsub != nil {
		oldUnsub()
	}
	o.c.release(oldKey, oldHeld)
	deliver()
	o.emit(st)
}

// State is the current state of the observed key.
func (o *Observer) State() State {
	o.mu.Lock()
	spec := o.spec
	o.mu.Unlock()
	if !spec.Enabled {
		return o.c.disabledState(spec.Key)
	}
	st, _ := o.c.Get(spec.Key)
	return st
}

func (o *Observer) Key() Key {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.spec.Key
}

// Close tears the observer down. A fetch only this observer was waiting for
// is cancelled and its result discarded.
func (o *Observer) Close() {
	unsub, key, held, ok := o.shut()
	if !ok {
		return
	}
	if unsub != nil {
		unsub()
	}
	o.c.release(key, held)
}

// Detach stops notifications but lets an in-flight fetch finish and land in
// the cache, for views that will come back for the value.
func (o *Observer) Detach() {
	unsub, key, held, ok := o.shut()
	if !ok {
		return
	}
	if unsub != nil {
		unsub()
	}
	o.c.pin(key, held)
}

func (o *Observer) shut() (func(), Key, *call, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, Key{}, nil, false
	}
	o.closed = true
	unsub, held := o.unsub, o.held
	o.unsub, o.held = nil, nil
	return unsub, o.spec.Key, held, true
}

// handle re-reads the entry instead of trusting the pushed state, so
// notifications racing across goroutines never move a view backwards.
func (o *Observer) handle(pushed State) {
	o.mu.Lock()
	if o.closed || !o.spec.Enabled || pushed.Key != o.spec.Key {
		o.mu.Unlock()
		return
	}
	key := o.spec.Key
	o.mu.Unlock()

	st, ok := o.c.Get(key)
	if !ok {
		st = pushed
	}
	o.emit(st)
}

func (o *Observer) emit(st State) {
	o.mu.Lock()
	if o.closed || st.Key != o.spec.Key {
		o.mu.Unlock()
		return
	}
	fn := o.onChange
	o.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
