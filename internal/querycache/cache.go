// Package querycache keeps a session's view of backend resources: one entry
// per key, at most one in-flight fetch per key, explicit invalidation and
// subscription lists that drive observers and dependent queries.
//
// Values stored in the cache are snapshots. They are replaced wholesale on
// every write and must be treated as read-only by callers.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yungbote/buoy-console/internal/platform/logger"
)

var (
	ErrDisabled     = errors.New("query is disabled")
	ErrNoFetcher    = errors.New("no fetcher registered for key")
	ErrTypeMismatch = errors.New("cached value has unexpected type")
	ErrClosed       = errors.New("cache closed")
)

type Options struct {
	// StaleTime is how long a successful value counts as fresh. Zero means
	// values are stale as soon as they land.
	StaleTime time.Duration
	// GCTime is how long an unobserved, idle entry survives Sweep. Zero
	// disables sweeping.
	GCTime time.Duration

	Now    func() time.Time
	Logger *logger.Logger
	Hooks  Hooks
}

type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	nextID  uint64
	closed  bool

	staleTime time.Duration
	gcTime    time.Duration
	now       func() time.Time
	log       *logger.Logger
	hooks     Hooks

	base   context.Context
	cancel context.CancelFunc
}

type entry struct {
	key       Key
	value     any
	hasValue  bool
	err       error
	status    Status
	version   uint64
	updatedAt time.Time
	lastUsed  time.Time

	invalidated   bool
	refetchQueued bool

	fetcher   Fetcher
	call      *call
	listeners map[uint64]func(State)
}

// call is one execution of a fetcher. refs counts interested parties that
// may walk away (blocking callers, observers); a pinned call is owned by the
// cache and always runs to completion.
type call struct {
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time

	value any
	err   error

	refs      int
	pinned    bool
	abandoned bool
	next      *call
}

func New(opts Options) *Cache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = nopHooks{}
	}
	base, cancel := context.WithCancel(context.Background())
	return &Cache{
		entries:   make(map[Key]*entry),
		staleTime: opts.StaleTime,
		gcTime:    opts.GCTime,
		now:       now,
		log:       log.With("component", "querycache"),
		hooks:     hooks,
		base:      base,
		cancel:    cancel,
	}
}

// Read returns the entry's current state without blocking. It starts a fetch
// when the entry was never loaded, has gone stale or was invalidated. A
// failed entry is not retried. ctx only contributes values (trace, request
// id) to a fetch it starts; its cancellation is ignored.
func (c *Cache) Read(ctx context.Context, spec Spec) State {
	return c.read(ctx, spec, false)
}

// Mount is Read for a view being opened; a failed entry is fetched again.
func (c *Cache) Mount(ctx context.Context, spec Spec) State {
	return c.read(ctx, spec, true)
}

func (c *Cache) read(ctx context.Context, spec Spec, mount bool) State {
	if !spec.Enabled {
		return c.disabledState(spec.Key)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{Key: spec.Key, Status: StatusError, Err: ErrClosed}
	}
	e := c.entryLocked(spec.Key)
	if spec.Fetch != nil {
		e.fetcher = spec.Fetch
	}
	e.lastUsed = c.now()

	var notify []func(State)
	if c.needsFetchLocked(e, mount) {
		cl := c.startLocked(e, ctx)
		cl.pinned = true
		notify = listenersLocked(e)
		c.hooks.Miss(e.key.Tag())
	} else if e.hasValue && !c.isStaleLocked(e) {
		c.hooks.Hit(e.key.Tag())
	}
	st := c.stateLocked(e)
	c.mu.Unlock()

	fire(notify, st)
	return st
}

// Fetch blocks until a value is available for spec.Key. A fresh cached value
// is returned immediately. Otherwise the caller joins the in-flight fetch or
// starts one. If ctx ends first the caller detaches, and a fetch nobody else
// is waiting for is cancelled and its result discarded.
func (c *Cache) Fetch(ctx context.Context, spec Spec) (any, error) {
	if !spec.Enabled {
		return nil, ErrDisabled
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entryLocked(spec.Key)
	if spec.Fetch != nil {
		e.fetcher = spec.Fetch
	}
	e.lastUsed = c.now()
	if e.hasValue && !c.isStaleLocked(e) {
		v := e.value
		c.mu.Unlock()
		c.hooks.Hit(spec.Key.Tag())
		return v, nil
	}
	if e.fetcher == nil && e.call == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoFetcher, spec.Key)
	}

	var notify []func(State)
	var st State
	if e.call == nil {
		c.startLocked(e, ctx)
		st = c.stateLocked(e)
		notify = listenersLocked(e)
		c.hooks.Miss(e.key.Tag())
	} else {
		c.hooks.Joined(e.key.Tag())
	}
	cl := e.call
	cl.refs++
	c.mu.Unlock()

	fire(notify, st)

	select {
	case <-cl.done:
		return cl.value, cl.err
	case <-ctx.Done():
		c.release(spec.Key, cl)
		return nil, ctx.Err()
	}
}

// Wait blocks until key has no fetch in flight, or ctx ends, and returns the
// state at that point. It never cancels anything.
func (c *Cache) Wait(ctx context.Context, key Key) State {
	for {
		c.mu.Lock()
		e := c.entries[key]
		if e == nil {
			c.mu.Unlock()
			return State{Key: key, Status: StatusPending}
		}
		cl := e.call
		st := c.stateLocked(e)
		c.mu.Unlock()
		if cl == nil {
			return st
		}
		select {
		case <-cl.done:
		case <-ctx.Done():
			st, _ := c.Get(key)
			return st
		}
	}
}

// Invalidate marks the entries stale and refetches every one that has a
// fetcher. An entry with a fetch in flight gets a follow-up fetch once the
// current one settles, so at most one request per key is ever running.
func (c *Cache) Invalidate(keys ...Key) {
	for _, k := range keys {
		c.mu.Lock()
		e := c.entries[k]
		if e == nil || c.closed {
			c.mu.Unlock()
			continue
		}
		e.invalidated = true
		var notify []func(State)
		if e.fetcher != nil {
			if e.call != nil {
				e.refetchQueued = true
			} else {
				cl := c.startLocked(e, nil)
				cl.pinned = true
				notify = listenersLocked(e)
			}
		}
		st := c.stateLocked(e)
		c.mu.Unlock()
		fire(notify, st)
	}
}

// InvalidateTag invalidates every entry whose key carries tag.
func (c *Cache) InvalidateTag(tag string) {
	c.mu.Lock()
	var keys []Key
	for k := range c.entries {
		if k.Tag() == tag {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	c.Invalidate(keys...)
}

// Refetch forces a fetch for key and waits for it. If a fetch is already in
// flight (possibly started before a mutation), Refetch waits for the
// follow-up fetch queued behind it, so the result is always newer than the call.
func (c *Cache) Refetch(ctx context.Context, key Key) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	e := c.entries[key]
	if e == nil || e.fetcher == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoFetcher, key)
	}
	e.invalidated = true
	var (
		cl, first *call
		notify    []func(State)
		st        State
	)
	if e.call == nil {
		cl = c.startLocked(e, ctx)
		cl.pinned = true
		st = c.stateLocked(e)
		notify = listenersLocked(e)
	} else {
		first = e.call
		e.refetchQueued = true
	}
	c.mu.Unlock()
	fire(notify, st)

	if first != nil {
		select {
		case <-first.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		cl = first.next
		closed := c.closed
		c.mu.Unlock()
		if cl == nil {
			if closed {
				return ErrClosed
			}
			return c.Refetch(ctx, key)
		}
	}

	select {
	case <-cl.done:
		return cl.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetData replaces the value for key wholesale.
func (c *Cache) SetData(key Key, value any) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	e := c.entryLocked(key)
	c.writeLocked(e, value)
	st := c.stateLocked(e)
	notify := listenersLocked(e)
	c.mu.Unlock()
	fire(notify, st)
}

// Subscribe registers fn for every state change of key.
func (c *Cache) Subscribe(key Key, fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.nextID++
	id := c.nextID
	e.listeners[id] = fn
	e.lastUsed = c.now()
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if cur := c.entries[key]; cur == e {
				delete(e.listeners, id)
				e.lastUsed = c.now()
			}
			c.mu.Unlock()
		})
	}
}

func (c *Cache) Get(key Key) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if e == nil {
		return State{Key: key, Status: StatusPending}, false
	}
	return c.stateLocked(e), true
}

// Entries lists every entry ordered by key.
func (c *Cache) Entries() []State {
	c.mu.Lock()
	out := make([]State, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, c.stateLocked(e))
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Remove drops key, cancelling its in-flight fetch.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	var cl *call
	if e := c.entries[key]; e != nil {
		cl = e.call
		delete(c.entries, key)
	}
	c.mu.Unlock()
	if cl != nil {
		cl.cancel()
	}
}

// Sweep removes entries nobody observes that have been idle for GCTime.
func (c *Cache) Sweep() int {
	if c.gcTime <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if len(e.listeners) == 0 && e.call == nil && now.Sub(e.lastUsed) >= c.gcTime {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Close cancels every in-flight fetch and drops all entries.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.entries = make(map[Key]*entry)
	c.mu.Unlock()
	c.cancel()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// acquire is the observer path: it mounts spec and takes a reference on the
// in-flight call. The returned func delivers deferred notifications and must
// be called without holding observer locks.
func (c *Cache) acquire(ctx context.Context, spec Spec) (State, *call, func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{Key: spec.Key, Status: StatusError, Err: ErrClosed}, nil, func() {}
	}
	e := c.entryLocked(spec.Key)
	if spec.Fetch != nil {
		e.fetcher = spec.Fetch
	}
	e.lastUsed = c.now()

	started := false
	if c.needsFetchLocked(e, true) {
		c.startLocked(e, ctx)
		started = true
		c.hooks.Miss(e.key.Tag())
	} else if e.call != nil {
		c.hooks.Joined(e.key.Tag())
	} else if e.hasValue {
		c.hooks.Hit(e.key.Tag())
	}
	var held *call
	if e.call != nil {
		e.call.refs++
		held = e.call
	}
	st := c.stateLocked(e)
	var notify []func(State)
	if started {
		notify = listenersLocked(e)
	}
	c.mu.Unlock()
	return st, held, func() { fire(notify, st) }
}

// release drops one reference on cl. The last reference on a call the cache
// does not own cancels it; its eventual result is discarded.
func (c *Cache) release(key Key, cl *call) {
	if cl == nil {
		return
	}
	c.mu.Lock()
	cl.refs--
	e := c.entries[key]
	if cl.refs > 0 || cl.pinned || e == nil || e.call != cl {
		c.mu.Unlock()
		return
	}
	e.call = nil
	cl.abandoned = true
	if e.refetchQueued && !c.closed {
		e.refetchQueued = false
		next := c.startLocked(e, cl.ctx)
		next.pinned = true
		cl.next = next
	}
	st := c.stateLocked(e)
	notify := listenersLocked(e)
	c.mu.Unlock()

	c.hooks.Discarded(key.Tag())
	cl.cancel()
	fire(notify, st)
}

// pin hands a held reference over to the cache so the fetch completes even
// though its observer went away.
func (c *Cache) pin(key Key, cl *call) {
	if cl == nil {
		return
	}
	c.mu.Lock()
	cl.refs--
	if e := c.entries[key]; e != nil && e.call == cl {
		cl.pinned = true
	}
	c.mu.Unlock()
}

func (c *Cache) startLocked(e *entry, origin context.Context) *call {
	parent := context.Background()
	if origin != nil {
		parent = context.WithoutCancel(origin)
	}
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.base, cancel)

	cl := &call{
		ctx:     ctx,
		cancel:  func() { stop(); cancel() },
		done:    make(chan struct{}),
		started: time.Now(),
	}
	e.call = cl
	fetch := e.fetcher
	key := e.key
	c.hooks.FetchStarted(key.Tag())

	go func() {
		var (
			v   any
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("fetch %s panicked: %v", key, r)
				}
			}()
			v, err = fetch(ctx)
		}()
		c.finish(key, cl, v, err)
	}()
	return cl
}

func (c *Cache) finish(key Key, cl *call, v any, err error) {
	c.mu.Lock()
	cl.value, cl.err = v, err
	e := c.entries[key]
	if e == nil || e.call != cl || c.closed {
		counted := cl.abandoned
		c.mu.Unlock()
		cl.cancel()
		close(cl.done)
		c.hooks.FetchFinished(key.Tag(), err, time.Since(cl.started))
		// release already reported an abandoned call.
		if !counted {
			c.hooks.Discarded(key.Tag())
		}
		return
	}

	e.call = nil
	if err != nil {
		e.err = err
		e.status = StatusError
		c.log.Debug("fetch failed", "key", key.String(), "error", err)
	} else {
		c.writeLocked(e, v)
	}
	if e.refetchQueued {
		e.refetchQueued = false
		next := c.startLocked(e, cl.ctx)
		next.pinned = true
		cl.next = next
	}
	st := c.stateLocked(e)
	notify := listenersLocked(e)
	c.mu.Unlock()

	c.hooks.FetchFinished(key.Tag(), err, time.Since(cl.started))
	cl.cancel()
	close(cl.done)
	fire(notify, st)
}

func (c *Cache) writeLocked(e *entry, v any) {
	e.value = v
	e.hasValue = true
	e.err = nil
	e.status = StatusSuccess
	e.version++
	e.updatedAt = c.now()
	e.lastUsed = e.updatedAt
	e.invalidated = false
}

func (c *Cache) entryLocked(key Key) *entry {
	e := c.entries[key]
	if e == nil {
		e = &entry{key: key, listeners: make(map[uint64]func(State))}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) disabledState(key Key) State {
	if key.IsZero() {
		return State{Status: StatusPending, Disabled: true}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if e == nil {
		return State{Key: key, Status: StatusPending, Disabled: true}
	}
	st := c.stateLocked(e)
	st.Disabled = true
	return st
}

func (c *Cache) isStaleLocked(e *entry) bool {
	if !e.hasValue || e.invalidated {
		return true
	}
	return c.now().Sub(e.updatedAt) >= c.staleTime
}

// needsFetchLocked: never-loaded and invalidated entries always fetch, stale
// successful entries fetch, failed entries only fetch when a view mounts them.
func (c *Cache) needsFetchLocked(e *entry, mount bool) bool {
	if e.call != nil || e.fetcher == nil {
		return false
	}
	if e.invalidated {
		return true
	}
	switch e.status {
	case StatusPending:
		return true
	case StatusError:
		return mount
	default:
		return c.isStaleLocked(e)
	}
}

func (c *Cache) stateLocked(e *entry) State {
	return State{
		Key:       e.key,
		Value:     e.value,
		HasValue:  e.hasValue,
		Err:       e.err,
		Status:    e.status,
		Fetching:  e.call != nil,
		Stale:     c.isStaleLocked(e),
		Version:   e.version,
		UpdatedAt: e.updatedAt,
	}
}

func listenersLocked(e *entry) []func(State) {
	if len(e.listeners) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(State), 0, len(ids))
	for _, id := range ids {
		out = append(out, e.listeners[id])
	}
	return out
}

func fire(fns []func(State), st State) {
	for _, fn := range fns {
		fn(st)
	}
}
