package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/buoy-console/internal/datasets"
	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/invalidation"
	"github.com/yungbote/buoy-console/internal/platform/logger"
	"github.com/yungbote/buoy-console/internal/querycache"
)

type Options struct {
	Gateway gateway.Doer
	Logger  *logger.Logger
	// Bus carries invalidations to other replicas. Nil keeps them in process.
	Bus invalidation.Bus

	MaxSessions int
	IdleTTL     time.Duration
	SweepEvery  time.Duration

	StaleTime time.Duration
	GCTime    time.Duration
	Hooks     querycache.Hooks
}

type Registry struct {
	gw     gateway.Doer
	log    *logger.Logger
	bus    invalidation.Bus
	origin string

	staleTime  time.Duration
	gcTime     time.Duration
	sweepEvery time.Duration
	hooks      querycache.Hooks

	sessions *expirable.LRU[string, *Session]
	group    singleflight.Group
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.Gateway == nil {
		return nil, errors.New("session: gateway required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	size := opts.MaxSessions
	if size <= 0 {
		size = 1024
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	sweep := opts.SweepEvery
	if sweep <= 0 {
		sweep = time.Minute
	}

	r := &Registry{
		gw:         opts.Gateway,
		log:        log.With("service", "SessionRegistry"),
		bus:        opts.Bus,
		origin:     uuid.NewString(),
		staleTime:  opts.StaleTime,
		gcTime:     opts.GCTime,
		sweepEvery: sweep,
		hooks:      opts.Hooks,
	}
	r.sessions = expirable.NewLRU[string, *Session](size, r.evicted, ttl)
	return r, nil
}

func (r *Registry) Origin() string { return r.origin }

func (r *Registry) evicted(id string, s *Session) {
	s.Cache.Close()
	r.log.Debug("session closed", "session", id)
}

// Get returns the session for id, building it on first use. Concurrent first
// requests of one viewer share a single build.
func (r *Registry) Get(id string) (*Session, error) {
	if id == "" {
		return nil, errors.New("session: empty id")
	}
	if s, ok := r.sessions.Get(id); ok {
		r.sessions.Add(id, s)
		return s, nil
	}
	v, err, _ := r.group.Do(id, func() (any, error) {
		if s, ok := r.sessions.Get(id); ok {
			return s, nil
		}
		s, err := r.build(id)
		if err != nil {
			return nil, err
		}
		r.sessions.Add(id, s)
		r.log.Debug("session opened", "session", id)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) build(id string) (*Session, error) {
	s := &Session{ID: id, Created: time.Now()}
	s.lastSeen = s.Created
	s.Cache = querycache.New(querycache.Options{
		StaleTime: r.staleTime,
		GCTime:    r.gcTime,
		Logger:    r.log.With("session", id),
		Hooks:     r.hooks,
	})
	store, err := datasets.NewStore(datasets.Options{
		Cache:     s.Cache,
		Gateway:   r.gw,
		Logger:    r.log.With("session", id),
		Decorate:  s.decorate,
		Publisher: &sessionPublisher{r: r, from: s},
	})
	if err != nil {
		s.Cache.Close()
		return nil, fmt.Errorf("session store: %w", err)
	}
	s.Store = store
	return s, nil
}

func (r *Registry) Peek(id string) (*Session, bool) { return r.sessions.Peek(id) }

func (r *Registry) Remove(id string) { r.sessions.Remove(id) }

func (r *Registry) Len() int { return r.sessions.Len() }

// Start subscribes to the bus and runs the cache janitor until ctx ends.
func (r *Registry) Start(ctx context.Context) error {
	if r.bus != nil {
		if err := r.bus.StartForwarder(ctx, r.receive); err != nil {
			return fmt.Errorf("invalidation forwarder: %w", err)
		}
	}
	go r.janitor(ctx)
	return nil
}

func (r *Registry) janitor(ctx context.Context) {
	t := time.NewTicker(r.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Sweep drops idle cache entries in every live session.
func (r *Registry) Sweep() int {
	n := 0
	for _, s := range r.sessions.Values() {
		n += s.Cache.Sweep()
	}
	if n > 0 {
		r.log.Debug("swept idle cache entries", "entries", n)
	}
	return n
}

// Close drops every session and cancels their in-flight fetches.
func (r *Registry) Close() {
	r.sessions.Purge()
}

// invalidate applies msg to every session except skip.
func (r *Registry) invalidate(msg invalidation.Message, skip *Session) {
	for _, s := range r.sessions.Values() {
		if s == skip {
			continue
		}
		if len(msg.Keys) > 0 {
			s.Cache.Invalidate(msg.Keys...)
		}
		for _, tag := range msg.Tags {
			s.Cache.InvalidateTag(tag)
		}
	}
}

func (r *Registry) receive(msg invalidation.Message) {
	if msg.Origin == r.origin || msg.Empty() {
		return
	}
	r.log.Debug("remote invalidation", "origin", msg.Origin, "keys", len(msg.Keys), "tags", msg.Tags)
	r.invalidate(msg, nil)
}

type sessionPublisher struct {
	r    *Registry
	from *Session
}

func (p *sessionPublisher) Publish(ctx context.Context, keys []querycache.Key, tags []string) {
	msg := invalidation.Message{Origin: p.r.origin, Keys: keys, Tags: tags, At: time.Now().UTC()}
	if msg.Empty() {
		return
	}
	p.r.invalidate(msg, p.from)
	if p.r.bus == nil {
		return
	}
	if err := p.r.bus.Publish(context.WithoutCancel(ctx), msg); err != nil {
		p.r.log.Warn("publish invalidation failed", "error", err)
	}
}
