package invalidation

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/buoy-console/internal/platform/logger"
)

const localBuffer = 64

type localBus struct {
	log *logger.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan Message
	closed bool
}

// NewLocal is an in-process Bus. A registry applies its own mutations to
// its sessions directly and drops its own echo, so with one registry the
// bus only serves other subscribers on the same process.
func NewLocal(log *logger.Logger) Bus {
	if log == nil {
		log = logger.Nop()
	}
	return &localBus{
		log:  log.With("service", "LocalInvalidationBus"),
		subs: make(map[int]chan Message),
	}
}

func (b *localBus) Publish(ctx context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("invalidation bus closed")
	}
	for id, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.log.Warn("dropping invalidation for slow subscriber", "subscriber", id)
		}
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(m Message)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("invalidation bus closed")
	}
	b.nextID++
	id := b.nextID
	ch := make(chan Message, localBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				if _, ok := b.subs[id]; ok {
					delete(b.subs, id)
					close(ch)
				}
				b.mu.Unlock()
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				onMsg(m)
			}
		}
	}()
	return nil
}

func (b *localBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	return nil
}
