package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"
)

// NotifyContext is cancelled on SIGINT or SIGTERM.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Step is one piece of teardown. Fn may be nil.
type Step struct {
	Name string
	Fn   func(context.Context) error
}

// Drain runs steps in order under a single deadline. Every step runs even
// when an earlier one fails; the failures come back joined.
func Drain(timeout time.Duration, steps ...Step) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, s := range steps {
		if s.Fn == nil {
			continue
		}
		if err := s.Fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
