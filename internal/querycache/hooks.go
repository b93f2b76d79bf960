package querycache

import "time"

// Hooks observe cache activity. Implementations must be safe for concurrent use.
// Every FetchStarted is matched by exactly one FetchFinished, including fetches
// whose result is then discarded. Discarded fires once per dropped fetch:
// when the last interested caller abandons it, or when its result lands for an
// entry that has moved on.
type Hooks interface {
	Hit(tag string)
	Miss(tag string)
	Joined(tag string)
	FetchStarted(tag string)
	FetchFinished(tag string, err error, elapsed time.Duration)
	Discarded(tag string)
}

type nopHooks struct{}

func (nopHooks) Hit(string)                                 {}
func (nopHooks) Miss(string)                                {}
func (nopHooks) Joined(string)                              {}
func (nopHooks) FetchStarted(string)                        {}
func (nopHooks) FetchFinished(string, error, time.Duration) {}
func (nopHooks) Discarded(string)                           {}
