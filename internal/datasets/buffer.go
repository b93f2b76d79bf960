package datasets

import (
	"sync"

	"github.com/yungbote/buoy-console/internal/platform/jsonutil"
)

// EditBuffer holds an in-progress edit of one config. It is seeded with a
// deep copy of the config payload, so edits never reach cached snapshots.
type EditBuffer struct {
	slug     string
	configID int64

	mu    sync.Mutex
	base  map[string]any
	value map[string]any
}

func NewEditBuffer(slug string, cfg DatasetConfig) *EditBuffer {
	return &EditBuffer{
		slug:     slug,
		configID: cfg.ID,
		base:     jsonutil.CloneMap(cfg.Config),
		value:    jsonutil.CloneMap(cfg.Config),
	}
}

func (b *EditBuffer) Slug() string    { return b.slug }
func (b *EditBuffer) ConfigID() int64 { return b.configID }

func (b *EditBuffer) Value() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return jsonutil.CloneMap(b.value)
}

func (b *EditBuffer) Set(v map[string]any) {
	b.mu.Lock()
	b.value = jsonutil.CloneMap(v)
	b.mu.Unlock()
}

// Dirty reports whether the buffer differs from what it was seeded with.
func (b *EditBuffer) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !jsonutil.Equal(b.base, b.value)
}

func (b *EditBuffer) Reset() {
	b.mu.Lock()
	b.value = jsonutil.CloneMap(b.base)
	b.mu.Unlock()
}

// Commit makes the current value the new baseline after a successful submit.
func (b *EditBuffer) Commit() {
	b.mu.Lock()
	b.base = jsonutil.CloneMap(b.value)
	b.mu.Unlock()
}
