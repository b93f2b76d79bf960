package formbind

import (
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yungbote/buoy-console/internal/platform/jsonutil"
)

// Memoized shares descriptors across bindings, keyed by schema fingerprint.
type Memoized struct {
	inner Generator
	cache *lru.Cache[string, *Descriptor]
}

func NewMemoized(inner Generator, size int) (*Memoized, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, *Descriptor](size)
	if err != nil {
		return nil, err
	}
	return &Memoized{inner: inner, cache: c}, nil
}

func (m *Memoized) Describe(schema map[string]any) (*Descriptor, error) {
	fp, err := jsonutil.Fingerprint(schema)
	if err != nil {
		return nil, err
	}
	if d, ok := m.cache.Get(fp); ok {
		return d, nil
	}
	d, err := m.inner.Describe(schema)
	if err != nil {
		return nil, err
	}
	m.cache.Add(fp, d)
	return d, nil
}

func (m *Memoized) Render(w io.Writer, d *Descriptor, value map[string]any) error {
	return m.inner.Render(w, d, value)
}

func (m *Memoized) Len() int { return m.cache.Len() }
