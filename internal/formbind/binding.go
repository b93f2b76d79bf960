package formbind

import (
	"errors"
	"io"
	"net/url"
	"sync"

	"github.com/yungbote/buoy-console/internal/platform/jsonutil"
)

// Binding is a controlled value pair over one form. The descriptor is derived
// again only when the schema's content changes.
type Binding struct {
	gen      Generator
	onChange func(map[string]any)

	mu          sync.Mutex
	fingerprint string
	desc        *Descriptor
	value       map[string]any
}

func NewBinding(gen Generator, value map[string]any, onChange func(map[string]any)) *Binding {
	return &Binding{gen: gen, value: jsonutil.CloneMap(value), onChange: onChange}
}

// Bind derives (or reuses) the descriptor for schema.
func (b *Binding) Bind(schema map[string]any) (*Descriptor, error) {
	fp, err := jsonutil.Fingerprint(schema)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.desc != nil && b.fingerprint == fp {
		d := b.desc
		b.mu.Unlock()
		return d, nil
	}
	b.mu.Unlock()

	d, err := b.gen.Describe(schema)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.fingerprint, b.desc = fp, d
	b.mu.Unlock()
	return d, nil
}

func (b *Binding) Descriptor() *Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.desc
}

func (b *Binding) Value() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return jsonutil.CloneMap(b.value)
}

func (b *Binding) SetValue(v map[string]any) {
	b.mu.Lock()
	b.value = jsonutil.CloneMap(v)
	next := jsonutil.CloneMap(b.value)
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn(next)
	}
}

// Apply decodes a posted form into the value. On failure the value is left
// as it was and the error is a FieldErrors.
func (b *Binding) Apply(form url.Values) error {
	d := b.Descriptor()
	if d == nil {
		return errors.New("formbind: Apply before Bind")
	}
	next, err := Decode(d, b.Value(), form)
	if err != nil {
		return err
	}
	b.SetValue(next)
	return nil
}

func (b *Binding) Render(w io.Writer) error {
	d := b.Descriptor()
	if d == nil {
		return errors.New("formbind: Render before Bind")
	}
	return b.gen.Render(w, d, b.Value())
}
