// Package formbind turns a pipeline's JSON-Schema into a form descriptor and
// binds it to a controlled config value. Schemas are compiled to catch
// unusable documents; payloads are never validated against them.
package formbind

import (
	"errors"
	"io"
)

var ErrInvalidSchema = errors.New("invalid config schema")

type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindEnum    Kind = "enum"
	KindObject  Kind = "object"
	// KindJSON is edited as raw JSON text: arrays and anything without a
	// simple scalar type.
	KindJSON Kind = "json"
)

// Field describes one property. Name is the dotted path used as the form
// input name; Key is the property name inside its parent object.
type Field struct {
	Name        string
	Key         string
	Title       string
	Description string
	Kind        Kind
	Required    bool
	Default     any
	HasDefault  bool
	Enum        []any
	Fields      []Field
}

// Descriptor is derived once per schema and is read-only afterwards.
type Descriptor struct {
	Title       string
	Description string
	Fingerprint string
	Fields      []Field
}

// Generator is the schema-to-form capability the console depends on.
type Generator interface {
	Describe(schema map[string]any) (*Descriptor, error)
	Render(w io.Writer, d *Descriptor, value map[string]any) error
}

// Lookup finds a field by dotted name.
func (d *Descriptor) Lookup(name string) (Field, bool) {
	if d == nil {
		return Field{}, false
	}
	return lookup(d.Fields, name)
}

func lookup(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
		if f.Kind == KindObject {
			if got, ok := lookup(f.Fields, name); ok {
				return got, true
			}
		}
	}
	return Field{}, false
}
