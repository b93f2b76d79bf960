package formbind

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"github.com/yungbote/buoy-console/internal/platform/jsonutil"
)

const maxRefDepth = 16

// SchemaGenerator is the default Generator. It understands the subset of
// JSON-Schema that pydantic emits: properties, required, enum, default,
// local $ref into $defs/definitions, and anyOf with a null branch.
type SchemaGenerator struct{}

func NewSchemaGenerator() *SchemaGenerator { return &SchemaGenerator{} }

func (g *SchemaGenerator) Describe(schema map[string]any) (*Descriptor, error) {
	if schema == nil {
		schema = map[string]any{}
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	fp, err := jsonutil.Fingerprint(schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	w := walker{root: schema}
	root, err := w.resolve(schema, 0)
	if err != nil {
		return nil, err
	}
	fields, err := w.fields(root, "", 0)
	if err != nil {
		return nil, err
	}
	return &Descriptor{
		Title:       str(root["title"]),
		Description: str(root["description"]),
		Fingerprint: fp,
		Fields:      fields,
	}, nil
}

type walker struct {
	root map[string]any
}

func (w walker) fields(node map[string]any, prefix string, depth int) ([]Field, error) {
	props, _ := node["properties"].(map[string]any)
	if len(props) == 0 {
		return nil, nil
	}
	required := map[string]bool{}
	if req, ok := node["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		raw, ok := props[k].(map[string]any)
		if !ok {
			continue
		}
		f, err := w.field(k, raw, prefix, required[k], depth)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (w walker) field(key string, raw map[string]any, prefix string, required bool, depth int) (Field, error) {
	name := key
	if prefix != "" {
		name = prefix + "." + key
	}
	// Annotations on the referencing node win over the referenced definition.
	title, desc := str(raw["title"]), str(raw["description"])
	def, hasDef := raw["default"]

	node, err := w.resolve(raw, depth)
	if err != nil {
		return Field{}, fmt.Errorf("%s: %w", name, err)
	}
	nullable := false
	if alts, ok := node["anyOf"].([]any); ok {
		node, nullable, err = w.unwrapNullable(alts, depth)
		if err != nil {
			return Field{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	if title == "" {
		title = str(node["title"])
	}
	if title == "" {
		title = humanize(key)
	}
	if desc == "" {
		desc = str(node["description"])
	}
	if !hasDef {
		def, hasDef = node["default"]
	}

	f := Field{
		Name:        name,
		Key:         key,
		Title:       title,
		Description: desc,
		Required:    required && !nullable,
		Default:     def,
		HasDefault:  hasDef,
	}
	if enum, ok := node["enum"].([]any); ok && len(enum) > 0 {
		f.Kind = KindEnum
		f.Enum = enum
		return f, nil
	}
	switch typeOf(node) {
	case "string":
		f.Kind = KindString
	case "integer":
		f.Kind = KindInteger
	case "number":
		f.Kind = KindNumber
	case "boolean":
		f.Kind = KindBoolean
	case "object":
		if depth >= maxRefDepth {
			f.Kind = KindJSON
			return f, nil
		}
		children, err := w.fields(node, name, depth+1)
		if err != nil {
			return Field{}, err
		}
		if len(children) == 0 {
			f.Kind = KindJSON
			return f, nil
		}
		f.Kind = KindObject
		f.Fields = children
	default:
		f.Kind = KindJSON
	}
	return f, nil
}

// resolve follows local $ref pointers.
func (w walker) resolve(node map[string]any, depth int) (map[string]any, error) {
	for i := 0; ; i++ {
		ref, ok := node["$ref"].(string)
		if !ok {
			return node, nil
		}
		if i+depth >= maxRefDepth {
			return nil, fmt.Errorf("%w: $ref chain too deep at %s", ErrInvalidSchema, ref)
		}
		target, err := w.pointer(ref)
		if err != nil {
			return nil, err
		}
		node = target
	}
}

func (w walker) pointer(ref string) (map[string]any, error) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, fmt.Errorf("%w: only local $ref is supported, got %q", ErrInvalidSchema, ref)
	}
	var cur any = w.root
	for _, part := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: unresolvable $ref %q", ErrInvalidSchema, ref)
		}
		cur, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("%w: unresolvable $ref %q", ErrInvalidSchema, ref)
		}
	}
	m, ok := cur.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: $ref %q is not a schema object", ErrInvalidSchema, ref)
	}
	return m, nil
}

// unwrapNullable collapses anyOf: [X, {"type": "null"}] into X. Any other
// anyOf is edited as raw JSON.
func (w walker) unwrapNullable(alts []any, depth int) (map[string]any, bool, error) {
	var picked map[string]any
	nullable := false
	for _, a := range alts {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		if typeOf(m) == "null" {
			nullable = true
			continue
		}
		if picked != nil {
			return map[string]any{}, nullable, nil
		}
		resolved, err := w.resolve(m, depth)
		if err != nil {
			return nil, false, err
		}
		picked = resolved
	}
	if picked == nil {
		picked = map[string]any{}
	}
	return picked, nullable, nil
}

func typeOf(node map[string]any) string {
	switch t := node["type"].(type) {
	case string:
		return t
	case []any:
		// ["string", "null"]
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	}
	if _, ok := node["properties"]; ok {
		return "object"
	}
	return ""
}

func humanize(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
