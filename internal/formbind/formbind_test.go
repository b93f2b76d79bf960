package formbind

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

func hohonuSchema() map[string]any {
	return map[string]any{
		"title":       "HohonuConfig",
		"description": "Hohonu tide gauge",
		"type":        "object",
		"properties": map[string]any{
			"station_id": map[string]any{"title": "Station Id", "type": "string"},
			"threshold":  map[string]any{"type": "integer", "default": float64(3)},
			"scale":      map[string]any{"type": "number"},
			"enabled":    map[string]any{"type": "boolean"},
			"datum":      map[string]any{"enum": []any{"MLLW", "NAVD88"}},
			"location":   map[string]any{"$ref": "#/definitions/Location"},
			"notes":      map[string]any{"anyOf": []any{map[string]any{"type": "string"}, map[string]any{"type": "null"}}},
			"tags":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"station_id", "datum", "notes"},
		"definitions": map[string]any{
			"Location": map[string]any{
				"type":  "object",
				"title": "Location",
				"properties": map[string]any{
					"lat": map[string]any{"type": "number"},
					"lon": map[string]any{"type": "number"},
				},
			},
		},
	}
}

func TestDescribeWalksSchema(t *testing.T) {
	d, err := NewSchemaGenerator().Describe(hohonuSchema())
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if d.Title != "HohonuConfig" || d.Fingerprint == "" {
		t.Fatalf("unexpected descriptor header: %+v", d)
	}

	var names []string
	for _, f := range d.Fields {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "datum,enabled,location,notes,scale,station_id,tags,threshold" {
		t.Fatalf("field order=%s", got)
	}

	cases := map[string]Kind{
		"station_id":   KindString,
		"threshold":    KindInteger,
		"scale":        KindNumber,
		"enabled":      KindBoolean,
		"datum":        KindEnum,
		"location":     KindObject,
		"location.lat": KindNumber,
		"notes":        KindString,
		"tags":         KindJSON,
	}
	for name, want := range cases {
		f, ok := d.Lookup(name)
		if !ok {
			t.Fatalf("field %s missing", name)
		}
		if f.Kind != want {
			t.Fatalf("%s kind=%s want=%s", name, f.Kind, want)
		}
	}

	if f, _ := d.Lookup("station_id"); !f.Required {
		t.Fatalf("station_id must be required")
	}
	if f, _ := d.Lookup("notes"); f.Required {
		t.Fatalf("nullable field must not be required")
	}
	if f, _ := d.Lookup("threshold"); !f.HasDefault || f.Default != float64(3) || f.Title != "Threshold" {
		t.Fatalf("threshold=%+v", f)
	}
}

func TestDescribeFailsClosed(t *testing.T) {
	g := NewSchemaGenerator()
	bad := []map[string]any{
		{"type": float64(5)},
		{"type": "object", "properties": map[string]any{"a": map[string]any{"$ref": "#/definitions/Missing"}}},
	}
	for _, s := range bad {
		if _, err := g.Describe(s); !errors.Is(err, ErrInvalidSchema) {
			t.Fatalf("schema %v accepted", s)
		}
	}
	if d, err := g.Describe(nil); err != nil || len(d.Fields) != 0 {
		t.Fatalf("empty schema: %v %+v", err, d)
	}
}

type countingGenerator struct {
	*SchemaGenerator
	describes atomic.Int32
}

func (c *countingGenerator) Describe(schema map[string]any) (*Descriptor, error) {
	c.describes.Add(1)
	return c.SchemaGenerator.Describe(schema)
}

func TestBindingDerivesOncePerSchemaIdentity(t *testing.T) {
	gen := &countingGenerator{SchemaGenerator: NewSchemaGenerator()}
	b := NewBinding(gen, nil, nil)

	for i := 0; i < 5; i++ {
		// A fresh but equal document on every render.
		if _, err := b.Bind(hohonuSchema()); err != nil {
			t.Fatalf("Bind: %v", err)
		}
	}
	if got := gen.describes.Load(); got != 1 {
		t.Fatalf("describes=%d want=1", got)
	}

	changed := hohonuSchema()
	changed["title"] = "HohonuConfigV2"
	d, err := b.Bind(changed)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if d.Title != "HohonuConfigV2" || gen.describes.Load() != 2 {
		t.Fatalf("schema change not picked up: title=%s describes=%d", d.Title, gen.describes.Load())
	}
}

func TestMemoizedSharesDescriptors(t *testing.T) {
	gen := &countingGenerator{SchemaGenerator: NewSchemaGenerator()}
	m, err := NewMemoized(gen, 8)
	if err != nil {
		t.Fatalf("NewMemoized: %v", err)
	}
	first, _ := NewBinding(m, nil, nil).Bind(hohonuSchema())
	second, _ := NewBinding(m, nil, nil).Bind(hohonuSchema())
	if first != second || gen.describes.Load() != 1 || m.Len() != 1 {
		t.Fatalf("descriptor not shared: describes=%d len=%d", gen.describes.Load(), m.Len())
	}
}

func TestApplyFeedsOnChange(t *testing.T) {
	var got map[string]any
	b := NewBinding(NewSchemaGenerator(), map[string]any{
		"station_id": "A1",
		"legacy":     "kept",
		"enabled":    true,
		"notes":      "old",
	}, func(v map[string]any) { got = v })
	if _, err := b.Bind(hohonuSchema()); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	form := url.Values{
		"station_id":      {"B2"},
		"threshold":       {"5"},
		"scale":           {"0.25"},
		"datum":           {"NAVD88"},
		"enabled.present": {"1"},
		"location.lat":    {"21.3"},
		"location.lon":    {""},
		"notes":           {""},
		"tags":            {`["tide","hawaii"]`},
	}
	if err := b.Apply(form); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got == nil {
		t.Fatalf("onChange not called")
	}
	if got["station_id"] != "B2" || got["threshold"] != int64(5) || got["scale"] != 0.25 || got["datum"] != "NAVD88" {
		t.Fatalf("scalars=%v", got)
	}
	if got["enabled"] != false {
		t.Fatalf("unchecked box must decode to false, got=%v", got["enabled"])
	}
	if got["legacy"] != "kept" {
		t.Fatalf("undescribed key dropped")
	}
	if _, ok := got["notes"]; ok {
		t.Fatalf("empty optional input must remove the key")
	}
	loc, ok := got["location"].(map[string]any)
	if !ok || loc["lat"] != 21.3 || len(loc) != 1 {
		t.Fatalf("location=%v", got["location"])
	}
	if tags, ok := got["tags"].([]any); !ok || len(tags) != 2 {
		t.Fatalf("tags=%v", got["tags"])
	}
}

func TestApplyRejectsBadInputWithoutChangingValue(t *testing.T) {
	calls := 0
	b := NewBinding(NewSchemaGenerator(), map[string]any{"station_id": "A1", "datum": "MLLW"}, func(map[string]any) { calls++ })
	if _, err := b.Bind(hohonuSchema()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	err := b.Apply(url.Values{"threshold": {"five"}, "datum": {"WGS84"}, "station_id": {""}})
	var fe FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldErrors, got=%v", err)
	}
	if len(fe) != 3 || fe["station_id"] != "required" {
		t.Fatalf("errors=%v", fe)
	}
	if calls != 0 || b.Value()["station_id"] != "A1" {
		t.Fatalf("failed apply changed the value")
	}
}

func TestRenderShowsValuesAndEscapes(t *testing.T) {
	b := NewBinding(NewSchemaGenerator(), map[string]any{
		"station_id": `<script>alert(1)</script>`,
		"datum":      "NAVD88",
		"enabled":    true,
		"location":   map[string]any{"lat": 21.3},
	}, nil)
	if _, err := b.Bind(hohonuSchema()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	var buf bytes.Buffer
	if err := b.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()
	for _, want := range []string{
		`name="station_id"`,
		`&lt;script&gt;`,
		`<option value="NAVD88" selected>`,
		`name="enabled" value="true" checked`,
		`name="location.lat" value="21.3"`,
		`name="threshold" value="3"`,
		`<legend>Location</legend>`,
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("render missing %q in:\n%s", want, html)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("value not escaped")
	}
}

func TestRenderWithErrors(t *testing.T) {
	d, err := NewSchemaGenerator().Describe(hohonuSchema())
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	var buf bytes.Buffer
	if err := RenderWithErrors(&buf, d, nil, FieldErrors{"threshold": "must be a whole number"}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), `<p class="error">must be a whole number</p>`) {
		t.Fatalf("field error not rendered")
	}
	if err := (&SchemaGenerator{}).Render(io.Discard, nil, nil); err == nil {
		t.Fatalf("nil descriptor must fail")
	}
}

func TestHumanizeKeepsMultibyteLetters(t *testing.T) {
	cases := map[string]string{
		"wave_height": "Wave Height",
		"écart-max":   "Écart Max",
		"ölçüm":       "Ölçüm",
		"_":           "",
	}
	for in, want := range cases {
		if got := humanize(in); got != want {
			t.Fatalf("humanize(%q) got=%q want=%q", in, got, want)
		}
	}
}
