package datasets

import "testing"

func TestEditBufferIsolatesCachedPayload(t *testing.T) {
	cached := DatasetConfig{ID: 42, Config: map[string]any{
		"threshold": float64(2),
		"station":   map[string]any{"id": "A1"},
	}}
	b := NewEditBuffer("buoy_a", cached)

	v := b.Value()
	v["station"].(map[string]any)["id"] = "B2"
	if cached.Config["station"].(map[string]any)["id"] != "A1" {
		t.Fatalf("edit reached the cached payload")
	}
	if b.Dirty() {
		t.Fatalf("reading the value must not dirty the buffer")
	}

	b.Set(v)
	if !b.Dirty() {
		t.Fatalf("expected dirty after Set")
	}
	v["threshold"] = float64(99)
	if b.Value()["threshold"] != float64(2) {
		t.Fatalf("buffer aliased the caller's map")
	}

	b.Reset()
	if b.Dirty() {
		t.Fatalf("Reset left the buffer dirty")
	}
	if b.ConfigID() != 42 || b.Slug() != "buoy_a" {
		t.Fatalf("identity lost")
	}
}

func TestEditBufferEmptySeed(t *testing.T) {
	b := NewEditBuffer("buoy_a", DatasetConfig{ID: 1})
	if v := b.Value(); v == nil || len(v) != 0 {
		t.Fatalf("seed=%v want empty map", v)
	}
}
