package jsonutil

import "testing"

func TestCloneMapIsDeep(t *testing.T) {
	src := map[string]any{
		"threshold": float64(5),
		"nested":    map[string]any{"a": []any{"x", map[string]any{"b": true}}},
	}
	cp := CloneMap(src)
	cp["nested"].(map[string]any)["a"].([]any)[0] = "changed"
	cp["threshold"] = float64(6)

	if src["threshold"] != float64(5) {
		t.Fatalf("top-level value leaked into source")
	}
	if got := src["nested"].(map[string]any)["a"].([]any)[0]; got != "x" {
		t.Fatalf("nested slice shared with source: %v", got)
	}
}

func TestCloneMapNil(t *testing.T) {
	if got := CloneMap(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty map, got=%v", got)
	}
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	a := map[string]any{"x": 1, "y": map[string]any{"p": 1, "q": 2}}
	b := map[string]any{"y": map[string]any{"q": 2, "p": 1}, "x": 1}
	if !Equal(a, b) {
		t.Fatalf("expected equal fingerprints")
	}
	if Equal(a, map[string]any{"x": 2}) {
		t.Fatalf("expected different fingerprints")
	}
}
