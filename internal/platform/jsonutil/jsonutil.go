// Package jsonutil holds helpers for decoded JSON documents
// (map[string]any / []any trees as produced by encoding/json).
package jsonutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CloneMap deep-copies a decoded JSON object. A nil input yields an empty map.
func CloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Fingerprint is a content hash of a JSON document. encoding/json sorts map
// keys, so equal documents always hash the same.
func Fingerprint(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Equal compares two documents by their canonical encoding.
func Equal(a, b any) bool {
	fa, errA := Fingerprint(a)
	fb, errB := Fingerprint(b)
	return errA == nil && errB == nil && fa == fb
}
