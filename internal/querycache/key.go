package querycache

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Key identifies a logical resource: a tag plus zero or more parameters.
// Its canonical form is the JSON array of the tuple, so ("pipeline", 3) and
// ("pipeline", "3") are different keys.
type Key struct {
	tag  string
	hash string
}

func NewKey(tag string, params ...any) Key {
	parts := make([]any, 0, len(params)+1)
	parts = append(parts, tag)
	parts = append(parts, params...)
	raw, err := json.Marshal(parts)
	if err != nil {
		raw = []byte(fmt.Sprintf("%q", fmt.Sprint(parts...)))
	}
	return Key{tag: tag, hash: string(raw)}
}

func (k Key) Tag() string    { return k.tag }
func (k Key) String() string { return k.hash }
func (k Key) IsZero() bool   { return k.hash == "" }

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.hash), nil
}

func (k *Key) UnmarshalText(b []byte) error {
	var parts []any
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("query key: %w", err)
	}
	if len(parts) == 0 {
		return errors.New("query key: empty tuple")
	}
	tag, ok := parts[0].(string)
	if !ok {
		return errors.New("query key: tag must be a string")
	}
	// Re-encode so that whitespace differences never produce distinct keys.
	*k = NewKey(tag, parts[1:]...)
	return nil
}
