// Package invalidation fans invalidated cache keys out to every session
// cache, in this process and, through Redis, in other console replicas.
package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yungbote/buoy-console/internal/querycache"
)

// Message lists what a mutation invalidated. Origin identifies the
// publishing process so it can skip its own echo.
type Message struct {
	Origin string           `json:"origin"`
	Keys   []querycache.Key `json:"keys,omitempty"`
	Tags   []string         `json:"tags,omitempty"`
	At     time.Time        `json:"at"`
}

func (m Message) Empty() bool { return len(m.Keys) == 0 && len(m.Tags) == 0 }

type Bus interface {
	Publish(ctx context.Context, msg Message) error
	StartForwarder(ctx context.Context, onMsg func(m Message)) error
	Close() error
}

func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode invalidation: %w", err)
	}
	return msg, nil
}
