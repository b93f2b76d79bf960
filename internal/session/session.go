// Package session keeps one query cache per browser viewer. Per-viewer data
// (permission flags, anything behind the viewer's cookies) is never shared
// between sessions; invalidations are.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/yungbote/buoy-console/internal/datasets"
	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/querycache"
)

type Session struct {
	ID      string
	Cache   *querycache.Cache
	Store   *datasets.Store
	Created time.Time

	mu       sync.Mutex
	creds    gateway.Credentials
	lastSeen time.Time
}

// SetCredentials records the viewer's latest backend cookies. Fetches the
// cache starts on its own use whatever was set last.
func (s *Session) SetCredentials(c gateway.Credentials) {
	s.mu.Lock()
	s.creds = c
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) Credentials() gateway.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) decorate(ctx context.Context) context.Context {
	return gateway.WithCredentials(ctx, s.Credentials())
}

// HashID turns a raw cookie value into a registry id. Raw session cookies
// never leave the request path.
func HashID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:16])
}
