package app

import (
	"context"
	"fmt"

	"github.com/yungbote/buoy-console/internal/config"
	"github.com/yungbote/buoy-console/internal/datasets"
	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/platform/logger"
	"github.com/yungbote/buoy-console/internal/querycache"
)

// NewStandaloneStore builds a single-viewer store for command-line use. All
// calls carry creds. The returned func releases the cache.
func NewStandaloneStore(cfg *config.Config, log *logger.Logger, creds gateway.Credentials) (*datasets.Store, func(), error) {
	gw, err := newGateway(log, cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	cache := querycache.New(querycache.Options{
		StaleTime: cfg.Cache.StaleTime.Duration,
		GCTime:    cfg.Cache.GCTime.Duration,
		Logger:    log,
	})
	store, err := datasets.NewStore(datasets.Options{
		Cache:   cache,
		Gateway: gw,
		Logger:  log,
		Decorate: func(ctx context.Context) context.Context {
			return gateway.WithCredentials(ctx, creds)
		},
	})
	if err != nil {
		cache.Close()
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	return store, cache.Close, nil
}
