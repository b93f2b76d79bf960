package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/buoy-console/internal/config"
	"github.com/yungbote/buoy-console/internal/formbind"
	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/invalidation"
	"github.com/yungbote/buoy-console/internal/observability"
	"github.com/yungbote/buoy-console/internal/platform/logger"
	"github.com/yungbote/buoy-console/internal/session"
)

const formMemoSize = 128

type Clients struct {
	Gateway *gateway.Client
	Bus     invalidation.Bus
	Metrics *observability.Metrics
	Forms   *formbind.Memoized
}

func wireClients(log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...")

	var metrics *observability.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	gw, err := newGateway(log, cfg, metrics)
	if err != nil {
		return Clients{}, err
	}

	// Redis
	var bus invalidation.Bus
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, err := invalidation.NewRedis(invalidation.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis invalidation bus: %w", err)
		}
		bus = b
	} else {
		bus = invalidation.NewLocal(log)
	}

	forms, err := formbind.NewMemoized(formbind.NewSchemaGenerator(), formMemoSize)
	if err != nil {
		_ = bus.Close()
		return Clients{}, fmt.Errorf("init form generator: %w", err)
	}

	return Clients{Gateway: gw, Bus: bus, Metrics: metrics, Forms: forms}, nil
}

func newGateway(log *logger.Logger, cfg *config.Config, metrics *observability.Metrics) (*gateway.Client, error) {
	opts := gateway.Options{
		BaseURL:   cfg.Backend.BaseURL,
		Prefix:    cfg.Backend.Prefix,
		LoginPath: cfg.Backend.LoginPath,
		PublicURL: cfg.Backend.PublicURL,
		APIKey:    cfg.Backend.APIKey,
		Timeout:   cfg.Backend.Timeout.Duration,
		Logger:    log,
	}
	if metrics != nil {
		opts.Observer = metrics
	}
	gw, err := gateway.New(opts)
	if err != nil {
		return nil, fmt.Errorf("init backend gateway: %w", err)
	}
	return gw, nil
}

func wireSessions(log *logger.Logger, cfg *config.Config, clients Clients) (*session.Registry, error) {
	opts := session.Options{
		Gateway:     clients.Gateway,
		Logger:      log,
		Bus:         clients.Bus,
		MaxSessions: cfg.Session.MaxSessions,
		IdleTTL:     cfg.Session.IdleTTL.Duration,
		SweepEvery:  cfg.Session.SweepEvery.Duration,
		StaleTime:   cfg.Cache.StaleTime.Duration,
		GCTime:      cfg.Cache.GCTime.Duration,
	}
	if clients.Metrics != nil {
		opts.Hooks = clients.Metrics
	}
	reg, err := session.NewRegistry(opts)
	if err != nil {
		return nil, fmt.Errorf("init session registry: %w", err)
	}
	if clients.Metrics != nil {
		clients.Metrics.RegisterGaugeFunc("sessions", "Live browser sessions.", func() float64 {
			return float64(reg.Len())
		})
	}
	return reg, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
