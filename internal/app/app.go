package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/buoy-console/internal/config"
	apphttp "github.com/yungbote/buoy-console/internal/http"
	"github.com/yungbote/buoy-console/internal/observability"
	"github.com/yungbote/buoy-console/internal/platform/logger"
	"github.com/yungbote/buoy-console/internal/platform/shutdown"
	"github.com/yungbote/buoy-console/internal/session"
)

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	Clients  Clients
	Sessions *session.Registry
	Router   *gin.Engine
	Server   *apphttp.Server

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	otelShutdown := observability.InitOTel(ctx, log, cfg.Env, cfg.Telemetry)

	clients, err := wireClients(log, cfg)
	if err != nil {
		return nil, err
	}

	sessions, err := wireSessions(log, cfg, clients)
	if err != nil {
		clients.Close()
		return nil, err
	}

	middleware := wireMiddleware(log, cfg, sessions)
	handlers := wireHandlers(log, cfg, clients, sessions)
	router := wireRouter(log, cfg, clients, handlers, middleware)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Sessions:     sessions,
		Router:       router,
		Server:       wireServer(log, cfg, router),
		otelShutdown: otelShutdown,
	}, nil
}

// Start runs the background work: the invalidation forwarder and the cache
// janitor.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	return a.Sessions.Start(ctx)
}

func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	err := shutdown.Drain(a.Cfg.HTTP.ShutdownTimeout.Duration,
		shutdown.Step{Name: "sessions", Fn: func(context.Context) error {
			if a.Sessions != nil {
				a.Sessions.Close()
			}
			return nil
		}},
		shutdown.Step{Name: "clients", Fn: func(context.Context) error {
			a.Clients.Close()
			return nil
		}},
		shutdown.Step{Name: "otel", Fn: a.otelShutdown},
	)
	if err != nil {
		a.Log.Warn("shutdown incomplete", "error", err)
	}
	a.Log.Sync()
}
