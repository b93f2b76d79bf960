package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/buoy-console/internal/config"
	apphttp "github.com/yungbote/buoy-console/internal/http"
	httpH "github.com/yungbote/buoy-console/internal/http/handlers"
	httpMW "github.com/yungbote/buoy-console/internal/http/middleware"
	"github.com/yungbote/buoy-console/internal/platform/logger"
	"github.com/yungbote/buoy-console/internal/session"
)

type Middleware struct {
	Session *httpMW.SessionMiddleware
}

type Handlers struct {
	Health  *httpH.HealthHandler
	Console *httpH.ConsoleHandler
	API     *httpH.APIHandler
}

func wireMiddleware(log *logger.Logger, cfg *config.Config, sessions *session.Registry) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Session: httpMW.NewSessionMiddleware(log, sessions, httpMW.SessionOptions{
			SessionCookie: cfg.Backend.SessionCookie,
			CSRFCookie:    cfg.Backend.CSRFCookie,
			Secure:        cfg.Env == "production" || cfg.Env == "prod",
		}),
	}
}

func wireHandlers(log *logger.Logger, cfg *config.Config, clients Clients, sessions *session.Registry) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(sessions.Len),
		Console: httpH.NewConsoleHandler(log, httpH.ConsoleOptions{
			Forms:        clients.Forms,
			RenderWait:   cfg.Console.RenderWait.Duration,
			RefreshAfter: cfg.Console.RefreshAfter.Duration,
		}),
		API: httpH.NewAPIHandler(log),
	}
}

func wireRouter(log *logger.Logger, cfg *config.Config, clients Clients, handlers Handlers, middleware Middleware) *gin.Engine {
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:               log,
		Metrics:           clients.Metrics,
		ServiceName:       cfg.Telemetry.ServiceName,
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		LoginURL:          clients.Gateway.LoginURL,
		SessionMiddleware: middleware.Session,
		ConsoleHandler:    handlers.Console,
		APIHandler:        handlers.API,
		HealthHandler:     handlers.Health,
	})
}

func wireServer(log *logger.Logger, cfg *config.Config, router *gin.Engine) *apphttp.Server {
	return apphttp.NewServer(log, router, apphttp.ServerOptions{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       cfg.HTTP.IdleTimeout.Duration,
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout.Duration,
	})
}
