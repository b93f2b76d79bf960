package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/buoy-console/internal/http/handlers"
	httpMW "github.com/yungbote/buoy-console/internal/http/middleware"
	"github.com/yungbote/buoy-console/internal/http/views"
	"github.com/yungbote/buoy-console/internal/observability"
	"github.com/yungbote/buoy-console/internal/platform/logger"
)

const apiPrefix = "/manage/api"

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	// LoginURL builds the backend login target for a console path.
	LoginURL func(next string) string

	SessionMiddleware *httpMW.SessionMiddleware
	ConsoleHandler    *httpH.ConsoleHandler
	APIHandler        *httpH.APIHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "buoy-console"
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(log))
	r.SetHTMLTemplate(views.Templates())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	r.GET("/", func(c *gin.Context) { c.Redirect(302, "/manage/") })

	if cfg.SessionMiddleware == nil {
		return r
	}

	manage := r.Group("/manage")
	if cfg.LoginURL != nil {
		manage.Use(httpMW.HandleUnauthorized(cfg.LoginURL, apiPrefix))
	}

	// Pages
	if cfg.ConsoleHandler != nil {
		pages := manage.Group("", cfg.SessionMiddleware.Attach())
		pages.GET("/", cfg.ConsoleHandler.ListDatasets)
		pages.GET("/new/", cfg.ConsoleHandler.NewDataset)
		pages.POST("/new/", cfg.ConsoleHandler.CreateDataset)
		pages.GET("/dataset/:slug/", cfg.ConsoleHandler.Dataset)
		pages.GET("/dataset/:slug/config/:id/", cfg.ConsoleHandler.EditConfig)
		pages.POST("/dataset/:slug/config/:id/", cfg.ConsoleHandler.UpdateConfig)
	}

	// JSON mirror
	if cfg.APIHandler != nil {
		api := manage.Group("/api", httpMW.CORS(cfg.CORSOrigins))
		api.OPTIONS("/*path", func(c *gin.Context) { c.Status(204) })

		read := api.Group("", cfg.SessionMiddleware.Attach())
		read.GET("/datasets", cfg.APIHandler.ListDatasets)
		read.GET("/datasets/:slug", cfg.APIHandler.GetDataset)
		read.GET("/pipelines", cfg.APIHandler.ListPipelines)
		read.GET("/pipelines/:slug/datasets", cfg.APIHandler.PipelineDatasets)
		read.GET("/cache", cfg.APIHandler.CacheEntries)
	}
	return r
}
