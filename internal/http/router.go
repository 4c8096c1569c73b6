package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/damagegraph-backend/internal/http/handlers"
	httpMW "github.com/yungbote/damagegraph-backend/internal/http/middleware"
	"github.com/yungbote/damagegraph-backend/internal/observability"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	Metrics     *observability.Metrics

	// AuthMiddleware guards /api when set.
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler    *httpH.HealthHandler
	DamageHandler    *httpH.DamageHandler
	PipelineHandler  *httpH.PipelineHandler
	IngestRunHandler *httpH.IngestRunHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		// Temporal damage graph
		if cfg.DamageHandler != nil {
			api.POST("/damages/upload", cfg.DamageHandler.Upload)
			api.POST("/damages/relate", cfg.DamageHandler.Relate)
			api.GET("/damages/:id", cfg.DamageHandler.GetTimeline)
			api.DELETE("/damages/:id/epochs", cfg.DamageHandler.ClearEpochs)
			api.DELETE("/damages/:id", cfg.DamageHandler.Delete)
		}

		// Detection -> ontology -> BIM
		if cfg.PipelineHandler != nil {
			api.POST("/detections/project", cfg.PipelineHandler.Project)
			api.POST("/bim/link", cfg.PipelineHandler.Link)
		}

		// Audit
		if cfg.IngestRunHandler != nil {
			api.GET("/ingest-runs", cfg.IngestRunHandler.List)
		}
	}

	// Legacy upload path kept for existing inspection clients.
	if cfg.DamageHandler != nil {
		legacy := r.Group("/")
		if cfg.AuthMiddleware != nil {
			legacy.Use(cfg.AuthMiddleware.RequireAuth())
		}
		legacy.POST("/upload_damage_json", cfg.DamageHandler.Upload)
	}

	return r
}
