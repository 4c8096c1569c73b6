package app

import (
	apphttp "github.com/yungbote/damagegraph-backend/internal/http"
	httpH "github.com/yungbote/damagegraph-backend/internal/http/handlers"
	httpMW "github.com/yungbote/damagegraph-backend/internal/http/middleware"
	"github.com/yungbote/damagegraph-backend/internal/observability"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, clients Clients, svcs Services, metrics *observability.Metrics) *apphttp.Server {
	log.Info("Wiring HTTP server...")

	deps := map[string]observability.Pinger{}
	if clients.Neo4j != nil {
		deps["neo4j"] = clients.Neo4j
	}
	if clients.Redis != nil {
		deps["redis"] = observability.RedisPinger{Client: clients.Redis}
	}

	var auth *httpMW.AuthMiddleware
	if cfg.JWTSecret != "" {
		auth = httpMW.NewAuthMiddleware(log, cfg.JWTSecret)
	} else {
		log.Warn("AUTH_JWT_SECRET not set; /api is unauthenticated")
	}

	return apphttp.NewServer(apphttp.RouterConfig{
		Log:              log,
		ServiceName:      cfg.ServiceName,
		Metrics:          metrics,
		AuthMiddleware:   auth,
		HealthHandler:    httpH.NewHealthHandler(deps),
		DamageHandler:    httpH.NewDamageHandler(log, svcs.DamageGraph, cfg.MaxUploadBytes),
		PipelineHandler:  httpH.NewPipelineHandler(log, svcs.Pipeline, cfg.MaxUploadBytes),
		IngestRunHandler: httpH.NewIngestRunHandler(svcs.Audit),
	})
}
