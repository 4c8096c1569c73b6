package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	redisclient "github.com/yungbote/damagegraph-backend/internal/clients/redis"
	apphttp "github.com/yungbote/damagegraph-backend/internal/http"
	"github.com/yungbote/damagegraph-backend/internal/observability"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
	"github.com/yungbote/damagegraph-backend/internal/platform/shutdown"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Metrics  *observability.Metrics
	Services Services
	Server   *apphttp.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	clients, err := wireClients(ctx, log)
	if err != nil {
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, err
	}

	svcs, err := wireServices(log, cfg, clients, metrics)
	if err != nil {
		clients.Close(ctx)
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, err
	}
	svcs.DamageGraph.EnsureSchema(ctx)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Metrics:      metrics,
		Services:     svcs,
		Server:       wireServer(log, cfg, clients, svcs, metrics),
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.Clients.Neo4j != nil {
		a.Metrics.StartDependencyCollector(gctx, a.Log, "neo4j", a.Clients.Neo4j)
	}
	if a.Clients.Redis != nil {
		a.Metrics.StartDependencyCollector(gctx, a.Log, "redis", observability.RedisPinger{Client: a.Clients.Redis})
		g.Go(func() error {
			err := a.Services.Events.Subscribe(gctx, func(ev redisclient.DamageEvent) {
				a.Log.Debug("damage event", "kind", ev.Kind, "damage_ids", ev.DamageIDs, "trace_id", ev.TraceID)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Warn("damage event subscription ended", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr())
		return a.Server.Run(a.Cfg.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdown.Timeout())
		defer cancel()
		a.Log.Info("HTTP server shutting down")
		return a.Server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Clients.Close(ctx)
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
