package app

import (
	"fmt"

	redisclient "github.com/yungbote/damagegraph-backend/internal/clients/redis"
	"github.com/yungbote/damagegraph-backend/internal/data/repos"
	"github.com/yungbote/damagegraph-backend/internal/observability"
	"github.com/yungbote/damagegraph-backend/internal/ontology"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
	"github.com/yungbote/damagegraph-backend/internal/services"
)

type Services struct {
	Audit       *services.AuditRecorder
	DamageGraph services.DamageGraphService
	Pipeline    services.PipelineService
	Events      redisclient.EventBus
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	ontoCfg, err := ontology.LoadConfig(cfg.OntologyConfigPath)
	if err != nil {
		return Services{}, fmt.Errorf("load ontology config: %w", err)
	}

	var runRepo repos.IngestRunRepo
	if db := clients.Audit.DB(); db != nil {
		runRepo = repos.NewIngestRunRepo(db, log)
	}
	audit := services.NewAuditRecorder(log, runRepo)

	// A nil *neo4jdb.Client must reach the service as a nil interface.
	var store services.GraphStore
	if clients.Neo4j != nil {
		store = clients.Neo4j
	}
	locker := redisclient.NewDamageLocker(log, clients.Redis, clients.RedisCfg.LockTTL)
	events := redisclient.NewEventBus(log, clients.Redis, clients.RedisCfg.Channel)

	return Services{
		Audit: audit,
		DamageGraph: services.NewDamageGraphService(log, store, locker, events, audit, metrics, services.DamageGraphConfig{
			Atomic:        cfg.IngestAtomic,
			DefaultPolicy: cfg.IngestPolicy,
		}),
		Pipeline: services.NewPipelineService(log, ontoCfg.Options(), audit, metrics),
		Events:   events,
	}, nil
}
