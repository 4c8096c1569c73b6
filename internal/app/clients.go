package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/yungbote/damagegraph-backend/internal/clients/redis"
	auditdb "github.com/yungbote/damagegraph-backend/internal/data/db"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
	"github.com/yungbote/damagegraph-backend/internal/platform/neo4jdb"
)

// Clients holds the external connections. Every field is nil when its store is not configured.
type Clients struct {
	Neo4j *neo4jdb.Client
	Redis *goredis.Client
	Audit *auditdb.AuditService

	RedisCfg redisclient.Config
}

func wireClients(ctx context.Context, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Neo4j
	neo, err := neo4jdb.NewFromEnv(ctx, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init neo4j: %w", err)
	}
	if neo == nil {
		log.Warn("NEO4J_URI not set; damage graph endpoints will answer 503")
	}
	out.Neo4j = neo

	// Redis
	out.RedisCfg = redisclient.ResolveConfigFromEnv()
	rdb, err := redisclient.Dial(log, out.RedisCfg)
	if err != nil {
		out.Close(ctx)
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	out.Redis = rdb

	// Audit store
	audit, err := auditdb.NewAuditService(log, auditdb.ResolveConfigFromEnv())
	if err != nil {
		out.Close(ctx)
		return Clients{}, fmt.Errorf("init audit db: %w", err)
	}
	out.Audit = audit

	return out, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Audit != nil {
		_ = c.Audit.Close()
	}
}
