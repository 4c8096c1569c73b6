package app

import (
	"fmt"

	"github.com/yungbote/damagegraph-backend/internal/data/graph"
	"github.com/yungbote/damagegraph-backend/internal/http/handlers"
	"github.com/yungbote/damagegraph-backend/internal/platform/envutil"
)

type Config struct {
	LogMode     string
	Port        string
	ServiceName string
	Environment string
	Version     string

	// OntologyConfigPath points at the YAML projection options; empty uses the defaults.
	OntologyConfigPath string
	// JWTSecret enables bearer auth on /api when set.
	JWTSecret      string
	MaxUploadBytes int64

	IngestPolicy graph.InvalidPolicy
	IngestAtomic bool
}

func LoadConfig() (Config, error) {
	policy, err := graph.ParseInvalidPolicy(envutil.String("GRAPH_INGEST_INVALID_POLICY", string(graph.PolicyAbort)))
	if err != nil {
		return Config{}, fmt.Errorf("GRAPH_INGEST_INVALID_POLICY: %w", err)
	}
	cfg := Config{
		LogMode:            envutil.String("LOG_MODE", "development"),
		Port:               envutil.String("PORT", "8080"),
		ServiceName:        envutil.String("SERVICE_NAME", "damagegraph"),
		Environment:        envutil.String("APP_ENV", "development"),
		Version:            envutil.String("APP_VERSION", "dev"),
		OntologyConfigPath: envutil.String("ONTOLOGY_CONFIG_PATH", ""),
		JWTSecret:          envutil.String("AUTH_JWT_SECRET", ""),
		MaxUploadBytes:     envutil.Int64("MAX_UPLOAD_BYTES", handlers.DefaultMaxUploadBytes),
		IngestPolicy:       policy,
		IngestAtomic:       envutil.Bool("GRAPH_INGEST_ATOMIC", false),
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return ":" + c.Port
}
