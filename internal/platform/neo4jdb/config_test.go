package neo4jdb

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

func TestResolveConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("NEO4J_URI", "neo4j://127.0.0.1:7687")
	t.Setenv("NEO4J_USER", "")
	t.Setenv("NEO4J_TIMEOUT_SECONDS", "")
	t.Setenv("NEO4J_MAX_POOL_SIZE", "")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.User != "neo4j" {
		t.Fatalf("User: want=%q got=%q", "neo4j", cfg.User)
	}
	if cfg.Timeout != 10*time.Second {
		t.Fatalf("Timeout: want=%v got=%v", 10*time.Second, cfg.Timeout)
	}
	if cfg.MaxPoolSize != 50 {
		t.Fatalf("MaxPoolSize: want=%d got=%d", 50, cfg.MaxPoolSize)
	}
	if !cfg.Enabled() {
		t.Fatalf("Enabled: want=true")
	}
}

func TestResolveConfigFromEnvDisabled(t *testing.T) {
	t.Setenv("NEO4J_URI", "")
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Enabled() {
		t.Fatalf("Enabled: want=false")
	}
	client, err := New(context.Background(), logger.Nop(), cfg)
	if err != nil || client != nil {
		t.Fatalf("New with disabled config: want (nil, nil) got (%v, %v)", client, err)
	}
}

func TestResolveConfigFromEnvInvalidURI(t *testing.T) {
	t.Setenv("NEO4J_URI", "http://localhost:7474")
	_, err := ResolveConfigFromEnv()
	cfgErr, ok := err.(*ConfigError)
	if !ok {
		t.Fatalf("expected *ConfigError, got=%T", err)
	}
	if cfgErr.Code != ConfigErrorInvalidURI {
		t.Fatalf("code: want=%q got=%q", ConfigErrorInvalidURI, cfgErr.Code)
	}
}

func TestResolveConfigFromEnvInvalidTimeout(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://localhost:7687")
	t.Setenv("NEO4J_TIMEOUT_SECONDS", "0")
	_, err := ResolveConfigFromEnv()
	cfgErr, ok := err.(*ConfigError)
	if !ok {
		t.Fatalf("expected *ConfigError, got=%T", err)
	}
	if cfgErr.Code != ConfigErrorInvalidTimeout {
		t.Fatalf("code: want=%q got=%q", ConfigErrorInvalidTimeout, cfgErr.Code)
	}
}

func TestNilClientIsNotReady(t *testing.T) {
	var c *Client
	if c.Ready() {
		t.Fatalf("Ready: want=false")
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := c.OpenSession(context.Background(), true); err == nil {
		t.Fatalf("OpenSession: expected error on nil client")
	}
}
