package neo4jdb

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidURI     ConfigErrorCode = "invalid_uri"
	ConfigErrorInvalidTimeout ConfigErrorCode = "invalid_timeout"
	ConfigErrorInvalidPool    ConfigErrorCode = "invalid_pool_size"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid neo4j config"
	}
	switch e.Code {
	case ConfigErrorInvalidURI:
		return fmt.Sprintf("invalid NEO4J_URI=%q; expected URI like neo4j://localhost:7687", e.Value)
	case ConfigErrorInvalidTimeout:
		return fmt.Sprintf("invalid NEO4J_TIMEOUT_SECONDS=%q; expected positive integer", e.Value)
	case ConfigErrorInvalidPool:
		return fmt.Sprintf("invalid NEO4J_MAX_POOL_SIZE=%q; expected positive integer", e.Value)
	default:
		return "invalid neo4j config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Enabled reports whether a graph store is configured at all. The service runs without one;
// graph endpoints then answer 503.
func (c Config) Enabled() bool { return strings.TrimSpace(c.URI) != "" }

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URI:         strings.TrimSpace(os.Getenv("NEO4J_URI")),
		User:        strings.TrimSpace(os.Getenv("NEO4J_USER")),
		Password:    strings.TrimSpace(os.Getenv("NEO4J_PASSWORD")),
		Database:    strings.TrimSpace(os.Getenv("NEO4J_DATABASE")),
		Timeout:     10 * time.Second,
		MaxPoolSize: 50,
	}
	if cfg.User == "" {
		cfg.User = "neo4j"
	}
	if raw := strings.TrimSpace(os.Getenv("NEO4J_TIMEOUT_SECONDS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidTimeout, Value: raw, Cause: err}
		}
		cfg.Timeout = time.Duration(n) * time.Second
	}
	if raw := strings.TrimSpace(os.Getenv("NEO4J_MAX_POOL_SIZE")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidPool, Value: raw, Cause: err}
		}
		cfg.MaxPoolSize = n
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateConfig accepts an empty URI (graph store disabled).
func ValidateConfig(cfg Config) error {
	if !cfg.Enabled() {
		return nil
	}
	parsed, err := url.Parse(cfg.URI)
	if err != nil || parsed.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURI, Value: cfg.URI, Cause: err}
	}
	switch parsed.Scheme {
	case "neo4j", "neo4j+s", "neo4j+ssc", "bolt", "bolt+s", "bolt+ssc":
	default:
		return &ConfigError{Code: ConfigErrorInvalidURI, Value: cfg.URI}
	}
	return nil
}
