package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/damagegraph-backend/internal/domain/ingest"
	"github.com/yungbote/damagegraph-backend/internal/platform/envutil"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver string
	DSN    string
}

// Enabled reports whether an audit store is configured. Without one, ingest runs are only logged.
func (c Config) Enabled() bool { return strings.TrimSpace(c.Driver) != "" }

func ResolveConfigFromEnv() Config {
	return Config{
		Driver: strings.ToLower(envutil.String("AUDIT_DB_DRIVER", "")),
		DSN:    envutil.String("AUDIT_DB_DSN", ""),
	}
}

type AuditService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewAuditService opens the audit database and migrates its tables. A disabled config yields (nil, nil).
func NewAuditService(logg *logger.Logger, cfg Config) (*AuditService, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	serviceLog := logg.With("service", "AuditService")

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("AUDIT_DB_DSN is required for driver %q", cfg.Driver)
		}
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "damagegraph_audit.db?_busy_timeout=5000"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported AUDIT_DB_DRIVER %q", cfg.Driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit db: %w", err)
	}
	if err := AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("failed to migrate audit db: %w", err)
	}
	serviceLog.Info("audit db ready", "driver", cfg.Driver)
	return &AuditService{db: db, log: serviceLog}, nil
}

func (s *AuditService) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *AuditService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&ingest.IngestRun{},
	)
}
