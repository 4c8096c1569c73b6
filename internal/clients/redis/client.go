package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/damagegraph-backend/internal/platform/envutil"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

type Config struct {
	Addr    string
	Channel string
	LockTTL time.Duration
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

func ResolveConfigFromEnv() Config {
	return Config{
		Addr:    envutil.String("REDIS_ADDR", ""),
		Channel: envutil.String("REDIS_CHANNEL", "damage-events"),
		LockTTL: envutil.Seconds("DAMAGE_LOCK_TTL_SECONDS", 60*time.Second),
	}
}

// Dial connects and pings. A disabled config yields (nil, nil).
func Dial(log *logger.Logger, cfg Config) (*goredis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !cfg.Enabled() {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("redis connected", "addr", cfg.Addr)
	return rdb, nil
}
