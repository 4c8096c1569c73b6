package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

// ErrLocked is returned when another ingest holds one of the requested damage keys.
var ErrLocked = errors.New("damage is being ingested by another request")

const lockPrefix = "damagegraph:lock:damage:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

type ReleaseFunc func(ctx context.Context) error

type DamageLocker interface {
	// Acquire locks every damage id or none of them.
	Acquire(ctx context.Context, damageIDs []string) (ReleaseFunc, error)
}

type damageLocker struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewDamageLocker(log *logger.Logger, rdb *goredis.Client, ttl time.Duration) DamageLocker {
	if rdb == nil {
		return NoopLocker{}
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &damageLocker{
		log: log.With("service", "DamageLocker"),
		rdb: rdb,
		ttl: ttl,
	}
}

func (l *damageLocker) Acquire(ctx context.Context, damageIDs []string) (ReleaseFunc, error) {
	keys := lockKeys(damageIDs)
	token := uuid.NewString()

	var held []string
	release := func(ctx context.Context) error {
		var firstErr error
		for _, k := range held {
			if err := releaseScript.Run(ctx, l.rdb, []string{k}, token).Err(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, k := range keys {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			_ = release(ctx)
			return nil, fmt.Errorf("acquire damage lock: %w", err)
		}
		if !ok {
			_ = release(ctx)
			l.log.Warn("damage lock contended", "key", k)
			return nil, ErrLocked
		}
		held = append(held, k)
	}
	return release, nil
}

// lockKeys dedupes and sorts so concurrent multi-damage uploads take keys in the same order.
func lockKeys(damageIDs []string) []string {
	seen := map[string]bool{}
	var keys []string
	for _, id := range damageIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, lockPrefix+id)
	}
	sort.Strings(keys)
	return keys
}

// NoopLocker is used when no Redis is configured.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, []string) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}
