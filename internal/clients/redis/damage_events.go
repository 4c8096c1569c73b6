package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

// DamageEvent announces a change to the damage graph to other instances and consumers.
type DamageEvent struct {
	Kind      string    `json:"kind"`
	DamageIDs []string  `json:"damage_ids"`
	TraceID   string    `json:"trace_id,omitempty"`
	At        time.Time `json:"at"`
}

type EventBus interface {
	Publish(ctx context.Context, ev DamageEvent) error
	Subscribe(ctx context.Context, onEvent func(DamageEvent)) error
}

type eventBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewEventBus(log *logger.Logger, rdb *goredis.Client, channel string) EventBus {
	if rdb == nil {
		return NoopBus{}
	}
	if channel == "" {
		channel = "damage-events"
	}
	return &eventBus{
		log:     log.With("service", "RedisEventBus"),
		rdb:     rdb,
		channel: channel,
	}
}

func (b *eventBus) Publish(ctx context.Context, ev DamageEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *eventBus) Subscribe(ctx context.Context, onEvent func(DamageEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev DamageEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad damage event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

type NoopBus struct{}

func (NoopBus) Publish(context.Context, DamageEvent) error { return nil }

func (NoopBus) Subscribe(context.Context, func(DamageEvent)) error { return nil }
