package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisPublisher stores the latest snapshot per symbol under
// <prefix>:snapshot:<symbol> and announces it on <prefix>:snapshots.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisPublisher(cfg RedisConfig) *RedisPublisher {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "crypto-monitor"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisPublisher{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

func (r *RedisPublisher) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *RedisPublisher) SnapshotKey(symbol string) string {
	return fmt.Sprintf("%s:snapshot:%s", r.prefix, symbol)
}

func (r *RedisPublisher) Channel() string {
	return r.prefix + ":snapshots"
}

func (r *RedisPublisher) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.SnapshotKey(snap.Symbol), data, r.ttl)
	pipe.Publish(ctx, r.Channel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", snap.Symbol, err)
	}
	return nil
}

func (r *RedisPublisher) Close() error {
	return r.client.Close()
}
