package presence

import (
	"context"
	"time"

	"goforward/pkg/styles"
	"goforward/pkg/types"

	"github.com/redis/go-redis/v9"
)

const (
	RedisWorkerIndexKey  = "workers:index"
	RedisWorkerKeyPrefix = "worker:"
	redisWriteTimeout    = 2 * time.Second
)

// RedisTracker refleja el pool en Redis: un hash por worker con TTL y un set
// índice. Es solo informativo; la fuente de verdad es el pool en memoria.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisTracker{client: client, ttl: ttl}
}

func (t *RedisTracker) WorkerJoined(info types.WorkerInfo, _ int) {
	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()

	key := RedisWorkerKeyPrefix + info.ID
	fields := map[string]interface{}{
		"worker_id":    info.ID,
		"addr":         info.RemoteAddr,
		"codec":        info.Codec,
		"state":        info.State.String(),
		"connected_at": info.ConnectedAt.UnixMilli(),
		"last_seen":    info.LastActivity.UnixMilli(),
	}

	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, t.ttl)
		pipe.SAdd(ctx, RedisWorkerIndexKey, info.ID)
		return nil
	})
	if err != nil {
		styles.PrintFS("error", "[REDIS] Error registrando worker %s: %v", info.ID, err)
	}
}

// WorkerAlive renueva last_seen y el TTL en cada heartbeat.
func (t *RedisTracker) WorkerAlive(info types.WorkerInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()

	key := RedisWorkerKeyPrefix + info.ID
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "last_seen", info.LastActivity.UnixMilli(), "in_flight", info.InFlight)
		pipe.Expire(ctx, key, t.ttl)
		return nil
	})
	if err != nil {
		styles.PrintFS("error", "[REDIS] Error refrescando worker %s: %v", info.ID, err)
	}
}

func (t *RedisTracker) WorkerLeft(info types.WorkerInfo, _ int, _ string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()

	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, RedisWorkerKeyPrefix+info.ID)
		pipe.SRem(ctx, RedisWorkerIndexKey, info.ID)
		return nil
	})
	if err != nil {
		styles.PrintFS("error", "[REDIS] Error quitando worker %s: %v", info.ID, err)
	}
}

// Ping lo usa /health.
func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}
