package cache

import (
	"context"
	"fmt"
	"time"

	"goforward/forward-server/internal/config"
	"goforward/pkg/styles"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

// NewRedisClient crea el cliente y verifica la conexión con un PING.
// Devuelve nil, nil si no hay dirección configurada.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	styles.PrintFS("info", "[REDIS] Conectando a %s (DB %d)", cfg.Addr, cfg.DB)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
