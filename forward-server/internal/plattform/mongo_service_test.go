package plattform

import (
	"context"
	"testing"
	"time"

	"goforward/forward-server/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_MissingURI(t *testing.T) {
	_, err := NewClient(context.Background(), config.MongoConfig{URI: "  "})
	assert.ErrorIs(t, err, ErrMissingMongoURI)
}

func TestConnectWithRetry_MissingURIDoesNotRetry(t *testing.T) {
	start := time.Now()
	_, err := ConnectWithRetry(context.Background(), config.MongoConfig{RetryInterval: time.Hour})
	assert.ErrorIs(t, err, ErrMissingMongoURI)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnectWithRetry_GivesUp(t *testing.T) {
	cfg := config.MongoConfig{URI: "not-a-mongo-uri", RetryInterval: time.Millisecond, MaxRetries: 2}
	_, err := ConnectWithRetry(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 2 attempts")
}

func TestConnectWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := config.MongoConfig{URI: "not-a-mongo-uri", RetryInterval: time.Hour}
	_, err := ConnectWithRetry(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}
