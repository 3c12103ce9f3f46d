package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 60*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, "forward", cfg.Mongo.Database)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forward.yaml")
	yml := `
http_addr: ":9000"
reply_timeout: 30s
heartbeat_interval: 2s
heartbeat_timeout: 6s
redis:
  addr: "redis:6379"
source:
  snapshot_urls:
    cam0: "http://cam0/snapshot.jpg"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("REPLY_TIMEOUT", "10s")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 2*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 6*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "http://cam0/snapshot.jpg", cfg.Source.SnapshotURLs["cam0"])
}

func TestLoad_SnapshotURLsFromEnv(t *testing.T) {
	t.Setenv("SNAPSHOT_URLS", "front=http://a/snap, back=http://b/snap")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"front": "http://a/snap", "back": "http://b/snap"}, cfg.Source.SnapshotURLs)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad duration", "REPLY_TIMEOUT", "soon"},
		{"bad int", "SEND_QUEUE_SIZE", "many"},
		{"bad bool", "AUTH_REQUIRED", "maybe"},
		{"bad pair", "SNAPSHOT_URLS", "nourl"},
		{"timeout below interval", "HEARTBEAT_TIMEOUT", "1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidate_AuthRequiresSecret(t *testing.T) {
	cfg := Default()
	cfg.Auth.Required = true
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.Auth.JWTSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_MongoRetryEnv(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://mongo:27017")
	t.Setenv("MONGO_RETRY_INTERVAL", "2s")
	t.Setenv("MONGO_MAX_RETRIES", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Mongo.RetryInterval)
	assert.Equal(t, 0, cfg.Mongo.MaxRetries)

	t.Setenv("MONGO_MAX_RETRIES", "-1")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
