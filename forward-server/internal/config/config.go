package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config es la configuración estática del proceso: se carga una vez al inicio.
type Config struct {
	HTTPAddr          string        `yaml:"http_addr"`
	ReplyTimeout      time.Duration `yaml:"reply_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	SendQueueSize     int           `yaml:"send_queue_size"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	Redis  RedisConfig  `yaml:"redis"`
	Mongo  MongoConfig  `yaml:"mongo"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Auth   AuthConfig   `yaml:"auth"`
	Source SourceConfig `yaml:"source"`
}

// RedisConfig: si Addr está vacío no se publica presencia en Redis.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	WorkerTTL time.Duration `yaml:"worker_ttl"`
}

// MongoConfig: si URI está vacía no hay auditoría ni cuentas de operador.
type MongoConfig struct {
	URI           string        `yaml:"uri"`
	Database      string        `yaml:"database"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxRetries    int           `yaml:"max_retries"` // 0 = sin límite
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Required  bool   `yaml:"required"`
}

// SourceConfig configura de dónde salen los frames de /image/:id.
type SourceConfig struct {
	FrameDir     string            `yaml:"frame_dir"`
	SnapshotURLs map[string]string `yaml:"snapshot_urls"`
}

func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		ReplyTimeout:      60 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		HeartbeatTimeout:  15 * time.Second,
		SendQueueSize:     16,
		ShutdownTimeout:   5 * time.Second,
		Redis: RedisConfig{
			WorkerTTL: 5 * time.Minute,
		},
		Mongo: MongoConfig{
			Database:      "forward",
			RetryInterval: 15 * time.Second,
			MaxRetries:    3,
		},
		MQTT: MQTTConfig{
			Topic:    "forward/workers",
			ClientID: "forward-server",
		},
	}
}

// Load lee el YAML en path (opcional), aplica las variables de entorno encima y valida.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return fmt.Errorf("%w: http_addr is empty", ErrInvalidConfig)
	case c.ReplyTimeout <= 0:
		return fmt.Errorf("%w: reply_timeout must be positive", ErrInvalidConfig)
	case c.HeartbeatInterval <= 0:
		return fmt.Errorf("%w: heartbeat_interval must be positive", ErrInvalidConfig)
	case c.HeartbeatTimeout <= c.HeartbeatInterval:
		return fmt.Errorf("%w: heartbeat_timeout (%s) must exceed heartbeat_interval (%s)",
			ErrInvalidConfig, c.HeartbeatTimeout, c.HeartbeatInterval)
	case c.SendQueueSize <= 0:
		return fmt.Errorf("%w: send_queue_size must be positive", ErrInvalidConfig)
	case c.Mongo.URI != "" && c.Mongo.RetryInterval <= 0:
		return fmt.Errorf("%w: mongo.retry_interval must be positive", ErrInvalidConfig)
	case c.Mongo.MaxRetries < 0:
		return fmt.Errorf("%w: mongo.max_retries cannot be negative", ErrInvalidConfig)
	case c.Auth.Required && c.Auth.JWTSecret == "":
		return fmt.Errorf("%w: auth.required needs a jwt_secret", ErrInvalidConfig)
	}
	return nil
}

func applyEnv(c *Config) error {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Mongo.URI, "MONGODB_URI")
	setString(&c.Mongo.Database, "MONGO_DB_NAME")
	setString(&c.MQTT.Broker, "MQTT_BROKER")
	setString(&c.MQTT.Topic, "MQTT_TOPIC")
	setString(&c.MQTT.ClientID, "MQTT_CLIENT_ID")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Source.FrameDir, "FRAME_DIR")

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.ReplyTimeout, "REPLY_TIMEOUT"},
		{&c.HeartbeatInterval, "HEARTBEAT_INTERVAL"},
		{&c.HeartbeatTimeout, "HEARTBEAT_TIMEOUT"},
		{&c.ShutdownTimeout, "SHUTDOWN_TIMEOUT"},
		{&c.Redis.WorkerTTL, "REDIS_WORKER_TTL"},
		{&c.Mongo.RetryInterval, "MONGO_RETRY_INTERVAL"},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}

	if err := setInt(&c.SendQueueSize, "SEND_QUEUE_SIZE"); err != nil {
		return err
	}
	if err := setInt(&c.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&c.Mongo.MaxRetries, "MONGO_MAX_RETRIES"); err != nil {
		return err
	}

	if v := strings.TrimSpace(os.Getenv("AUTH_REQUIRED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: AUTH_REQUIRED=%q: %v", ErrInvalidConfig, v, err)
		}
		c.Auth.Required = b
	}

	if v := strings.TrimSpace(os.Getenv("SNAPSHOT_URLS")); v != "" {
		urls, err := parsePairs(v)
		if err != nil {
			return err
		}
		c.Source.SnapshotURLs = urls
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
	}
	*dst = n
	return nil
}

// parsePairs interpreta "cam0=http://a,cam1=http://b".
func parsePairs(v string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, val, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" || strings.TrimSpace(val) == "" {
			return nil, fmt.Errorf("%w: SNAPSHOT_URLS entry %q must be name=url", ErrInvalidConfig, pair)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return out, nil
}
