package plattform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"goforward/forward-server/internal/config"
	"goforward/pkg/styles"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var (
	// ErrMissingMongoURI indicates that no MongoDB URI was configured.
	ErrMissingMongoURI = errors.New("database: missing MongoDB URI")
)

// NewClient establishes a MongoDB client and returns a MongoService.
// The caller owns the returned service and must call Disconnect when done.
func NewClient(ctx context.Context, cfg config.MongoConfig) (*MongoService, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, ErrMissingMongoURI
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opt := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)
	client, err := mongo.Connect(opt)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	return NewMongoService(client, cfg.Database), nil
}

type MongoService struct {
	client *mongo.Client
	dbName string
}

// NewMongoService creates a new MongoService bound to one database.
func NewMongoService(client *mongo.Client, dbName string) *MongoService {
	return &MongoService{client: client, dbName: dbName}
}

// Collection returns a handle to the requested collection of the configured database.
func (s *MongoService) Collection(name string) *mongo.Collection {
	return s.client.Database(s.dbName).Collection(name)
}

// Ping checks the connection; used by /health and /monitoring.
func (s *MongoService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoService) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ConnectWithRetry reintenta NewClient cada cfg.RetryInterval hasta
// conectar, agotar cfg.MaxRetries (0 = sin límite) o que se cancele ctx.
func ConnectWithRetry(ctx context.Context, cfg config.MongoConfig) (*MongoService, error) {
	attempt := 0
	for {
		attempt++
		svc, err := NewClient(ctx, cfg)
		if err == nil {
			if attempt > 1 {
				styles.PrintFS("success", "[MONGO] Conexión a MongoDB exitosa tras %d intentos", attempt)
			}
			return svc, nil
		}
		if errors.Is(err, ErrMissingMongoURI) {
			return nil, err
		}

		styles.PrintFS("error", "[MONGO] Error conectando a MongoDB (intento %d): %v", attempt, err)
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries {
			return nil, fmt.Errorf("database: giving up after %d attempts: %w", attempt, err)
		}

		select {
		case <-time.After(cfg.RetryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
