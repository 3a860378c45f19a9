package store

import (
	"context"
	"fmt"

	"github.com/geoflow/geoflow/core/domain/interfaces"
	"github.com/geoflow/geoflow/core/infrastructure/logging"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	DefaultKeyPrefix = "geoflow"
)

// Options selects and configures a session store backend
type Options struct {
	Backend     string
	RedisURL    string
	PostgresURL string
	KeyPrefix   string
}

// New opens the backend named by opts.Backend. An empty backend means memory.
func New(ctx context.Context, opts Options) (interfaces.SessionStore, error) {
	log := logging.New("store")

	switch opts.Backend {
	case "", BackendMemory:
		log.Debugf("Using in-memory session store")
		return NewMemoryStore(), nil
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("store backend 'redis' requires store.redis_url")
		}
		s, err := NewRedisStore(ctx, opts.RedisURL, opts.KeyPrefix)
		if err != nil {
			return nil, err
		}
		log.Infof("Using Redis session store (prefix %s)", s.prefix)
		return s, nil
	case BackendPostgres:
		if opts.PostgresURL == "" {
			return nil, fmt.Errorf("store backend 'postgres' requires store.postgres_url")
		}
		s, err := NewPostgresStore(ctx, opts.PostgresURL)
		if err != nil {
			return nil, err
		}
		log.Infof("Using PostgreSQL session store")
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store backend '%s'", opts.Backend)
	}
}
