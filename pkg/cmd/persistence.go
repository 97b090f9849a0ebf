package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/dukex/leadflow/pkg/persistence/postgresql"
	"github.com/dukex/leadflow/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the store named by databaseURL. When redisURL is set, pauses and current
// actions live in Redis instead, so every API and worker process sees the same run state.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL, redisURL string) (persistence.Persistence, error) {
	var (
		store persistence.Persistence
		err   error
	)

	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err = postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}
	default:
		store = file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}

	if redisURL == "" {
		return store, nil
	}

	runState, err := redis.Connect(ctx, logger, redisURL, "leadflow:")
	if err != nil {
		_ = store.Close(ctx)

		return nil, err
	}

	return &runStatePersistence{Persistence: store, runState: runState}, nil
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}

// runStatePersistence serves pauses and current actions from Redis and the rest from the
// underlying store.
type runStatePersistence struct {
	persistence.Persistence

	runState *redis.RunState
}

func (p *runStatePersistence) PauseRepository() persistence.PauseRepository {
	return p.runState
}

func (p *runStatePersistence) CurrentActionRepository() persistence.CurrentActionRepository {
	return p.runState
}

func (p *runStatePersistence) HealthCheck(ctx context.Context) error {
	return errors.Join(p.Persistence.HealthCheck(ctx), p.runState.HealthCheck(ctx))
}

func (p *runStatePersistence) Close(ctx context.Context) error {
	return errors.Join(p.Persistence.Close(ctx), p.runState.Close())
}
