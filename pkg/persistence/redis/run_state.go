// Package redis keeps the resumable run state (pauses and current actions) in Redis hashes,
// so several API and worker processes share it.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const (
	currentActionsKey = "lead_current_actions"
	pausesKey         = "lead_pauses"
)

// RunState implements persistence.PauseRepository and persistence.CurrentActionRepository.
type RunState struct {
	client goredis.UniversalClient
	prefix string
	logger *slog.Logger
}

// Connect parses a redis:// URL, pings the server and returns the store.
func Connect(ctx context.Context, logger *slog.Logger, url, prefix string) (*RunState, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return New(client, prefix, logger), nil
}

func New(client goredis.UniversalClient, prefix string, logger *slog.Logger) *RunState {
	return &RunState{client: client, prefix: prefix, logger: logger}
}

func (s *RunState) key(name string) string {
	return s.prefix + name
}

func (s *RunState) SavePause(ctx context.Context, state *models.PauseState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return persistence.NewLeadStateError("SavePause", state.LeadID, err)
	}

	err = s.client.HSet(ctx, s.key(pausesKey), state.LeadID, data).Err()
	if err != nil {
		return persistence.NewLeadStateError("SavePause", state.LeadID, err)
	}

	return nil
}

func (s *RunState) PauseByLead(ctx context.Context, leadID string) (*models.PauseState, error) {
	data, err := s.client.HGet(ctx, s.key(pausesKey), leadID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewLeadStateError("PauseByLead", leadID, persistence.ErrPauseNotFound)
	}

	if err != nil {
		return nil, persistence.NewLeadStateError("PauseByLead", leadID, err)
	}

	var state models.PauseState

	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, persistence.NewLeadStateError("PauseByLead", leadID, err)
	}

	return &state, nil
}

func (s *RunState) DeletePause(ctx context.Context, leadID string) error {
	err := s.client.HDel(ctx, s.key(pausesKey), leadID).Err()
	if err != nil {
		return persistence.NewLeadStateError("DeletePause", leadID, err)
	}

	return nil
}

func (s *RunState) Pauses(ctx context.Context) ([]*models.PauseState, error) {
	entries, err := s.client.HGetAll(ctx, s.key(pausesKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load pauses: %w", err)
	}

	pauses := make([]*models.PauseState, 0, len(entries))

	for leadID, data := range entries {
		var state models.PauseState

		err := json.Unmarshal([]byte(data), &state)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable pause", "lead_id", leadID, "error", err)

			continue
		}

		pauses = append(pauses, &state)
	}

	sort.Slice(pauses, func(i, j int) bool { return pauses[i].PausedAt.Before(pauses[j].PausedAt) })

	return pauses, nil
}

func (s *RunState) SetCurrentAction(ctx context.Context, leadID, actionID string) error {
	err := s.client.HSet(ctx, s.key(currentActionsKey), leadID, actionID).Err()
	if err != nil {
		return persistence.NewLeadStateError("SetCurrentAction", leadID, err)
	}

	return nil
}

func (s *RunState) ClearCurrentAction(ctx context.Context, leadID string) error {
	err := s.client.HDel(ctx, s.key(currentActionsKey), leadID).Err()
	if err != nil {
		return persistence.NewLeadStateError("ClearCurrentAction", leadID, err)
	}

	return nil
}

func (s *RunState) CurrentActions(ctx context.Context) (map[string]string, error) {
	current, err := s.client.HGetAll(ctx, s.key(currentActionsKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load current actions: %w", err)
	}

	return current, nil
}

func (s *RunState) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RunState) Close() error {
	return s.client.Close()
}
