package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
	"github.com/jackmusick/bifrost-api-sub005/internal/repository"
)

const stateKeyPrefix = "oauth:state:"

// RedisStateStore implements AuthStateStore backed by Redis. Entries expire
// after the configured TTL, so an abandoned handshake cleans itself up.
type RedisStateStore struct {
	client redis.UniversalClient
}

var _ repository.AuthStateStore = (*RedisStateStore)(nil)

// NewRedisStateStore constructs a Redis-backed state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// SaveState stores the encoded authorization state payload with TTL.
func (s *RedisStateStore) SaveState(ctx context.Context, state domain.AuthState, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, stateKeyPrefix+state.State, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// GetState loads and decodes the state payload. Missing keys return nil.
func (s *RedisStateStore) GetState(ctx context.Context, state string) (*domain.AuthState, error) {
	bytes, err := s.client.Get(ctx, stateKeyPrefix+state).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	var decoded domain.AuthState
	if err := json.Unmarshal(bytes, &decoded); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &decoded, nil
}

// DeleteState removes the persisted state key.
func (s *RedisStateStore) DeleteState(ctx context.Context, state string) error {
	if err := s.client.Del(ctx, stateKeyPrefix+state).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
