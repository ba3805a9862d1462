package repository

import (
	"context"
	"time"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

// ConfigStore is the scoped key/value store. Keys are stored with their
// namespace prefix; lookups are exact unless GetWithFallback is used.
type ConfigStore interface {
	Get(ctx context.Context, scope, key string) (*domain.ConfigEntry, error)
	GetWithFallback(ctx context.Context, scope, key string) (*domain.ConfigEntry, error)
	List(ctx context.Context, scope, prefix string) ([]domain.ConfigEntry, error)
	ListAllScopes(ctx context.Context, prefix string) ([]domain.ConfigEntry, error)
	Set(ctx context.Context, entry domain.ConfigEntry) (*domain.ConfigEntry, error)
	Delete(ctx context.Context, scope, key string) (bool, error)
}

// ConnectionStore persists OAuth connection records. Get falls back to the
// GLOBAL scope; UpdateStatus is the only mutation path allowed to change a
// connection's status.
type ConnectionStore interface {
	Create(ctx context.Context, conn domain.OAuthConnection) (*domain.OAuthConnection, error)
	Get(ctx context.Context, scope, name string) (*domain.OAuthConnection, error)
	GetExact(ctx context.Context, scope, name string) (*domain.OAuthConnection, error)
	List(ctx context.Context, scope string, includeGlobal bool) ([]domain.OAuthConnection, error)
	ListAll(ctx context.Context) ([]domain.OAuthConnection, error)
	Update(ctx context.Context, scope, name string, patch domain.ConnectionPatch, updatedBy string) (*domain.OAuthConnection, error)
	Delete(ctx context.Context, scope, name string) (bool, error)
	UpdateStatus(ctx context.Context, scope, name string, status domain.ConnectionStatus, message string, extra *domain.StatusExtra) error
}

// AuthStateStore persists short-lived CSRF authorization state with TTL.
type AuthStateStore interface {
	SaveState(ctx context.Context, state domain.AuthState, ttl time.Duration) error
	GetState(ctx context.Context, state string) (*domain.AuthState, error)
	DeleteState(ctx context.Context, state string) error
}

// JobStatusStore holds the single most-recent batch refresh summary.
type JobStatusStore interface {
	Write(ctx context.Context, status domain.RefreshJobStatus) error
	Read(ctx context.Context) (*domain.RefreshJobStatus, error)
}
