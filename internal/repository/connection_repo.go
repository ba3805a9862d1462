package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

// Key namespaces within the scoped store. User-facing config lives under
// config:, connection metadata under oauth:connection:, and the batch job
// summary under a single fixed GLOBAL key.
const (
	ConfigKeyPrefix     = "config:"
	ConnectionKeyPrefix = "oauth:connection:"
	JobStatusKey        = "oauth:refresh_job_status"
)

// ConnectionKey returns the scoped-store key for a connection name.
func ConnectionKey(name string) string {
	return ConnectionKeyPrefix + name
}

// ScopedConnectionStore implements ConnectionStore on top of the scoped
// config store, serializing each connection as one JSON entry.
type ScopedConnectionStore struct {
	entries ConfigStore
}

var _ ConnectionStore = (*ScopedConnectionStore)(nil)

func NewScopedConnectionStore(entries ConfigStore) *ScopedConnectionStore {
	return &ScopedConnectionStore{entries: entries}
}

func (s *ScopedConnectionStore) Create(ctx context.Context, conn domain.OAuthConnection) (*domain.OAuthConnection, error) {
	conn.Scope = domain.NormalizeScope(conn.Scope)
	existing, err := s.GetExact(ctx, conn.Scope, conn.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.Conflict("connection %s already exists in scope %s", conn.Name, conn.Scope)
	}

	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	if conn.Status == "" {
		conn.Status = domain.StatusNotConnected
	}
	if err := s.put(ctx, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// Get looks up the connection in scope first, then falls back to GLOBAL.
func (s *ScopedConnectionStore) Get(ctx context.Context, scope, name string) (*domain.OAuthConnection, error) {
	entry, err := s.entries.GetWithFallback(ctx, scope, ConnectionKey(name))
	if err != nil {
		return nil, err
	}
	return decodeConnection(entry)
}

// GetExact looks up the connection in the given scope only.
func (s *ScopedConnectionStore) GetExact(ctx context.Context, scope, name string) (*domain.OAuthConnection, error) {
	entry, err := s.entries.Get(ctx, scope, ConnectionKey(name))
	if err != nil {
		return nil, err
	}
	return decodeConnection(entry)
}

// List returns scope-local connections, plus GLOBAL connections not shadowed
// by a scope-local record of the same name when includeGlobal is set.
func (s *ScopedConnectionStore) List(ctx context.Context, scope string, includeGlobal bool) ([]domain.OAuthConnection, error) {
	scope = domain.NormalizeScope(scope)
	local, err := s.listScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	if !includeGlobal || scope == domain.ScopeGlobal {
		return local, nil
	}

	global, err := s.listScope(ctx, domain.ScopeGlobal)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(local))
	for _, conn := range local {
		seen[conn.Name] = struct{}{}
	}
	for _, conn := range global {
		if _, ok := seen[conn.Name]; !ok {
			local = append(local, conn)
		}
	}
	return local, nil
}

func (s *ScopedConnectionStore) ListAll(ctx context.Context) ([]domain.OAuthConnection, error) {
	entries, err := s.entries.ListAllScopes(ctx, ConnectionKeyPrefix)
	if err != nil {
		return nil, err
	}
	return decodeConnections(entries)
}

func (s *ScopedConnectionStore) Update(ctx context.Context, scope, name string, patch domain.ConnectionPatch, updatedBy string) (*domain.OAuthConnection, error) {
	conn, err := s.GetExact(ctx, scope, name)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, nil
	}

	applyPatch(conn, patch)
	conn.UpdatedBy = updatedBy
	conn.UpdatedAt = time.Now().UTC()
	if err := s.put(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *ScopedConnectionStore) Delete(ctx context.Context, scope, name string) (bool, error) {
	return s.entries.Delete(ctx, scope, ConnectionKey(name))
}

// UpdateStatus writes the status, message, and any token-lifecycle extras.
// The record is located with GLOBAL fallback so callback-path updates land on
// the record that was actually read.
func (s *ScopedConnectionStore) UpdateStatus(ctx context.Context, scope, name string, status domain.ConnectionStatus, message string, extra *domain.StatusExtra) error {
	conn, err := s.Get(ctx, scope, name)
	if err != nil {
		return err
	}
	if conn == nil {
		return domain.NotFound("connection %s not found in scope %s", name, scope)
	}

	conn.Status = status
	conn.StatusMessage = message
	if extra != nil {
		if extra.OAuthResponseRef != nil {
			conn.OAuthResponseRef = *extra.OAuthResponseRef
		}
		if extra.ExpiresAt != nil {
			conn.ExpiresAt = extra.ExpiresAt
		}
		if extra.LastRefreshAt != nil {
			conn.LastRefreshAt = extra.LastRefreshAt
		}
	}
	conn.UpdatedAt = time.Now().UTC()
	return s.put(ctx, conn)
}

func (s *ScopedConnectionStore) listScope(ctx context.Context, scope string) ([]domain.OAuthConnection, error) {
	entries, err := s.entries.List(ctx, scope, ConnectionKeyPrefix)
	if err != nil {
		return nil, err
	}
	return decodeConnections(entries)
}

func (s *ScopedConnectionStore) put(ctx context.Context, conn *domain.OAuthConnection) error {
	payload, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("encode connection %s: %w", conn.Name, err)
	}
	_, err = s.entries.Set(ctx, domain.ConfigEntry{
		Scope:     conn.Scope,
		Key:       ConnectionKey(conn.Name),
		Value:     string(payload),
		Type:      domain.ConfigTypeJSON,
		UpdatedBy: conn.UpdatedBy,
	})
	return err
}

func decodeConnection(entry *domain.ConfigEntry) (*domain.OAuthConnection, error) {
	if entry == nil {
		return nil, nil
	}
	var conn domain.OAuthConnection
	if err := json.Unmarshal([]byte(entry.Value), &conn); err != nil {
		return nil, fmt.Errorf("decode connection %s: %w", entry.Key, err)
	}
	// The entry's scope is authoritative; GLOBAL fallback reads must report
	// where the record actually lives.
	conn.Scope = entry.Scope
	conn.Name = strings.TrimPrefix(entry.Key, ConnectionKeyPrefix)
	return &conn, nil
}

func decodeConnections(entries []domain.ConfigEntry) ([]domain.OAuthConnection, error) {
	conns := make([]domain.OAuthConnection, 0, len(entries))
	for i := range entries {
		conn, err := decodeConnection(&entries[i])
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	return conns, nil
}

func applyPatch(conn *domain.OAuthConnection, patch domain.ConnectionPatch) {
	if patch.ClientID != nil {
		conn.ClientID = *patch.ClientID
	}
	if patch.ClientSecretRef != nil {
		conn.ClientSecretRef = *patch.ClientSecretRef
	}
	if patch.AuthorizationURL != nil {
		conn.AuthorizationURL = *patch.AuthorizationURL
	}
	if patch.TokenURL != nil {
		conn.TokenURL = *patch.TokenURL
	}
	if patch.RedirectURI != nil {
		conn.RedirectURI = *patch.RedirectURI
	}
	if patch.Scopes != nil {
		conn.Scopes = *patch.Scopes
	}
	if patch.TestURL != nil {
		conn.TestURL = *patch.TestURL
	}
	if patch.OAuthFlowType != nil {
		conn.OAuthFlowType = *patch.OAuthFlowType
	}
}
