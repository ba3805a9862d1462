package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jackmusick/bifrost-api-sub005/internal/config"
	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
	"github.com/jackmusick/bifrost-api-sub005/internal/repository"
	"github.com/jackmusick/bifrost-api-sub005/internal/vault"
)

// ConfigService resolves scoped configuration, following secret_ref
// indirection into the secret vault, and owns the write path that keeps
// literal secrets out of the config store.
type ConfigService struct {
	entries     repository.ConfigStore
	connections repository.ConnectionStore
	vault       vault.SecretVault
	cfg         config.Config
	logger      *zap.Logger
}

func NewConfigService(entries repository.ConfigStore, connections repository.ConnectionStore, secretVault vault.SecretVault, cfg config.Config, logger *zap.Logger) *ConfigService {
	return &ConfigService{
		entries:     entries,
		connections: connections,
		vault:       secretVault,
		cfg:         cfg,
		logger:      logger,
	}
}

// SetConfigInput is the write request for one config key. When Type is
// secret_ref, Value is the literal secret unless Reference is set, in which
// case Value is an existing vault secret name stored as-is.
type SetConfigInput struct {
	Scope       string
	Key         string
	Value       string
	Type        domain.ConfigValueType
	Description string
	Reference   bool
	Actor       string
}

// Get returns the config entry for (scope, key), falling back to GLOBAL when
// requested. Returns nil when absent.
func (s *ConfigService) Get(ctx context.Context, scope, key string, fallbackToGlobal bool) (*domain.ConfigEntry, error) {
	storeKey := repository.ConfigKeyPrefix + key
	var (
		entry *domain.ConfigEntry
		err   error
	)
	if fallbackToGlobal {
		entry, err = s.entries.GetWithFallback(ctx, scope, storeKey)
	} else {
		entry, err = s.entries.Get(ctx, scope, storeKey)
	}
	if err != nil {
		return nil, domain.Internal("load config entry", err)
	}
	if entry == nil {
		return nil, nil
	}
	entry.Key = strings.TrimPrefix(entry.Key, repository.ConfigKeyPrefix)
	return entry, nil
}

// List returns all config entries in the scope, keys without the store prefix.
func (s *ConfigService) List(ctx context.Context, scope string) ([]domain.ConfigEntry, error) {
	entries, err := s.entries.List(ctx, scope, repository.ConfigKeyPrefix)
	if err != nil {
		return nil, domain.Internal("list config entries", err)
	}
	for i := range entries {
		entries[i].Key = strings.TrimPrefix(entries[i].Key, repository.ConfigKeyPrefix)
	}
	return entries, nil
}

// ResolveValue resolves an entry to its final value. Literal types are parsed
// per their declared type; secret_ref entries are fetched from the vault.
// Resolution failures surface to the caller, never silently defaulted.
func (s *ConfigService) ResolveValue(ctx context.Context, entry *domain.ConfigEntry) (any, error) {
	switch entry.Type {
	case domain.ConfigTypeInt:
		n, err := strconv.ParseInt(strings.TrimSpace(entry.Value), 10, 64)
		if err != nil {
			return nil, domain.Validation("config key %s is not a valid int", entry.Key)
		}
		return n, nil
	case domain.ConfigTypeBool:
		return strings.EqualFold(strings.TrimSpace(entry.Value), "true"), nil
	case domain.ConfigTypeJSON:
		var parsed any
		if err := json.Unmarshal([]byte(entry.Value), &parsed); err != nil {
			return nil, domain.Validation("config key %s is not valid JSON", entry.Key)
		}
		return parsed, nil
	case domain.ConfigTypeSecretRef:
		value, err := s.fetchSecret(ctx, entry.Value)
		if err != nil {
			return nil, err
		}
		return value, nil
	default:
		return entry.Value, nil
	}
}

// ResolveSecretRef loads the secret_ref entry at (scope, key) with GLOBAL
// fallback and returns the raw secret content from the vault.
func (s *ConfigService) ResolveSecretRef(ctx context.Context, scope, key string) (string, error) {
	entry, err := s.Get(ctx, scope, key, true)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", domain.NotFound("config key %s not found in scope %s", key, scope)
	}
	if !entry.IsSecretRef() {
		return "", domain.BadRequest("config key %s is not a secret reference", key)
	}
	return s.fetchSecret(ctx, entry.Value)
}

// Set writes a config entry. For secret_ref writes with a literal value the
// vault secret name is reused when the key already holds a reference (new
// secret version, same name), otherwise a fresh collision-resistant name is
// generated and validated before the vault write.
func (s *ConfigService) Set(ctx context.Context, in SetConfigInput) (*domain.ConfigEntry, error) {
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return nil, domain.Validation("config key is required")
	}
	if strings.HasPrefix(key, "oauth:") {
		return nil, domain.Validation("config key %s uses a reserved namespace", key)
	}
	if in.Type == "" {
		in.Type = domain.ConfigTypeString
	}

	storedValue := in.Value
	if in.Type == domain.ConfigTypeSecretRef && !in.Reference {
		name, err := s.secretNameFor(ctx, in.Scope, key)
		if err != nil {
			return nil, err
		}
		if err := s.vault.PutSecret(ctx, name, in.Value); err != nil {
			return nil, domain.ServiceUnavailable("secret vault write failed", err)
		}
		storedValue = name
	}

	entry, err := s.entries.Set(ctx, domain.ConfigEntry{
		Scope:       in.Scope,
		Key:         repository.ConfigKeyPrefix + key,
		Value:       storedValue,
		Type:        in.Type,
		Description: in.Description,
		UpdatedBy:   in.Actor,
	})
	if err != nil {
		return nil, domain.Internal("persist config entry", err)
	}
	entry.Key = strings.TrimPrefix(entry.Key, repository.ConfigKeyPrefix)
	return entry, nil
}

// Delete removes a config key. Keys referenced by a connection's
// client_secret_ref or oauth_response_ref in the same scope are protected;
// unreferenced keys delete idempotently.
func (s *ConfigService) Delete(ctx context.Context, scope, key string) (bool, error) {
	referencing, err := s.referencingConnections(ctx, scope, key)
	if err != nil {
		return false, err
	}
	if len(referencing) > 0 {
		return false, domain.Conflict("config key %s is referenced by connections: %s", key, strings.Join(referencing, ", "))
	}

	deleted, err := s.entries.Delete(ctx, scope, repository.ConfigKeyPrefix+key)
	if err != nil {
		return false, domain.Internal("delete config entry", err)
	}
	return deleted, nil
}

func (s *ConfigService) referencingConnections(ctx context.Context, scope, key string) ([]string, error) {
	conns, err := s.connections.List(ctx, scope, false)
	if err != nil {
		return nil, domain.Internal("list connections", err)
	}
	var names []string
	for _, conn := range conns {
		if conn.ClientSecretRef == key || conn.OAuthResponseRef == key {
			names = append(names, conn.Name)
		}
	}
	return names, nil
}

// secretNameFor reuses the existing secret name when the key already holds a
// reference, so other records pointing at that name keep resolving.
func (s *ConfigService) secretNameFor(ctx context.Context, scope, key string) (string, error) {
	existing, err := s.entries.Get(ctx, scope, repository.ConfigKeyPrefix+key)
	if err != nil {
		return "", domain.Internal("load config entry", err)
	}
	if existing != nil && existing.IsSecretRef() && strings.TrimSpace(existing.Value) != "" {
		return existing.Value, nil
	}

	name := fmt.Sprintf("%s/%s/%s-%s",
		s.cfg.SecretNamePrefix,
		sanitizeNamePart(strings.ToLower(domain.NormalizeScope(scope))),
		sanitizeNamePart(key),
		uuid.NewString()[:8])
	if err := vault.ValidateSecretName(name); err != nil {
		return "", domain.Validation("generated secret name rejected: %v", err)
	}
	return name, nil
}

func (s *ConfigService) fetchSecret(ctx context.Context, name string) (string, error) {
	value, err := s.vault.GetSecret(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return "", domain.NotFound("secret %s not found in vault", name)
		}
		return "", domain.ServiceUnavailable("secret vault read failed", err)
	}
	return value, nil
}

func sanitizeNamePart(part string) string {
	var b strings.Builder
	for _, r := range part {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
