package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
	"github.com/jackmusick/bifrost-api-sub005/internal/repository"
)

// CredentialService is the narrow consumer-facing read path that resolves a
// completed connection's tokens out of the vault.
type CredentialService struct {
	connections repository.ConnectionStore
	configs     *ConfigService
	logger      *zap.Logger
}

func NewCredentialService(connections repository.ConnectionStore, configs *ConfigService, logger *zap.Logger) *CredentialService {
	return &CredentialService{connections: connections, configs: configs, logger: logger}
}

// Credentials are the resolved token fields handed to consumers.
type Credentials struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// CredentialsResponse reports credentials when the connection is completed,
// otherwise the current status with nil credentials. "Not yet authorized" is
// an expected state for a polling caller, never an error.
type CredentialsResponse struct {
	ConnectionName string                  `json:"connection_name"`
	Status         domain.ConnectionStatus `json:"status"`
	Scopes         []string                `json:"scopes,omitempty"`
	Credentials    *Credentials            `json:"credentials"`
}

// GetCredentials resolves the connection (scope -> GLOBAL fallback) and its
// vaulted token response.
func (s *CredentialService) GetCredentials(ctx context.Context, scope, name string) (*CredentialsResponse, error) {
	conn, err := s.connections.Get(ctx, scope, name)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.NotFound("connection %s not found in scope %s", name, scope)
	}

	resp := &CredentialsResponse{
		ConnectionName: conn.Name,
		Status:         conn.Status,
		Scopes:         conn.ScopeList(),
	}
	if conn.Status != domain.StatusCompleted || conn.OAuthResponseRef == "" {
		return resp, nil
	}

	raw, err := s.configs.ResolveSecretRef(ctx, conn.Scope, conn.OAuthResponseRef)
	if err != nil {
		return nil, err
	}
	var token domain.TokenResponse
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, domain.Internal("decode stored token response", err)
	}

	resp.Credentials = &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.ExpiryTime(),
	}
	if resp.Credentials.ExpiresAt == nil {
		resp.Credentials.ExpiresAt = conn.ExpiresAt
	}
	return resp, nil
}
