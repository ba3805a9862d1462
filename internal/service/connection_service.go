package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
	"github.com/jackmusick/bifrost-api-sub005/internal/repository"
)

// ConnectionService is the admin CRUD surface over OAuth connection records.
type ConnectionService struct {
	connections repository.ConnectionStore
	logger      *zap.Logger
}

func NewConnectionService(connections repository.ConnectionStore, logger *zap.Logger) *ConnectionService {
	return &ConnectionService{connections: connections, logger: logger}
}

// CreateConnectionInput is the create request body.
type CreateConnectionInput struct {
	Name             string               `json:"name" binding:"required"`
	ClientID         string               `json:"client_id" binding:"required"`
	ClientSecretRef  string               `json:"client_secret_ref"`
	AuthorizationURL string               `json:"authorization_url"`
	TokenURL         string               `json:"token_url" binding:"required"`
	RedirectURI      string               `json:"redirect_uri"`
	Scopes           string               `json:"scopes"`
	TestURL          string               `json:"test_url"`
	OAuthFlowType    domain.OAuthFlowType `json:"oauth_flow_type"`
}

func (s *ConnectionService) Create(ctx context.Context, scope string, in CreateConnectionInput, createdBy string) (*domain.OAuthConnection, error) {
	if err := validateCreateInput(&in); err != nil {
		return nil, err
	}

	conn := domain.OAuthConnection{
		Scope:            domain.NormalizeScope(scope),
		Name:             strings.TrimSpace(in.Name),
		ClientID:         in.ClientID,
		ClientSecretRef:  strings.TrimSpace(in.ClientSecretRef),
		AuthorizationURL: in.AuthorizationURL,
		TokenURL:         in.TokenURL,
		RedirectURI:      in.RedirectURI,
		Scopes:           in.Scopes,
		TestURL:          in.TestURL,
		OAuthFlowType:    in.OAuthFlowType,
		Status:           domain.StatusNotConnected,
		CreatedBy:        createdBy,
		UpdatedBy:        createdBy,
	}

	created, err := s.connections.Create(ctx, conn)
	if err != nil {
		return nil, err
	}
	s.logger.Info("oauth connection created",
		zap.String("scope", created.Scope),
		zap.String("connection", created.Name),
		zap.String("flow_type", string(created.OAuthFlowType)))
	return created, nil
}

// Get returns the connection, falling back to GLOBAL for org scopes.
func (s *ConnectionService) Get(ctx context.Context, scope, name string) (*domain.OAuthConnection, error) {
	conn, err := s.connections.Get(ctx, scope, name)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.NotFound("connection %s not found in scope %s", name, scope)
	}
	return conn, nil
}

func (s *ConnectionService) List(ctx context.Context, scope string, includeGlobal bool) ([]domain.OAuthConnection, error) {
	return s.connections.List(ctx, scope, includeGlobal)
}

func (s *ConnectionService) Update(ctx context.Context, scope, name string, patch domain.ConnectionPatch, updatedBy string) (*domain.OAuthConnection, error) {
	if patch.OAuthFlowType != nil {
		if err := validateFlowType(*patch.OAuthFlowType); err != nil {
			return nil, err
		}
	}
	conn, err := s.connections.Update(ctx, scope, name, patch, updatedBy)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.NotFound("connection %s not found in scope %s", name, scope)
	}
	return conn, nil
}

// Delete removes the connection, reporting false (not an error) when absent.
func (s *ConnectionService) Delete(ctx context.Context, scope, name string) (bool, error) {
	deleted, err := s.connections.Delete(ctx, scope, name)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("oauth connection deleted",
			zap.String("scope", domain.NormalizeScope(scope)),
			zap.String("connection", name))
	}
	return deleted, nil
}

func validateCreateInput(in *CreateConnectionInput) error {
	if in.OAuthFlowType == "" {
		in.OAuthFlowType = domain.FlowAuthorizationCode
	}
	if err := validateFlowType(in.OAuthFlowType); err != nil {
		return err
	}
	if in.OAuthFlowType == domain.FlowAuthorizationCode {
		if strings.TrimSpace(in.AuthorizationURL) == "" {
			return domain.Validation("authorization_url is required for authorization_code connections")
		}
		if strings.TrimSpace(in.RedirectURI) == "" {
			return domain.Validation("redirect_uri is required for authorization_code connections")
		}
	}
	return nil
}

func validateFlowType(flow domain.OAuthFlowType) error {
	switch flow {
	case domain.FlowAuthorizationCode, domain.FlowClientCredentials:
		return nil
	default:
		return domain.Validation("unsupported oauth_flow_type %q", flow)
	}
}
