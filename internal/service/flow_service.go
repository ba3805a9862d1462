package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	oauthadapter "github.com/jackmusick/bifrost-api-sub005/internal/adapter/oauth"
	"github.com/jackmusick/bifrost-api-sub005/internal/config"
	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
	"github.com/jackmusick/bifrost-api-sub005/internal/repository"
)

// FlowService orchestrates the authorize/callback/cancel handshake and owns
// the connection status state machine.
type FlowService struct {
	connections repository.ConnectionStore
	states      repository.AuthStateStore
	configs     *ConfigService
	provider    oauthadapter.ProviderClient
	tester      oauthadapter.ConnectionTester
	cfg         config.Config
	logger      *zap.Logger
}

func NewFlowService(
	connections repository.ConnectionStore,
	states repository.AuthStateStore,
	configs *ConfigService,
	provider oauthadapter.ProviderClient,
	tester oauthadapter.ConnectionTester,
	cfg config.Config,
	logger *zap.Logger,
) *FlowService {
	return &FlowService{
		connections: connections,
		states:      states,
		configs:     configs,
		provider:    provider,
		tester:      tester,
		cfg:         cfg,
		logger:      logger,
	}
}

// AuthorizeResult is returned to the admin starting the handshake.
type AuthorizeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// CallbackResult is the structured outcome the public callback endpoint
// renders. Domain failures are reported inside it with Success=false; the
// handler still answers HTTP 200.
type CallbackResult struct {
	Success        bool                    `json:"success"`
	Status         domain.ConnectionStatus `json:"status"`
	ConnectionName string                  `json:"connection_name"`
	WarningMessage string                  `json:"warning_message,omitempty"`
	ErrorMessage   string                  `json:"error_message,omitempty"`
}

// Authorize starts the handshake: generates the CSRF state (and PKCE verifier
// when no client secret is configured), persists the state with TTL, builds
// the provider authorization URL, and moves the connection to
// waiting_callback.
func (s *FlowService) Authorize(ctx context.Context, scope, name, baseURL string) (*AuthorizeResult, error) {
	conn, err := s.connections.Get(ctx, scope, name)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.NotFound("connection %s not found in scope %s", name, scope)
	}
	if conn.OAuthFlowType == domain.FlowClientCredentials {
		return nil, domain.BadRequest("connection %s uses client_credentials; no authorization handshake is needed", name)
	}

	state, err := secureRandomString(32)
	if err != nil {
		return nil, domain.Internal("generate state", err)
	}
	codeVerifier := ""
	if conn.UsesPKCE() {
		codeVerifier, err = secureRandomString(64)
		if err != nil {
			return nil, domain.Internal("generate pkce verifier", err)
		}
	}

	redirectURI, err := externalRedirectURI(baseURL, conn.RedirectURI, s.cfg.InternalAPIPrefix)
	if err != nil {
		return nil, domain.Validation("connection %s has an unusable redirect_uri: %v", name, err)
	}

	authURL, err := buildAuthorizationURL(conn, redirectURI, state, codeVerifier)
	if err != nil {
		return nil, domain.Validation("connection %s has an unusable authorization_url: %v", name, err)
	}

	if err := s.states.SaveState(ctx, domain.AuthState{
		State:        state,
		Scope:        conn.Scope,
		Connection:   conn.Name,
		CodeVerifier: codeVerifier,
		RedirectURI:  redirectURI,
		CreatedAt:    time.Now().UTC(),
	}, s.cfg.AuthStateTTL); err != nil {
		return nil, domain.ServiceUnavailable("persist authorization state", err)
	}

	message := fmt.Sprintf("Waiting for authorization callback (state %s)", state)
	if err := s.connections.UpdateStatus(ctx, conn.Scope, conn.Name, domain.StatusWaitingCallback, message, nil); err != nil {
		return nil, err
	}

	s.logger.Info("authorization started",
		zap.String("scope", conn.Scope),
		zap.String("connection", conn.Name),
		zap.Bool("pkce", codeVerifier != ""))

	return &AuthorizeResult{AuthorizationURL: authURL, State: state}, nil
}

// Callback completes the handshake: verifies and consumes the CSRF state,
// exchanges the code, probes connectivity, and vaults the token response.
// Exchange and probe failures become a Success=false result rather than an
// error; only infrastructure failures return an error.
func (s *FlowService) Callback(ctx context.Context, name, code, state string) (*CallbackResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domain.BadRequest("authorization code is required")
	}
	if strings.TrimSpace(state) == "" {
		return nil, domain.BadRequest("state is required")
	}

	// A callback with an unknown or mismatched state must not mutate the
	// connection: this is the CSRF rejection path.
	stored, err := s.states.GetState(ctx, state)
	if err != nil {
		return nil, domain.ServiceUnavailable("load authorization state", err)
	}
	if stored == nil || stored.Connection != name {
		return nil, domain.BadRequest("invalid or expired authorization state")
	}
	defer func() {
		if err := s.states.DeleteState(ctx, state); err != nil {
			s.logger.Warn("failed to delete authorization state", zap.Error(err))
		}
	}()

	conn, err := s.connections.Get(ctx, stored.Scope, name)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.NotFound("connection %s not found", name)
	}

	if err := s.connections.UpdateStatus(ctx, conn.Scope, conn.Name, domain.StatusTesting, "Exchanging authorization code", nil); err != nil {
		return nil, err
	}

	clientSecret := ""
	if conn.ClientSecretRef != "" {
		clientSecret, err = s.configs.ResolveSecretRef(ctx, conn.Scope, conn.ClientSecretRef)
		if err != nil {
			return nil, err
		}
	}

	tokenResp, err := s.provider.ExchangeCode(ctx, oauthadapter.ExchangeRequest{
		TokenURL:     conn.TokenURL,
		ClientID:     conn.ClientID,
		ClientSecret: clientSecret,
		Code:         code,
		CodeVerifier: stored.CodeVerifier,
		RedirectURI:  stored.RedirectURI,
	})
	if err != nil {
		message := fmt.Sprintf("Token exchange failed: %v", err)
		if statusErr := s.connections.UpdateStatus(ctx, conn.Scope, conn.Name, domain.StatusFailed, message, nil); statusErr != nil {
			return nil, statusErr
		}
		s.logger.Warn("token exchange failed",
			zap.String("scope", conn.Scope),
			zap.String("connection", conn.Name),
			zap.Error(err))
		return &CallbackResult{
			Success:        false,
			Status:         domain.StatusFailed,
			ConnectionName: conn.Name,
			ErrorMessage:   err.Error(),
		}, nil
	}

	probeErr := s.tester.Probe(ctx, conn, tokenResp.AccessToken)

	responseRef := conn.OAuthResponseRef
	if responseRef == "" {
		responseRef = "oauth_response_" + conn.Name
	}
	payload, err := json.Marshal(tokenResp)
	if err != nil {
		return nil, domain.Internal("encode token response", err)
	}
	if _, err := s.configs.Set(ctx, SetConfigInput{
		Scope:       conn.Scope,
		Key:         responseRef,
		Value:       string(payload),
		Type:        domain.ConfigTypeSecretRef,
		Description: "OAuth token response for connection " + conn.Name,
		Actor:       "oauth-flow",
	}); err != nil {
		return nil, err
	}

	extra := &domain.StatusExtra{
		OAuthResponseRef: &responseRef,
		ExpiresAt:        tokenResp.ExpiryTime(),
	}

	if probeErr != nil {
		message := fmt.Sprintf("Connectivity probe failed: %v", probeErr)
		if statusErr := s.connections.UpdateStatus(ctx, conn.Scope, conn.Name, domain.StatusFailed, message, extra); statusErr != nil {
			return nil, statusErr
		}
		return &CallbackResult{
			Success:        false,
			Status:         domain.StatusFailed,
			ConnectionName: conn.Name,
			ErrorMessage:   probeErr.Error(),
		}, nil
	}

	if err := s.connections.UpdateStatus(ctx, conn.Scope, conn.Name, domain.StatusCompleted, "Authorization completed", extra); err != nil {
		return nil, err
	}

	result := &CallbackResult{
		Success:        true,
		Status:         domain.StatusCompleted,
		ConnectionName: conn.Name,
	}
	if tokenResp.RefreshToken == "" {
		result.WarningMessage = "Provider returned no refresh token; automatic refresh will be unavailable for this connection."
	}

	s.logger.Info("authorization completed",
		zap.String("scope", conn.Scope),
		zap.String("connection", conn.Name),
		zap.Bool("has_refresh_token", tokenResp.RefreshToken != ""))

	return result, nil
}

// Cancel resets the connection to not_connected. Valid from any state; it
// does not abort an in-flight provider call.
func (s *FlowService) Cancel(ctx context.Context, scope, name string) error {
	conn, err := s.connections.Get(ctx, scope, name)
	if err != nil {
		return err
	}
	if conn == nil {
		return domain.NotFound("connection %s not found in scope %s", name, scope)
	}
	return s.connections.UpdateStatus(ctx, conn.Scope, conn.Name, domain.StatusNotConnected, "Authorization cancelled", nil)
}

// externalRedirectURI rewrites the configured redirect URI onto the caller's
// base origin, stripping the internal API prefix so the provider redirects to
// the public callback page instead of the internal API path.
func externalRedirectURI(baseURL, configured, internalPrefix string) (string, error) {
	configuredURL, err := url.Parse(strings.TrimSpace(configured))
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}
	path := configuredURL.Path
	if internalPrefix != "" && strings.HasPrefix(path, internalPrefix) {
		path = strings.TrimPrefix(path, internalPrefix)
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
	}

	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("parse base url %q", baseURL)
	}
	base.Path = path
	base.RawQuery = configuredURL.RawQuery
	base.Fragment = ""
	return base.String(), nil
}

func buildAuthorizationURL(conn *domain.OAuthConnection, redirectURI, state, codeVerifier string) (string, error) {
	authURL, err := url.Parse(conn.AuthorizationURL)
	if err != nil {
		return "", err
	}
	params := authURL.Query()
	params.Set("client_id", conn.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	if scopes := conn.ScopeList(); len(scopes) > 0 {
		params.Set("scope", strings.Join(scopes, " "))
	}
	params.Set("state", state)
	if codeVerifier != "" {
		params.Set("code_challenge", pkceChallenge(codeVerifier))
		params.Set("code_challenge_method", "S256")
	}
	authURL.RawQuery = params.Encode()
	return authURL.String(), nil
}

func secureRandomString(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
