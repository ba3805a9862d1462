package domain

import (
	"strings"
	"time"
)

// ConnectionStatus is the lifecycle state of one OAuth connection.
type ConnectionStatus string

const (
	StatusNotConnected    ConnectionStatus = "not_connected"
	StatusWaitingCallback ConnectionStatus = "waiting_callback"
	StatusTesting         ConnectionStatus = "testing"
	StatusCompleted       ConnectionStatus = "completed"
	StatusFailed          ConnectionStatus = "failed"
)

// OAuthFlowType selects the grant used to obtain tokens.
type OAuthFlowType string

const (
	FlowAuthorizationCode OAuthFlowType = "authorization_code"
	FlowClientCredentials OAuthFlowType = "client_credentials"
)

// OAuthConnection is one configured connection to an external authorization
// server, identified by (scope, name). A connection without ClientSecretRef
// uses PKCE for the code exchange.
type OAuthConnection struct {
	Scope            string           `json:"scope"`
	Name             string           `json:"name"`
	ClientID         string           `json:"client_id"`
	ClientSecretRef  string           `json:"client_secret_ref,omitempty"`
	AuthorizationURL string           `json:"authorization_url"`
	TokenURL         string           `json:"token_url"`
	RedirectURI      string           `json:"redirect_uri"`
	Scopes           string           `json:"scopes,omitempty"`
	TestURL          string           `json:"test_url,omitempty"`
	OAuthFlowType    OAuthFlowType    `json:"oauth_flow_type"`
	Status           ConnectionStatus `json:"status"`
	StatusMessage    string           `json:"status_message,omitempty"`
	OAuthResponseRef string           `json:"oauth_response_ref,omitempty"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
	LastRefreshAt    *time.Time       `json:"last_refresh_at,omitempty"`
	CreatedBy        string           `json:"created_by,omitempty"`
	UpdatedBy        string           `json:"updated_by,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ScopeList splits the comma-separated Scopes attribute.
func (c *OAuthConnection) ScopeList() []string {
	if strings.TrimSpace(c.Scopes) == "" {
		return nil
	}
	parts := strings.Split(c.Scopes, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	return scopes
}

// UsesPKCE reports whether the code exchange runs without a client secret.
func (c *OAuthConnection) UsesPKCE() bool {
	return strings.TrimSpace(c.ClientSecretRef) == ""
}

// ConnectionPatch carries optional updates for an existing connection.
// Nil fields are left unchanged.
type ConnectionPatch struct {
	ClientID         *string        `json:"client_id,omitempty"`
	ClientSecretRef  *string        `json:"client_secret_ref,omitempty"`
	AuthorizationURL *string        `json:"authorization_url,omitempty"`
	TokenURL         *string        `json:"token_url,omitempty"`
	RedirectURI      *string        `json:"redirect_uri,omitempty"`
	Scopes           *string        `json:"scopes,omitempty"`
	TestURL          *string        `json:"test_url,omitempty"`
	OAuthFlowType    *OAuthFlowType `json:"oauth_flow_type,omitempty"`
}

// StatusExtra carries token-lifecycle fields written together with a status
// change. Nil fields are left unchanged.
type StatusExtra struct {
	OAuthResponseRef *string
	ExpiresAt        *time.Time
	LastRefreshAt    *time.Time
}
