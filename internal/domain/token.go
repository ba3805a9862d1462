package domain

import "time"

// TokenResponse models the response from an external provider token endpoint.
// The full response is persisted in the secret vault under the connection's
// oauth_response_ref name.
type TokenResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	TokenType    string         `json:"token_type,omitempty"`
	ExpiresIn    int64          `json:"expires_in,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	ObtainedAt   time.Time      `json:"obtained_at"`
	Raw          map[string]any `json:"raw,omitempty"`
}

// ExpiryTime computes the absolute expiry from ObtainedAt and ExpiresIn.
// Returns nil when the provider did not report a lifetime.
func (t *TokenResponse) ExpiryTime() *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	at := t.ObtainedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	expiry := at.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &expiry
}

// AuthState is the short-lived CSRF record persisted between authorize and
// callback. The state value is single use: the callback consumes it.
type AuthState struct {
	State        string    `json:"state"`
	Scope        string    `json:"scope"`
	Connection   string    `json:"connection"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}
