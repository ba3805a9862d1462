package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

// ExchangeRequest carries everything needed for an authorization-code
// exchange. ClientSecret is already resolved from the vault; empty means
// PKCE, in which case CodeVerifier must be set.
type ExchangeRequest struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Code         string
	CodeVerifier string
	RedirectURI  string
}

// RefreshRequest carries the parameters for a refresh-token grant.
type RefreshRequest struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// ProviderClient encapsulates outbound HTTP calls to external authorization
// servers. Provider error text is passed through verbatim for diagnostics.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, req ExchangeRequest) (*domain.TokenResponse, error)
	RefreshToken(ctx context.Context, req RefreshRequest) (*domain.TokenResponse, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient. A nil client
// gets a 10-second timeout; provider calls must never hang unbounded.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

// ExchangeCode performs the OAuth authorization-code token exchange.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, req ExchangeRequest) (*domain.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", req.Code)
	data.Set("redirect_uri", req.RedirectURI)
	data.Set("client_id", req.ClientID)
	if req.ClientSecret != "" {
		data.Set("client_secret", req.ClientSecret)
	}
	if strings.TrimSpace(req.CodeVerifier) != "" {
		data.Set("code_verifier", req.CodeVerifier)
	}
	return c.postTokenEndpoint(ctx, req.TokenURL, data)
}

// RefreshToken performs the refresh-token grant.
func (c *HTTPProviderClient) RefreshToken(ctx context.Context, req RefreshRequest) (*domain.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", req.RefreshToken)
	data.Set("client_id", req.ClientID)
	if req.ClientSecret != "" {
		data.Set("client_secret", req.ClientSecret)
	}
	return c.postTokenEndpoint(ctx, req.TokenURL, data)
}

func (c *HTTPProviderClient) postTokenEndpoint(ctx context.Context, tokenURL string, data url.Values) (*domain.TokenResponse, error) {
	if strings.TrimSpace(tokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, providerErrorText(body))
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	token := &domain.TokenResponse{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		TokenType:    stringValue(raw["token_type"]),
		Scope:        stringValue(raw["scope"]),
		ObtainedAt:   time.Now().UTC(),
		Raw:          raw,
	}
	if exp := raw["expires_in"]; exp != nil {
		token.ExpiresIn = int64Value(exp)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, fmt.Errorf("token endpoint returned no access_token")
	}
	return token, nil
}

// providerErrorText extracts a readable error from a provider body, falling
// back to the raw text.
func providerErrorText(body []byte) string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err == nil {
		code := stringValue(raw["error"])
		desc := stringValue(raw["error_description"])
		switch {
		case code != "" && desc != "":
			return code + ": " + desc
		case code != "":
			return code
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
