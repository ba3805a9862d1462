package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

// ConnectionTester probes whether a freshly obtained access token actually
// works against the provider.
type ConnectionTester interface {
	Probe(ctx context.Context, conn *domain.OAuthConnection, accessToken string) error
}

// HTTPConnectionTester issues a bearer-authenticated GET against the
// connection's test URL. Connections without a test URL pass trivially.
type HTTPConnectionTester struct {
	httpClient *http.Client
}

var _ ConnectionTester = (*HTTPConnectionTester)(nil)

func NewHTTPConnectionTester(client *http.Client) *HTTPConnectionTester {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPConnectionTester{httpClient: client}
}

// Probe checks connectivity with the new token.
func (t *HTTPConnectionTester) Probe(ctx context.Context, conn *domain.OAuthConnection, accessToken string) error {
	testURL := strings.TrimSpace(conn.TestURL)
	if testURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testURL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
