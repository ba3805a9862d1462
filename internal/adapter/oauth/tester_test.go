package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

func TestHTTPConnectionTester_Probe(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tester := NewHTTPConnectionTester(srv.Client())
	err := tester.Probe(context.Background(), &domain.OAuthConnection{TestURL: srv.URL}, "token-1")
	require.NoError(t, err)
	require.Equal(t, "Bearer token-1", gotAuth)
}

func TestHTTPConnectionTester_ProbeFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tester := NewHTTPConnectionTester(srv.Client())
	err := tester.Probe(context.Background(), &domain.OAuthConnection{TestURL: srv.URL}, "bad-token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestHTTPConnectionTester_NoTestURLPassesTrivially(t *testing.T) {
	tester := NewHTTPConnectionTester(nil)
	err := tester.Probe(context.Background(), &domain.OAuthConnection{}, "token")
	require.NoError(t, err)
}
