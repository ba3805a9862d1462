package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

func TestConfigService_SetSecretRefVaultsLiteral(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	entry, err := h.configs.Set(ctx, SetConfigInput{
		Scope: "org-1",
		Key:   "api_key",
		Value: "super-secret",
		Type:  domain.ConfigTypeSecretRef,
		Actor: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, "api_key", entry.Key)
	require.NotEqual(t, "super-secret", entry.Value)
	require.True(t, strings.HasPrefix(entry.Value, "bifrost/org-1/api_key-"))

	resolved, err := h.configs.ResolveSecretRef(ctx, "org-1", "api_key")
	require.NoError(t, err)
	require.Equal(t, "super-secret", resolved)
}

func TestConfigService_SetSecretRefReusesVaultName(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	first, err := h.configs.Set(ctx, SetConfigInput{
		Scope: "org-1",
		Key:   "api_key",
		Value: "v1",
		Type:  domain.ConfigTypeSecretRef,
	})
	require.NoError(t, err)

	second, err := h.configs.Set(ctx, SetConfigInput{
		Scope: "org-1",
		Key:   "api_key",
		Value: "v2",
		Type:  domain.ConfigTypeSecretRef,
	})
	require.NoError(t, err)

	require.Equal(t, first.Value, second.Value)
	require.Equal(t, 2, h.vault.versions(first.Value))

	resolved, err := h.configs.ResolveSecretRef(ctx, "org-1", "api_key")
	require.NoError(t, err)
	require.Equal(t, "v2", resolved)
}

func TestConfigService_SetSecretRefByReference(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	require.NoError(t, h.vault.PutSecret(ctx, "preexisting/name", "vault-value"))

	entry, err := h.configs.Set(ctx, SetConfigInput{
		Scope:     domain.ScopeGlobal,
		Key:       "shared_key",
		Value:     "preexisting/name",
		Type:      domain.ConfigTypeSecretRef,
		Reference: true,
	})
	require.NoError(t, err)
	require.Equal(t, "preexisting/name", entry.Value)
	require.Equal(t, 1, h.vault.versions("preexisting/name"))

	resolved, err := h.configs.ResolveSecretRef(ctx, domain.ScopeGlobal, "shared_key")
	require.NoError(t, err)
	require.Equal(t, "vault-value", resolved)
}

func TestConfigService_SetRejectsReservedNamespace(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.configs.Set(context.Background(), SetConfigInput{
		Scope: domain.ScopeGlobal,
		Key:   "oauth:connection:github",
		Value: "{}",
	})
	require.Error(t, err)
	domainErr, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, "validation_error", domainErr.Code)
}

func TestConfigService_ResolveValueTypes(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	cases := []struct {
		key   string
		value string
		typ   domain.ConfigValueType
		want  any
	}{
		{"retries", "5", domain.ConfigTypeInt, int64(5)},
		{"enabled", "TRUE", domain.ConfigTypeBool, true},
		{"plain", "hello", domain.ConfigTypeString, "hello"},
	}
	for _, tc := range cases {
		entry, err := h.configs.Set(ctx, SetConfigInput{Scope: domain.ScopeGlobal, Key: tc.key, Value: tc.value, Type: tc.typ})
		require.NoError(t, err)
		got, err := h.configs.ResolveValue(ctx, entry)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	entry, err := h.configs.Set(ctx, SetConfigInput{Scope: domain.ScopeGlobal, Key: "mapping", Value: `{"a":1}`, Type: domain.ConfigTypeJSON})
	require.NoError(t, err)
	got, err := h.configs.ResolveValue(ctx, entry)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": float64(1)}, got)

	entry, err = h.configs.Set(ctx, SetConfigInput{Scope: domain.ScopeGlobal, Key: "bad_int", Value: "abc", Type: domain.ConfigTypeInt})
	require.NoError(t, err)
	_, err = h.configs.ResolveValue(ctx, entry)
	require.Error(t, err)
}

func TestConfigService_GetFallsBackToGlobal(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	_, err := h.configs.Set(ctx, SetConfigInput{Scope: domain.ScopeGlobal, Key: "timeout", Value: "30", Type: domain.ConfigTypeInt})
	require.NoError(t, err)

	entry, err := h.configs.Get(ctx, "org-1", "timeout", true)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, domain.ScopeGlobal, entry.Scope)
	require.Equal(t, "30", entry.Value)

	exact, err := h.configs.Get(ctx, "org-1", "timeout", false)
	require.NoError(t, err)
	require.Nil(t, exact)
}

func TestConfigService_ScopedEntryShadowsGlobal(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	_, err := h.configs.Set(ctx, SetConfigInput{Scope: domain.ScopeGlobal, Key: "timeout", Value: "30"})
	require.NoError(t, err)
	_, err = h.configs.Set(ctx, SetConfigInput{Scope: "org-1", Key: "timeout", Value: "10"})
	require.NoError(t, err)

	entry, err := h.configs.Get(ctx, "org-1", "timeout", true)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, "org-1", entry.Scope)
	require.Equal(t, "10", entry.Value)
}

func TestConfigService_DeleteReferencedKeyConflicts(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	_, err := h.configs.Set(ctx, SetConfigInput{
		Scope: "org-1",
		Key:   "github_secret",
		Value: "shhh",
		Type:  domain.ConfigTypeSecretRef,
	})
	require.NoError(t, err)

	h.seedConnection(t, domain.OAuthConnection{
		Scope:            "org-1",
		Name:             "github",
		ClientID:         "client",
		ClientSecretRef:  "github_secret",
		AuthorizationURL: "https://github.test/authorize",
		TokenURL:         "https://github.test/token",
		RedirectURI:      "https://app.test/oauth/callback/github",
	})

	_, err = h.configs.Delete(ctx, "org-1", "github_secret")
	require.Error(t, err)
	domainErr, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, "conflict", domainErr.Code)
	require.Contains(t, domainErr.Message, "github")

	// Still resolvable after the rejected delete.
	resolved, err := h.configs.ResolveSecretRef(ctx, "org-1", "github_secret")
	require.NoError(t, err)
	require.Equal(t, "shhh", resolved)
}

func TestConfigService_DeleteIsIdempotent(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	_, err := h.configs.Set(ctx, SetConfigInput{Scope: domain.ScopeGlobal, Key: "temp", Value: "x"})
	require.NoError(t, err)

	deleted, err := h.configs.Delete(ctx, domain.ScopeGlobal, "temp")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = h.configs.Delete(ctx, domain.ScopeGlobal, "temp")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestConfigService_ListStripsStorePrefix(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	_, err := h.configs.Set(ctx, SetConfigInput{Scope: "org-1", Key: "alpha", Value: "1"})
	require.NoError(t, err)
	_, err = h.configs.Set(ctx, SetConfigInput{Scope: "org-1", Key: "beta", Value: "2"})
	require.NoError(t, err)

	entries, err := h.configs.List(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		require.NotContains(t, entry.Key, ":")
	}
}
