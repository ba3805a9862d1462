package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

func completedConnection(scope, name, responseRef string, expiresAt time.Time) domain.OAuthConnection {
	conn := githubConnection(scope)
	conn.Name = name
	conn.Status = domain.StatusCompleted
	conn.OAuthResponseRef = responseRef
	conn.ExpiresAt = &expiresAt
	return conn
}

func TestRefreshService_RefreshOne(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	expiry := time.Now().UTC().Add(10 * time.Minute)
	h.seedConnection(t, completedConnection("org-1", "github", "oauth_response_github", expiry))
	h.seedTokenSecret(t, "org-1", "oauth_response_github", domain.TokenResponse{
		AccessToken:  "old-access",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		ObtainedAt:   time.Now().UTC().Add(-time.Hour),
	})

	h.provider.refreshed = &domain.TokenResponse{
		AccessToken: "new-access",
		TokenType:   "Bearer",
		ExpiresIn:   7200,
		ObtainedAt:  time.Now().UTC(),
	}

	conn, err := h.refresh.RefreshOne(ctx, "org-1", "github", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, conn.Status)
	require.NotNil(t, conn.LastRefreshAt)
	require.NotNil(t, conn.ExpiresAt)
	require.True(t, conn.ExpiresAt.After(expiry))

	require.Len(t, h.provider.refreshes, 1)
	require.Equal(t, "refresh-1", h.provider.refreshes[0].RefreshToken)

	// Provider omitted a refresh token, so the previous one is retained.
	raw, err := h.configs.ResolveSecretRef(ctx, "org-1", "oauth_response_github")
	require.NoError(t, err)
	require.Contains(t, raw, "new-access")
	require.Contains(t, raw, "refresh-1")

	// Same config key means the vault name is reused: two versions, one name.
	entry, err := h.configs.Get(ctx, "org-1", "oauth_response_github", false)
	require.NoError(t, err)
	require.Equal(t, 2, h.vault.versions(entry.Value))
}

func TestRefreshService_RefreshOneRequiresCompletedStatus(t *testing.T) {
	h := newServiceHarness(t)
	h.seedConnection(t, githubConnection("org-1"))

	_, err := h.refresh.RefreshOne(context.Background(), "org-1", "github", "alice")
	require.Error(t, err)
	domainErr, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, "bad_request", domainErr.Code)
	require.Zero(t, h.provider.refreshCount())
}

func TestRefreshService_RefreshOneRequiresStoredRefreshToken(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	h.seedConnection(t, completedConnection("org-1", "github", "oauth_response_github", time.Now().UTC()))
	h.seedTokenSecret(t, "org-1", "oauth_response_github", domain.TokenResponse{
		AccessToken: "access-only",
		TokenType:   "Bearer",
	})

	_, err := h.refresh.RefreshOne(ctx, "org-1", "github", "alice")
	require.Error(t, err)
	domainErr, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, "bad_request", domainErr.Code)
	// The provider is never called without a refresh token.
	require.Zero(t, h.provider.refreshCount())
}

func TestRefreshService_RefreshOneProviderFailure(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	h.seedConnection(t, completedConnection("org-1", "github", "oauth_response_github", time.Now().UTC()))
	h.seedTokenSecret(t, "org-1", "oauth_response_github", domain.TokenResponse{
		AccessToken:  "old-access",
		RefreshToken: "refresh-1",
	})
	h.provider.refreshErrFor["refresh-1"] = errors.New("invalid_grant: token revoked")

	_, err := h.refresh.RefreshOne(ctx, "org-1", "github", "alice")
	require.Error(t, err)
	domainErr, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, "token_refresh_failed", domainErr.Code)

	require.Equal(t, domain.StatusFailed, h.connectionStatus(t, "org-1", "github"))
}

func TestRefreshService_RunBatchJob(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Expiring within the threshold: refreshed.
	h.seedConnection(t, completedConnection("org-1", "soon", "oauth_response_soon", now.Add(10*time.Minute)))
	h.seedTokenSecret(t, "org-1", "oauth_response_soon", domain.TokenResponse{
		AccessToken: "a", RefreshToken: "refresh-soon",
	})

	// Expiring within the threshold but the provider rejects it.
	h.seedConnection(t, completedConnection("org-1", "broken", "oauth_response_broken", now.Add(5*time.Minute)))
	h.seedTokenSecret(t, "org-1", "oauth_response_broken", domain.TokenResponse{
		AccessToken: "b", RefreshToken: "refresh-broken",
	})
	h.provider.refreshErrFor["refresh-broken"] = errors.New("invalid_grant")

	// Far from expiry: skipped.
	h.seedConnection(t, completedConnection("org-1", "fresh", "oauth_response_fresh", now.Add(48*time.Hour)))

	h.provider.refreshed = &domain.TokenResponse{
		AccessToken: "rotated",
		ExpiresIn:   3600,
		ObtainedAt:  now,
	}

	status, err := h.refresh.RunBatchJob(ctx, domain.TriggerManual, "alice", 0)
	require.NoError(t, err)
	require.NotEmpty(t, status.JobID)
	require.Equal(t, domain.TriggerManual, status.TriggerType)
	require.Equal(t, "alice", status.TriggerUser)
	require.Equal(t, 3, status.TotalConnections)
	require.Equal(t, 2, status.NeedsRefresh)
	require.Equal(t, 1, status.RefreshedSuccessfully)
	require.Equal(t, 1, status.RefreshFailed)
	require.Equal(t, "completed_with_errors", status.Status)
	require.Len(t, status.Errors, 1)
	require.Contains(t, status.Errors[0], "broken")

	// One failure never aborts the rest of the run.
	require.Equal(t, domain.StatusCompleted, h.connectionStatus(t, "org-1", "soon"))
	require.Equal(t, domain.StatusFailed, h.connectionStatus(t, "org-1", "broken"))
	require.Equal(t, domain.StatusCompleted, h.connectionStatus(t, "org-1", "fresh"))

	persisted, err := h.refresh.LastJobStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	require.Equal(t, status.JobID, persisted.JobID)
}

func TestRefreshService_RunBatchJobCleanRun(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	h.seedConnection(t, completedConnection("org-1", "soon", "oauth_response_soon", now.Add(time.Minute)))
	h.seedTokenSecret(t, "org-1", "oauth_response_soon", domain.TokenResponse{
		AccessToken: "a", RefreshToken: "refresh-soon",
	})
	h.provider.refreshed = &domain.TokenResponse{AccessToken: "rotated", ExpiresIn: 3600, ObtainedAt: now}

	status, err := h.refresh.RunBatchJob(ctx, domain.TriggerAutomatic, "", 0)
	require.NoError(t, err)
	require.Equal(t, "completed", status.Status)
	require.Empty(t, status.Errors)
	require.GreaterOrEqual(t, status.DurationSeconds, float64(0))
}

func TestRefreshService_LastJobStatusBeforeAnyRun(t *testing.T) {
	h := newServiceHarness(t)

	status, err := h.refresh.LastJobStatus(context.Background())
	require.NoError(t, err)
	require.Nil(t, status)
}
