package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	oauthadapter "github.com/jackmusick/bifrost-api-sub005/internal/adapter/oauth"
	"github.com/jackmusick/bifrost-api-sub005/internal/config"
	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
	"github.com/jackmusick/bifrost-api-sub005/internal/repository"
)

// maxJobErrors bounds the per-connection error list carried on a job summary.
const maxJobErrors = 25

// RefreshService refreshes tokens for completed connections: one at a time on
// operator request, or as a sequential batch over every eligible connection.
type RefreshService struct {
	connections repository.ConnectionStore
	configs     *ConfigService
	provider    oauthadapter.ProviderClient
	jobs        repository.JobStatusStore
	node        *snowflake.Node
	cfg         config.Config
	logger      *zap.Logger
}

func NewRefreshService(
	connections repository.ConnectionStore,
	configs *ConfigService,
	provider oauthadapter.ProviderClient,
	jobs repository.JobStatusStore,
	node *snowflake.Node,
	cfg config.Config,
	logger *zap.Logger,
) *RefreshService {
	return &RefreshService{
		connections: connections,
		configs:     configs,
		provider:    provider,
		jobs:        jobs,
		node:        node,
		cfg:         cfg,
		logger:      logger,
	}
}

// RefreshOne refreshes a single completed connection. The stored refresh
// token is required before any provider call; when the provider omits a new
// refresh token in its response the previous one is retained, since many
// providers reuse long-lived refresh tokens.
func (s *RefreshService) RefreshOne(ctx context.Context, scope, name, actor string) (*domain.OAuthConnection, error) {
	conn, err := s.connections.Get(ctx, scope, name)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.NotFound("connection %s not found in scope %s", name, scope)
	}
	if conn.Status != domain.StatusCompleted {
		return nil, domain.BadRequest("connection %s has status %s; nothing to refresh", name, conn.Status)
	}
	if conn.OAuthResponseRef == "" {
		return nil, domain.BadRequest("connection %s has no stored token response", name)
	}

	stored, err := s.loadTokenResponse(ctx, conn)
	if err != nil {
		return nil, err
	}
	if stored.RefreshToken == "" {
		return nil, domain.BadRequest("connection %s has no refresh token; re-authorize to obtain one", name)
	}

	clientSecret := ""
	if conn.ClientSecretRef != "" {
		clientSecret, err = s.configs.ResolveSecretRef(ctx, conn.Scope, conn.ClientSecretRef)
		if err != nil {
			return nil, err
		}
	}

	refreshed, err := s.provider.RefreshToken(ctx, oauthadapter.RefreshRequest{
		TokenURL:     conn.TokenURL,
		ClientID:     conn.ClientID,
		ClientSecret: clientSecret,
		RefreshToken: stored.RefreshToken,
	})
	if err != nil {
		message := fmt.Sprintf("Token refresh failed: %v", err)
		if statusErr := s.connections.UpdateStatus(ctx, conn.Scope, conn.Name, domain.StatusFailed, message, nil); statusErr != nil {
			return nil, statusErr
		}
		return nil, domain.TokenRefreshFailed(message, err)
	}

	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = stored.RefreshToken
	}

	payload, err := json.Marshal(refreshed)
	if err != nil {
		return nil, domain.Internal("encode token response", err)
	}
	// Same config key, so the vault name is reused and the write lands as a
	// new version of the existing secret.
	if _, err := s.configs.Set(ctx, SetConfigInput{
		Scope:       conn.Scope,
		Key:         conn.OAuthResponseRef,
		Value:       string(payload),
		Type:        domain.ConfigTypeSecretRef,
		Description: "OAuth token response for connection " + conn.Name,
		Actor:       actor,
	}); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	extra := &domain.StatusExtra{
		ExpiresAt:     refreshed.ExpiryTime(),
		LastRefreshAt: &now,
	}
	if err := s.connections.UpdateStatus(ctx, conn.Scope, conn.Name, domain.StatusCompleted, "Token refreshed", extra); err != nil {
		return nil, err
	}

	s.logger.Info("connection refreshed",
		zap.String("scope", conn.Scope),
		zap.String("connection", conn.Name),
		zap.String("actor", actor))

	return s.connections.Get(ctx, conn.Scope, conn.Name)
}

// RunBatchJob refreshes every completed connection whose expiry falls within
// the threshold. Connections are processed sequentially and individual
// failures never abort the run; the summary record is overwritten at the end.
func (s *RefreshService) RunBatchJob(ctx context.Context, trigger domain.RefreshTrigger, triggerUser string, threshold time.Duration) (*domain.RefreshJobStatus, error) {
	if threshold <= 0 {
		threshold = s.cfg.RefreshThreshold
	}
	start := time.Now().UTC()

	conns, err := s.connections.ListAll(ctx)
	if err != nil {
		return nil, domain.Internal("list connections", err)
	}

	cutoff := start.Add(threshold)
	var eligible []domain.OAuthConnection
	for _, conn := range conns {
		if conn.Status != domain.StatusCompleted {
			continue
		}
		if conn.ExpiresAt == nil || conn.ExpiresAt.After(cutoff) {
			continue
		}
		eligible = append(eligible, conn)
	}

	status := domain.RefreshJobStatus{
		JobID:            s.node.Generate().String(),
		TriggerType:      trigger,
		TriggerUser:      triggerUser,
		StartTime:        start,
		TotalConnections: len(conns),
		NeedsRefresh:     len(eligible),
	}

	for _, conn := range eligible {
		if _, err := s.RefreshOne(ctx, conn.Scope, conn.Name, string(trigger)); err != nil {
			status.RefreshFailed++
			if len(status.Errors) < maxJobErrors {
				status.Errors = append(status.Errors, fmt.Sprintf("%s/%s: %v", conn.Scope, conn.Name, err))
			}
			continue
		}
		status.RefreshedSuccessfully++
	}

	status.EndTime = time.Now().UTC()
	status.DurationSeconds = status.EndTime.Sub(status.StartTime).Seconds()
	if status.RefreshFailed > 0 {
		status.Status = "completed_with_errors"
	} else {
		status.Status = "completed"
	}

	if err := s.jobs.Write(ctx, status); err != nil {
		return nil, domain.Internal("persist job status", err)
	}

	s.logger.Info("refresh job completed",
		zap.String("job_id", status.JobID),
		zap.String("trigger", string(trigger)),
		zap.Int("total", status.TotalConnections),
		zap.Int("needs_refresh", status.NeedsRefresh),
		zap.Int("refreshed", status.RefreshedSuccessfully),
		zap.Int("failed", status.RefreshFailed),
		zap.Float64("duration_seconds", status.DurationSeconds))

	return &status, nil
}

// LastJobStatus returns the most recent batch summary, nil when no run yet.
func (s *RefreshService) LastJobStatus(ctx context.Context) (*domain.RefreshJobStatus, error) {
	return s.jobs.Read(ctx)
}

func (s *RefreshService) loadTokenResponse(ctx context.Context, conn *domain.OAuthConnection) (*domain.TokenResponse, error) {
	raw, err := s.configs.ResolveSecretRef(ctx, conn.Scope, conn.OAuthResponseRef)
	if err != nil {
		return nil, err
	}
	var token domain.TokenResponse
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, domain.Internal("decode stored token response", err)
	}
	return &token, nil
}
