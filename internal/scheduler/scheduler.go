package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jackmusick/bifrost-api-sub005/internal/config"
	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
	"github.com/jackmusick/bifrost-api-sub005/internal/service"
)

// RefreshScheduler runs the batch refresh job on a cron schedule. The job
// itself never raises past its own boundary, so a failed run only logs.
type RefreshScheduler struct {
	cron    *cron.Cron
	refresh *service.RefreshService
	cfg     config.Config
	logger  *zap.Logger
}

func NewRefreshScheduler(refresh *service.RefreshService, cfg config.Config, logger *zap.Logger) *RefreshScheduler {
	return &RefreshScheduler{
		cron:    cron.New(),
		refresh: refresh,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start registers the cron entry and begins scheduling.
func (s *RefreshScheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.RefreshCron, s.runOnce)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("refresh scheduler started", zap.String("schedule", s.cfg.RefreshCron))
	return nil
}

// Stop halts scheduling and waits for a running job to finish, bounded by ctx.
func (s *RefreshScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RefreshScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if _, err := s.refresh.RunBatchJob(ctx, domain.TriggerAutomatic, "", 0); err != nil {
		s.logger.Error("scheduled refresh job failed", zap.Error(err))
	}
}
