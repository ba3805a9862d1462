package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/jackmusick/bifrost-api-sub005/internal/adapter/cache"
	oauthadapter "github.com/jackmusick/bifrost-api-sub005/internal/adapter/oauth"
	"github.com/jackmusick/bifrost-api-sub005/internal/config"
	httptransport "github.com/jackmusick/bifrost-api-sub005/internal/http"
	"github.com/jackmusick/bifrost-api-sub005/internal/http/handler"
	httpmiddleware "github.com/jackmusick/bifrost-api-sub005/internal/http/middleware"
	apimiddleware "github.com/jackmusick/bifrost-api-sub005/internal/middleware"
	"github.com/jackmusick/bifrost-api-sub005/internal/repository"
	"github.com/jackmusick/bifrost-api-sub005/internal/scheduler"
	"github.com/jackmusick/bifrost-api-sub005/internal/server"
	"github.com/jackmusick/bifrost-api-sub005/internal/service"
	"github.com/jackmusick/bifrost-api-sub005/internal/telemetry"
	"github.com/jackmusick/bifrost-api-sub005/internal/vault"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newSecretVault,
			newConfigStore,
			newConnectionStore,
			newJobStatusStore,
			newAuthStateStore,
			newProviderClient,
			newConnectionTester,
			newRateLimiter,
			service.NewConfigService,
			service.NewConnectionService,
			service.NewFlowService,
			service.NewRefreshService,
			service.NewCredentialService,
			handler.NewConnectionHandler,
			handler.NewConfigHandler,
			httpmiddleware.NewAuth,
			scheduler.NewRefreshScheduler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startScheduler, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newSecretVault(cfg config.Config) (vault.SecretVault, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return vault.NewAWSVault(ctx, cfg)
}

func newConfigStore(pool *pgxpool.Pool) repository.ConfigStore {
	return repository.NewPostgresConfigStore(pool)
}

func newConnectionStore(entries repository.ConfigStore) repository.ConnectionStore {
	return repository.NewScopedConnectionStore(entries)
}

func newJobStatusStore(entries repository.ConfigStore) repository.JobStatusStore {
	return repository.NewScopedJobStatusStore(entries)
}

func newAuthStateStore(client redis.UniversalClient) repository.AuthStateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newProviderClient(cfg config.Config) oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(&http.Client{Timeout: cfg.ProviderTimeout})
}

func newConnectionTester(cfg config.Config) oauthadapter.ConnectionTester {
	return oauthadapter.NewHTTPConnectionTester(&http.Client{Timeout: cfg.ProviderTimeout})
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startScheduler(lc fx.Lifecycle, sched *scheduler.RefreshScheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sched.Start()
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
