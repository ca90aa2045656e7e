// Package app wires configuration into the running services.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/amplify-storage/internal/cache/memory"
	"github.com/prn-tf/amplify-storage/internal/cache/redis"
	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/lock"
	"github.com/prn-tf/amplify-storage/internal/metrics"
	"github.com/prn-tf/amplify-storage/internal/repository"
	"github.com/prn-tf/amplify-storage/internal/repository/store"
	"github.com/prn-tf/amplify-storage/internal/service"
	"github.com/prn-tf/amplify-storage/internal/storage"
	"github.com/prn-tf/amplify-storage/internal/storage/s3"
)

const cachePrefix = "amplify:"

// App holds the wired services of one process.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   *store.Store
	Metrics *metrics.Metrics

	Primary storage.Provider
	Backup  storage.Provider

	Storage  *service.StorageService
	Health   *service.HealthService
	Cleanup  *service.CleanupService
	Failover *service.FailoverResolver

	closers []func() error
}

// Options adjusts how New wires the process.
type Options struct {
	// Migrate applies pending migrations after connecting.
	Migrate bool
}

// New connects the database, cache, lock backend and providers.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	if opts.Migrate {
		if err := st.Database.Migrate(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(cfg.Metrics.Namespace, nil)
	}

	cache, locker, err := a.coordination(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Primary, err = s3.New(ctx, storage.RolePrimary, cfg.Storage.Primary, logger, a.Metrics)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create primary provider: %w", err)
	}
	if cfg.Storage.HasBackup() {
		a.Backup, err = s3.New(ctx, storage.RoleBackup, cfg.Storage.Backup, logger, a.Metrics)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to create backup provider: %w", err)
		}
	}

	a.Failover = service.NewFailoverResolver(nil, cache, cfg.Failover, a.Metrics, logger)

	a.Storage, err = service.NewStorageService(service.StorageServiceConfig{
		Users:    st.Repos.Users,
		Records:  st.Repos.Records,
		Primary:  a.Primary,
		Backup:   a.Backup,
		Resolver: a.Failover,
		Locker:   locker,
		Metrics:  a.Metrics,
		Logger:   logger,
		Quota:    cfg.Quota,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Health = service.NewHealthService(st.Repos.Records, a.Metrics, logger, a.Providers()...)
	a.Cleanup = service.NewCleanupService(st.Repos.Records, locker, a.Metrics, logger, cfg.Cleanup, a.Providers()...)

	logger.Info().
		Str("driver", st.Driver).
		Str("primary", a.Primary.Name()).
		Bool("backup", a.Backup != nil).
		Bool("strict_quota", cfg.Quota.Strict).
		Bool("metrics", a.Metrics != nil).
		Msg("services initialized")

	return a, nil
}

// Providers returns the configured providers, primary first.
func (a *App) Providers() []storage.Provider {
	if a.Backup == nil {
		return []storage.Provider{a.Primary}
	}
	return []storage.Provider{a.Primary, a.Backup}
}

// coordination selects Redis or in-process cache and locks.
func (a *App) coordination(ctx context.Context) (repository.Cache, lock.Locker, error) {
	if !a.Config.Redis.Enabled {
		c := memory.NewCache()
		l := lock.NewMemoryLocker()
		a.closers = append(a.closers, func() error {
			c.Stop()
			l.Stop()
			return nil
		})
		return c, l, nil
	}

	client, err := redis.NewClient(ctx, a.Config.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	return redis.NewCache(client, cachePrefix), lock.NewRedisLocker(client), nil
}

// Close releases everything New acquired, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
