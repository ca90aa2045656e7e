package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/lock"
	"github.com/prn-tf/amplify-storage/internal/metrics"
	"github.com/prn-tf/amplify-storage/internal/repository"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

// CleanupService purges soft-deleted files past the retention window from
// every provider and then from the ledger.
type CleanupService struct {
	records   repository.StorageRecordRepository
	providers []storage.Provider
	locker    lock.Locker
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	config    config.CleanupConfig
	now       func() time.Time

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// DefaultCleanupConfig returns the retention defaults.
func DefaultCleanupConfig() config.CleanupConfig {
	return config.CleanupConfig{
		Enabled:   true,
		Interval:  1 * time.Hour,
		Retention: 30 * 24 * time.Hour,
		BatchSize: 500,
	}
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(
	records repository.StorageRecordRepository,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg config.CleanupConfig,
	providers ...storage.Provider,
) *CleanupService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultCleanupConfig().BatchSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultCleanupConfig().Retention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCleanupConfig().Interval
	}
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}
	return &CleanupService{
		records:   records,
		providers: providers,
		locker:    locker,
		metrics:   m,
		logger:    logger.With().Str("service", "cleanup").Logger(),
		config:    cfg,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// CleanupRunResult contains the result of a cleanup run.
type CleanupRunResult struct {
	// RecordsPurged is the number of ledger rows removed.
	RecordsPurged int64 `json:"records_purged"`

	// BytesFreed is the total size of the purged files.
	BytesFreed int64 `json:"bytes_freed"`

	// Skipped is true when another process held the cleanup lock.
	Skipped bool `json:"skipped"`

	// Errors is the number of errors encountered.
	Errors int `json:"errors"`

	// Duration is how long the run took.
	Duration time.Duration `json:"duration"`

	// Remaining reports whether purgeable records are left for the next run.
	Remaining bool `json:"remaining"`

	DryRun bool `json:"dry_run"`
}

// Start begins the cleanup scheduler.
func (c *CleanupService) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info().
		Dur("interval", c.config.Interval).
		Dur("retention", c.config.Retention).
		Int("batch_size", c.config.BatchSize).
		Bool("dry_run", c.config.DryRun).
		Msg("starting retention cleanup")

	go c.runLoop()
}

// Stop stops the scheduler and waits for an in-flight run.
func (c *CleanupService) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopChan)
	<-c.doneChan

	c.logger.Info().Msg("retention cleanup stopped")
}

func (c *CleanupService) runLoop() {
	defer close(c.doneChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.RunOnce(ctx)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.RunOnce(ctx)
		case <-c.stopChan:
			return
		}
	}
}

// RunOnce executes a single cleanup pass. It can be called manually or by the scheduler.
func (c *CleanupService) RunOnce(ctx context.Context) CleanupRunResult {
	start := c.now()
	result := CleanupRunResult{DryRun: c.config.DryRun}

	lockTTL := c.config.Interval / 2
	if lockTTL < 5*time.Minute {
		lockTTL = 5 * time.Minute
	}
	l := lock.NewLock(c.locker, lock.Keys.RetentionCleanup())

	acquired, err := l.Acquire(ctx, lockTTL)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to acquire cleanup lock")
		result.Errors++
		return c.finish(result, start, "error")
	}
	if !acquired {
		c.logger.Debug().Msg("cleanup lock held by another process, skipping run")
		result.Skipped = true
		return c.finish(result, start, "skipped")
	}
	defer func() {
		if _, err := l.Release(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error().Err(err).Msg("failed to release cleanup lock")
		}
	}()

	cutoff := start.UTC().Add(-c.config.Retention)
	candidates, err := c.records.ListPurgeable(ctx, cutoff, c.config.BatchSize)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to list purgeable records")
		result.Errors++
		return c.finish(result, start, "error")
	}
	if len(candidates) == 0 {
		c.logger.Debug().Msg("no purgeable records")
		return c.finish(result, start, "success")
	}

	c.logger.Info().
		Int("count", len(candidates)).
		Time("cutoff", cutoff).
		Msg("found records past retention")

	ids := make([]uuid.UUID, 0, len(candidates))
	var bytes int64
	for _, rec := range candidates {
		if c.config.DryRun {
			c.logger.Info().
				Str("file_id", rec.ID.String()).
				Str("file_path", rec.FilePath).
				Int64("file_size", rec.FileSize).
				Msg("[DRY RUN] would purge file")
			result.RecordsPurged++
			result.BytesFreed += rec.FileSize
			continue
		}

		if !c.deleteObjects(ctx, rec) {
			result.Errors++
			continue
		}
		ids = append(ids, rec.ID)
		bytes += rec.FileSize
	}

	if len(ids) > 0 {
		purged, err := c.records.Purge(ctx, ids)
		if err != nil {
			c.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to purge ledger rows")
			result.Errors++
		} else {
			result.RecordsPurged = purged
			result.BytesFreed = bytes
		}
	}

	if len(candidates) == c.config.BatchSize {
		more, err := c.records.ListPurgeable(ctx, cutoff, 1)
		if err == nil && len(more) > 0 {
			result.Remaining = true
			c.logger.Info().Msg("more purgeable records remain for next run")
		}
	}

	outcome := "success"
	if result.Errors > 0 {
		outcome = "partial"
	}
	return c.finish(result, start, outcome)
}

// deleteObjects removes the record's object from every provider.
// Missing objects count as deleted.
func (c *CleanupService) deleteObjects(ctx context.Context, rec *domain.UserStorageRecord) bool {
	for _, p := range c.providers {
		if err := p.Delete(ctx, rec.FilePath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			c.logger.Error().
				Err(err).
				Str("provider", p.Name()).
				Str("file_id", rec.ID.String()).
				Str("file_path", rec.FilePath).
				Msg("failed to delete object, keeping ledger row")
			return false
		}
	}
	return true
}

func (c *CleanupService) finish(result CleanupRunResult, start time.Time, outcome string) CleanupRunResult {
	result.Duration = c.now().Sub(start)
	if !result.DryRun {
		c.metrics.CleanupRun(outcome, result.Duration, result.RecordsPurged, result.BytesFreed)
	}
	if outcome != "skipped" {
		c.logger.Info().
			Int64("records_purged", result.RecordsPurged).
			Int64("bytes_freed", result.BytesFreed).
			Int("errors", result.Errors).
			Dur("duration", result.Duration).
			Bool("dry_run", result.DryRun).
			Msg("retention cleanup run completed")
	}
	return result
}
