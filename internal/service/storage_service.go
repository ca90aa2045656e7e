package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/lock"
	"github.com/prn-tf/amplify-storage/internal/metrics"
	"github.com/prn-tf/amplify-storage/internal/pkg/crypto"
	"github.com/prn-tf/amplify-storage/internal/repository"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

// StorageStatus describes how redundantly an upload was stored.
type StorageStatus string

const (
	// StatusFullyRedundant means primary and backup writes both succeeded.
	StatusFullyRedundant StorageStatus = "fully_redundant"

	// StatusPrimarySuccess means the backup write failed.
	StatusPrimarySuccess StorageStatus = "primary_success"

	// StatusPrimaryOnly means no backup provider is configured.
	StatusPrimaryOnly StorageStatus = "primary_only"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
	mostAccessedLimit    = 10
	defaultRetentionDays = 30
	ledgerProviderName   = "ledger"
	ledgerWriteFailed    = "LedgerWriteFailed"
)

// StorageService orchestrates quota-aware uploads over a primary and an
// optional backup provider, and answers usage queries from the ledger.
type StorageService struct {
	users    repository.UserRepository
	records  repository.StorageRecordRepository
	primary  storage.Provider
	backup   storage.Provider
	resolver *FailoverResolver
	locker   lock.Locker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	config   config.QuotaConfig
	now      func() time.Time
}

// StorageServiceConfig contains the collaborators of a StorageService.
type StorageServiceConfig struct {
	Users    repository.UserRepository
	Records  repository.StorageRecordRepository
	Primary  storage.Provider
	Backup   storage.Provider // nil when no backup is configured
	Resolver *FailoverResolver
	Locker   lock.Locker
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Quota    config.QuotaConfig
}

// NewStorageService creates a new StorageService.
func NewStorageService(cfg StorageServiceConfig) (*StorageService, error) {
	if cfg.Primary == nil {
		return nil, ErrNoProviders
	}
	locker := cfg.Locker
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}
	return &StorageService{
		users:    cfg.Users,
		records:  cfg.Records,
		primary:  cfg.Primary,
		backup:   cfg.Backup,
		resolver: cfg.Resolver,
		locker:   locker,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With().Str("service", "storage").Logger(),
		config:   cfg.Quota,
		now:      time.Now,
	}, nil
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// UploadInput contains the data needed to store a user file.
type UploadInput struct {
	Data        []byte
	Filename    string
	ContentType string
	UserID      uuid.UUID
	CampaignID  *uuid.UUID

	// Source tags where the upload came from (api, admin, import).
	Source string

	// Metadata is kept in the record's metadata blob.
	Metadata map[string]any
}

// ProviderWriteResult is the outcome of one provider write.
type ProviderWriteResult struct {
	Provider string       `json:"provider"`
	Role     storage.Role `json:"role"`
	Success  bool         `json:"success"`
	URL      string       `json:"url,omitempty"`
	ETag     string       `json:"etag,omitempty"`
	// ChecksumVerified is set when the returned ETag equals the payload MD5.
	// Multipart and encrypted objects report false.
	ChecksumVerified bool          `json:"checksum_verified"`
	Code             string        `json:"code,omitempty"`
	Error            string        `json:"error,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// UploadResult is returned by a successful upload.
type UploadResult struct {
	FileID          uuid.UUID              `json:"file_id"`
	FilePath        string                 `json:"file_path"`
	FileURL         string                 `json:"file_url"`
	BackupURL       string                 `json:"backup_url,omitempty"`
	StorageStatus   StorageStatus          `json:"storage_status"`
	ContentType     string                 `json:"content_type"`
	ContentCategory domain.ContentCategory `json:"content_category"`
	FileSize        int64                  `json:"file_size"`
	Providers       []ProviderWriteResult  `json:"providers"`
	Usage           *domain.StorageUsage   `json:"usage"`
	Quota           domain.QuotaInfo       `json:"quota"`
}

// DeleteResult is returned by a successful soft delete.
type DeleteResult struct {
	Success     bool                 `json:"success"`
	FileID      uuid.UUID            `json:"file_id"`
	FreedBytes  int64                `json:"freed_bytes"`
	DeletedDate time.Time            `json:"deleted_date"`
	Usage       *domain.StorageUsage `json:"usage"`
}

// FileURL is a resolved download address.
type FileURL struct {
	FileID     uuid.UUID    `json:"file_id"`
	URL        string       `json:"url"`
	ServedBy   storage.Role `json:"served_by"`
	PrimaryURL string       `json:"primary_url"`
	BackupURL  string       `json:"backup_url,omitempty"`
}

// =============================================================================
// Upload
// =============================================================================

// UploadWithQuotaCheck validates the file against the user's tier and quota,
// writes it to the primary and (best-effort) backup provider, then records it
// in the ledger. Validation failures have no side effects.
func (s *StorageService) UploadWithQuotaCheck(ctx context.Context, input UploadInput) (*UploadResult, error) {
	size := int64(len(input.Data))

	contentType := resolveContentType(input.ContentType, input.Filename, input.Data)
	category := domain.GetContentCategory(contentType)

	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Str("user_id", input.UserID.String()).Msg("failed to load user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	tier := user.Tier()

	if !tier.Allows(category) {
		s.metrics.UploadRejected(reasonContentType)
		s.logger.Info().
			Str("user_id", input.UserID.String()).
			Str("content_type", contentType).
			Str("tier", string(tier.Name)).
			Msg("upload rejected: content type not allowed")
		return nil, &domain.ContentTypeNotAllowedError{
			ContentType:  contentType,
			Tier:         tier.Name,
			AllowedTypes: tier.AllowedContentTypes(),
		}
	}

	if size > tier.MaxFileSizeBytes {
		s.metrics.UploadRejected(reasonFileSize)
		s.logger.Info().
			Str("user_id", input.UserID.String()).
			Int64("file_size", size).
			Int64("max_allowed", tier.MaxFileSizeBytes).
			Msg("upload rejected: file too large")
		return nil, &domain.FileSizeExceededError{
			FileSize:   size,
			MaxAllowed: tier.MaxFileSizeBytes,
			Tier:       tier.Name,
		}
	}

	if s.config.Strict {
		release, err := s.reserve(ctx, input.UserID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	usage, err := s.records.CalculateUsage(ctx, input.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", input.UserID.String()).Msg("failed to calculate usage")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if usage.ActiveSizeBytes+size > tier.QuotaBytes {
		s.metrics.UploadRejected(reasonQuota)
		qerr := &domain.QuotaExceededError{
			UserID:        input.UserID.String(),
			CurrentUsage:  usage.ActiveSizeBytes,
			Limit:         tier.QuotaBytes,
			AttemptedSize: size,
			Tier:          tier.Name,
		}
		if next, ok := domain.SuggestTierFor(tier.Name, usage.ActiveSizeBytes+size); ok {
			qerr.SuggestedTier = next
		}
		s.logger.Info().
			Str("user_id", input.UserID.String()).
			Int64("current_usage", usage.ActiveSizeBytes).
			Int64("attempted_size", size).
			Int64("limit", tier.QuotaBytes).
			Msg("upload rejected: quota exceeded")
		return nil, qerr
	}

	filePath := domain.GenerateFilePath(input.UserID.String(), input.Filename, contentType)
	sum := crypto.Sum(input.Data)
	objectMeta := map[string]string{
		"user-id":         input.UserID.String(),
		"original-name":   domain.SanitizeFilename(input.Filename),
		"checksum-sha256": sum.SHA256(),
	}

	primaryRes, err := s.write(ctx, s.primary, filePath, input.Data, contentType, sum, objectMeta)
	if err != nil {
		return nil, &domain.UploadFailedError{
			Provider: s.primary.Name(),
			Code:     storage.ErrorCode(err),
			Message:  "primary storage write failed",
			Err:      err,
		}
	}
	results := []ProviderWriteResult{primaryRes}

	status := StatusPrimaryOnly
	var backupRes ProviderWriteResult
	if s.backup != nil {
		backupRes, _ = s.write(ctx, s.backup, filePath, input.Data, contentType, sum, objectMeta)
		results = append(results, backupRes)
		status = StatusPrimarySuccess
		if backupRes.Success {
			status = StatusFullyRedundant
		}
	}

	record := domain.NewUserStorageRecord(input.UserID, filePath, input.Filename, size, contentType)
	record.UploadDate = s.now().UTC()
	record.CampaignID = input.CampaignID
	record.Metadata = domain.FileMetadata{
		SchemaVersion:   domain.FileMetadataVersion,
		ChecksumSHA256:  sum.SHA256(),
		PrimaryProvider: s.primary.Name(),
		PrimaryURL:      primaryRes.URL,
		UploadSource:    input.Source,
		Extra:           input.Metadata,
	}
	if s.backup != nil {
		record.Metadata.BackupProvider = s.backup.Name()
		record.Metadata.BackupStored = backupRes.Success
		record.Metadata.BackupURL = backupRes.URL
	}

	if err := s.records.Create(ctx, record); err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", input.UserID.String()).
			Str("file_path", filePath).
			Msg("failed to record upload, removing written objects")
		s.removeObjects(ctx, filePath, results)
		return nil, &domain.UploadFailedError{
			Provider: ledgerProviderName,
			Code:     ledgerWriteFailed,
			Message:  "failed to record upload",
			Err:      err,
		}
	}

	after, err := s.records.CalculateUsage(ctx, input.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", input.UserID.String()).Msg("failed to recalculate usage after upload")
		after = usage
		after.TotalFiles++
		after.ActiveFiles++
		after.TotalSizeBytes += size
		after.ActiveSizeBytes += size
		after.FillMB()
	}
	s.refreshUserCache(ctx, input.UserID, after.ActiveSizeBytes, tier.QuotaBytes)

	s.metrics.UploadCompleted(string(status), size)
	s.logger.Info().
		Str("user_id", input.UserID.String()).
		Str("file_id", record.ID.String()).
		Str("file_path", filePath).
		Int64("file_size", size).
		Str("content_type", contentType).
		Str("storage_status", string(status)).
		Msg("file uploaded")

	result := &UploadResult{
		FileID:          record.ID,
		FilePath:        filePath,
		FileURL:         primaryRes.URL,
		StorageStatus:   status,
		ContentType:     contentType,
		ContentCategory: category,
		FileSize:        size,
		Providers:       results,
		Usage:           after,
		Quota:           domain.NewQuotaInfo(tier, after.ActiveSizeBytes),
	}
	if backupRes.Success {
		result.BackupURL = backupRes.URL
	}
	return result, nil
}

// resolveContentType prefers the caller's type, then the file extension, then sniffing.
func resolveContentType(declared, filename string, data []byte) string {
	if ct := domain.NormalizeContentType(declared); !domain.IsGenericContentType(ct) {
		return ct
	}
	if ct := domain.GetContentTypeFromFilename(filename); !domain.IsGenericContentType(ct) {
		return ct
	}
	return domain.DetectContentType(data)
}

// reserve takes the per-user quota lock. The returned func releases it.
func (s *StorageService) reserve(ctx context.Context, userID uuid.UUID) (func(), error) {
	l := lock.NewLock(s.locker, lock.Keys.QuotaReservation(userID))
	acquired, err := l.AcquireWithRetry(ctx, s.config.LockTTL, s.config.LockRetries, s.config.LockRetryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to acquire quota lock")
		s.metrics.UploadRejected(reasonBusy)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageBusy, err)
	}
	if !acquired {
		s.metrics.UploadRejected(reasonBusy)
		return nil, domain.ErrStorageBusy
	}

	return func() {
		released, err := l.Release(context.WithoutCancel(ctx))
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to release quota lock")
		case !released:
			s.logger.Warn().Str("user_id", userID.String()).Dur("lock_ttl", s.config.LockTTL).Msg("quota lock expired before release")
		}
	}, nil
}

func (s *StorageService) write(
	ctx context.Context,
	p storage.Provider,
	key string,
	data []byte,
	contentType string,
	sum crypto.Checksums,
	meta map[string]string,
) (ProviderWriteResult, error) {
	start := s.now()
	res := ProviderWriteResult{Provider: p.Name(), Role: p.Role()}

	out, err := p.Upload(ctx, storage.UploadInput{
		Key:         key,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: contentType,
		ContentMD5:  sum.ContentMD5(),
		Metadata:    meta,
	})
	res.Duration = s.now().Sub(start)
	if err != nil {
		res.Code = storage.ErrorCode(err)
		res.Error = err.Error()
		s.logger.Warn().
			Err(err).
			Str("provider", p.Name()).
			Str("role", string(p.Role())).
			Str("file_path", key).
			Str("code", res.Code).
			Msg("provider write failed")
		return res, err
	}

	res.Success = true
	res.URL = out.URL
	res.ETag = out.ETag
	res.ChecksumVerified = sum.MatchesETag(out.ETag)
	if !res.ChecksumVerified {
		s.logger.Debug().
			Str("provider", p.Name()).
			Str("file_path", key).
			Str("etag", out.ETag).
			Msg("provider etag does not match payload md5")
	}
	return res, nil
}

// removeObjects best-effort deletes objects written before a ledger failure.
func (s *StorageService) removeObjects(ctx context.Context, key string, results []ProviderWriteResult) {
	ctx = context.WithoutCancel(ctx)
	for _, res := range results {
		if !res.Success {
			continue
		}
		p := s.providerFor(res.Role)
		if p == nil {
			continue
		}
		if err := p.Delete(ctx, key); err != nil {
			s.logger.Error().
				Err(err).
				Str("provider", p.Name()).
				Str("file_path", key).
				Msg("failed to remove orphaned object")
		}
	}
}

func (s *StorageService) providerFor(role storage.Role) storage.Provider {
	if role == storage.RoleBackup {
		return s.backup
	}
	return s.primary
}

// refreshUserCache updates the denormalized usage on the user row. Failures are logged.
func (s *StorageService) refreshUserCache(ctx context.Context, userID uuid.UUID, used, limit int64) {
	if err := s.users.UpdateStorageUsage(ctx, userID, used, limit); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to refresh user storage cache")
	}
}

// =============================================================================
// Files
// =============================================================================

// GetUserFiles lists the user's files.
func (s *StorageService) GetUserFiles(ctx context.Context, userID uuid.UUID, opts repository.FileListOptions) (*repository.ListResult[domain.UserStorageRecord], error) {
	res, err := s.records.ListByUser(ctx, userID, opts)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSortField) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list files")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return res, nil
}

// DeleteFileWithQuotaUpdate soft-deletes a file and returns the new usage.
// Objects stay in the providers until retention cleanup purges them.
func (s *StorageService) DeleteFileWithQuotaUpdate(ctx context.Context, fileID, userID uuid.UUID) (*DeleteResult, error) {
	deleted, err := s.records.MarkDeleted(ctx, fileID, userID)
	if err != nil {
		if isLedgerDomainError(err) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("file_id", fileID.String()).Msg("failed to delete file")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	// The soft delete has committed; a failed recompute only leaves Usage unset.
	usage, err := s.records.CalculateUsage(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to recalculate usage after delete")
		usage = nil
	}
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		used := max(user.StorageUsedBytes-deleted.FileSize, 0)
		if usage != nil {
			used = usage.ActiveSizeBytes
		}
		s.refreshUserCache(ctx, userID, used, user.Tier().QuotaBytes)
	}

	s.metrics.FileDeleted()
	s.logger.Info().
		Str("user_id", userID.String()).
		Str("file_id", fileID.String()).
		Str("file_path", deleted.FilePath).
		Int64("freed_bytes", deleted.FileSize).
		Msg("file soft-deleted")

	return &DeleteResult{
		Success:     true,
		FileID:      fileID,
		FreedBytes:  deleted.FileSize,
		DeletedDate: deleted.DeletedDate,
		Usage:       usage,
	}, nil
}

// GetFileURL resolves a download URL for an active file owned by userID,
// failing over to the backup copy when the preferred provider is unreachable.
func (s *StorageService) GetFileURL(ctx context.Context, fileID, userID uuid.UUID, preferred storage.Role) (*FileURL, error) {
	rec, err := s.records.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("file_id", fileID.String()).Msg("failed to load file")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if rec.UserID != userID {
		return nil, domain.ErrOwnershipMismatch
	}
	if rec.IsDeleted() {
		return nil, domain.ErrRecordNotFound
	}

	primaryURL := rec.Metadata.PrimaryURL
	if primaryURL == "" {
		primaryURL = s.primary.PublicURL(rec.FilePath)
	}
	var backupURL string
	if rec.Metadata.BackupStored {
		backupURL = rec.Metadata.BackupURL
		if backupURL == "" && s.backup != nil {
			backupURL = s.backup.PublicURL(rec.FilePath)
		}
	}

	url := primaryURL
	if s.resolver != nil {
		url = s.resolver.Resolve(ctx, primaryURL, backupURL, preferred)
	}
	servedBy := storage.RolePrimary
	if backupURL != "" && url == backupURL {
		servedBy = storage.RoleBackup
	}

	s.RecordFileAccess(ctx, fileID, userID)

	return &FileURL{
		FileID:     fileID,
		URL:        url,
		ServedBy:   servedBy,
		PrimaryURL: primaryURL,
		BackupURL:  backupURL,
	}, nil
}

// RecordFileAccess bumps the access counter. Failures are logged and reported as false.
func (s *StorageService) RecordFileAccess(ctx context.Context, fileID, userID uuid.UUID) bool {
	if err := s.records.UpdateAccess(ctx, fileID, userID); err != nil {
		s.logger.Warn().
			Err(err).
			Str("file_id", fileID.String()).
			Str("user_id", userID.String()).
			Msg("failed to record file access")
		return false
	}
	return true
}

func isLedgerDomainError(err error) bool {
	return errors.Is(err, domain.ErrRecordNotFound) ||
		errors.Is(err, domain.ErrOwnershipMismatch) ||
		errors.Is(err, domain.ErrAlreadyDeleted)
}

// =============================================================================
// Usage
// =============================================================================

// CalculateUserStorageUsage returns the user's ledger-derived usage.
func (s *StorageService) CalculateUserStorageUsage(ctx context.Context, userID uuid.UUID) (*domain.StorageUsage, error) {
	usage, err := s.records.CalculateUsage(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to calculate usage")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return usage, nil
}

// GetStorageUsageByCategory returns active usage per content category.
func (s *StorageService) GetStorageUsageByCategory(ctx context.Context, userID uuid.UUID) ([]domain.CategoryUsage, error) {
	usage, err := s.records.UsageByCategory(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to get usage by category")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return usage, nil
}

// GetStorageAnalytics returns upload trends over the last days (default 30, max 365).
func (s *StorageService) GetStorageAnalytics(ctx context.Context, userID uuid.UUID, days int) (*domain.StorageAnalytics, error) {
	if days <= 0 {
		days = defaultAnalyticsDays
	}
	if days > maxAnalyticsDays {
		days = maxAnalyticsDays
	}
	since := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	a, err := s.records.Analytics(ctx, userID, since, mostAccessedLimit)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to get analytics")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	a.PeriodDays = days
	return a, nil
}

// GetQuotaInfo returns the user's quota position.
func (s *StorageService) GetQuotaInfo(ctx context.Context, userID uuid.UUID) (*domain.QuotaInfo, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	usage, err := s.CalculateUserStorageUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := domain.NewQuotaInfo(user.Tier(), usage.ActiveSizeBytes)
	return &info, nil
}

// CleanupDeletedFiles removes the user's soft-deleted ledger rows older than the given days.
func (s *StorageService) CleanupDeletedFiles(ctx context.Context, userID uuid.UUID, olderThanDays int) (*domain.CleanupResult, error) {
	if olderThanDays <= 0 {
		olderThanDays = defaultRetentionDays
	}
	cutoff := s.now().UTC().Add(-time.Duration(olderThanDays) * 24 * time.Hour)

	res, err := s.records.CleanupDeleted(ctx, userID, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to clean up deleted files")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if res.CleanedUp > 0 {
		s.logger.Info().
			Str("user_id", userID.String()).
			Int64("cleaned_up", res.CleanedUp).
			Int64("bytes_freed", res.BytesFreed).
			Msg("cleaned up deleted files")
	}
	return res, nil
}

// ReconcileUserUsage recomputes usage from the ledger and persists it on the user row.
func (s *StorageService) ReconcileUserUsage(ctx context.Context, userID uuid.UUID) (*domain.StorageUsage, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	usage, err := s.CalculateUserStorageUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := user.Tier().QuotaBytes
	if err := s.users.UpdateStorageUsage(ctx, userID, usage.ActiveSizeBytes, limit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if user.StorageUsedBytes != usage.ActiveSizeBytes || user.StorageLimitBytes != limit {
		s.logger.Info().
			Str("user_id", userID.String()).
			Int64("cached_bytes", user.StorageUsedBytes).
			Int64("ledger_bytes", usage.ActiveSizeBytes).
			Msg("reconciled user storage usage")
	}
	return usage, nil
}
