// Package repository defines data access interfaces for Amplify storage.
// These interfaces abstract database operations, allowing for different implementations
// (PostgreSQL, SQLite, mocks for testing) while keeping the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/amplify-storage/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository exposes the quota-relevant fields of users.
// The user entity itself is owned by the identity service.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// UpdateStorageUsage refreshes the denormalized usage cache.
	UpdateStorageUsage(ctx context.Context, id uuid.UUID, usedBytes, limitBytes int64) error
}

// =============================================================================
// Storage Record Repository
// =============================================================================

// StorageRecordRepository persists and aggregates the usage ledger.
type StorageRecordRepository interface {
	// Create inserts an active record.
	// Returns domain.ErrDuplicatePath if the file path exists for any user.
	Create(ctx context.Context, record *domain.UserStorageRecord) error

	// GetByID retrieves a record by ID regardless of state.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserStorageRecord, error)

	// GetByPath retrieves a user's record by file path.
	// Soft-deleted records are excluded unless includeDeleted is set.
	GetByPath(ctx context.Context, userID uuid.UUID, filePath string, includeDeleted bool) (*domain.UserStorageRecord, error)

	// ListByUser returns a page of the user's records.
	ListByUser(ctx context.Context, userID uuid.UUID, opts FileListOptions) (*ListResult[domain.UserStorageRecord], error)

	// MarkDeleted soft-deletes a record owned by userID.
	// Returns domain.ErrRecordNotFound, domain.ErrOwnershipMismatch or domain.ErrAlreadyDeleted.
	MarkDeleted(ctx context.Context, id, userID uuid.UUID) (*domain.DeletedFile, error)

	// UpdateAccess increments the access counter and stamps last_accessed.
	UpdateAccess(ctx context.Context, id, userID uuid.UUID) error

	// CalculateUsage computes the user's usage from ledger rows.
	CalculateUsage(ctx context.Context, userID uuid.UUID) (*domain.StorageUsage, error)

	// UsageByCategory aggregates active records per content category.
	UsageByCategory(ctx context.Context, userID uuid.UUID) ([]domain.CategoryUsage, error)

	// Analytics computes upload trends and top files since the given time.
	Analytics(ctx context.Context, userID uuid.UUID, since time.Time, topN int) (*domain.StorageAnalytics, error)

	// CleanupDeleted removes the user's soft-deleted rows deleted before olderThan.
	CleanupDeleted(ctx context.Context, userID uuid.UUID, olderThan time.Time) (*domain.CleanupResult, error)

	// ListPurgeable returns soft-deleted records deleted before cutoff, oldest first.
	ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]*domain.UserStorageRecord, error)

	// Purge removes soft-deleted rows by ID. Active rows are never removed.
	Purge(ctx context.Context, ids []uuid.UUID) (int64, error)

	// SumActiveSize returns the platform-wide active byte total.
	SumActiveSize(ctx context.Context) (int64, error)
}

// SortField is a whitelisted ledger ordering column.
type SortField string

const (
	SortByUploadDate       SortField = "upload_date"
	SortByFileSize         SortField = "file_size"
	SortByOriginalFilename SortField = "original_filename"
	SortByLastAccessed     SortField = "last_accessed"
	SortByAccessCount      SortField = "access_count"
)

// Valid reports whether f is a known sort field.
func (f SortField) Valid() bool {
	switch f {
	case SortByUploadDate, SortByFileSize, SortByOriginalFilename, SortByLastAccessed, SortByAccessCount:
		return true
	}
	return false
}

// FileListOptions filters and paginates ListByUser.
type FileListOptions struct {
	ListOptions

	// Category filters by content category when set.
	Category domain.ContentCategory

	// CampaignID filters by campaign when set.
	CampaignID *uuid.UUID

	// IncludeDeleted includes soft-deleted records.
	IncludeDeleted bool
}

// Normalize applies defaults and bounds. Empty OrderBy sorts by upload date, newest first.
func (o *FileListOptions) Normalize() error {
	if o.OrderBy == "" {
		o.OrderBy = string(SortByUploadDate)
		o.Descending = true
	}
	if !SortField(o.OrderBy).Valid() {
		return domain.ErrInvalidSortField
	}
	if o.Limit <= 0 {
		o.Limit = DefaultPageSize
	}
	if o.Limit > MaxPageSize {
		o.Limit = MaxPageSize
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return nil
}

// =============================================================================
// Common Types
// =============================================================================

const (
	// DefaultPageSize is used when no limit is given.
	DefaultPageSize = 50

	// MaxPageSize caps a single page.
	MaxPageSize = 500
)

// ListOptions contains common pagination options.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int

	// OrderBy specifies the sort order.
	OrderBy string

	// Descending specifies descending order if true.
	Descending bool
}

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int
}

// HasMore reports whether more items exist past this page.
func (r *ListResult[T]) HasMore() bool {
	return int64(r.Offset+len(r.Items)) < r.Total
}
