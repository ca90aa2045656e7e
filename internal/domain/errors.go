// Package domain contains the core business entities for Amplify storage.
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a user with the same ID exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ===========================================
	// Storage Record Errors
	// ===========================================

	// ErrRecordNotFound indicates no storage record matched the request.
	ErrRecordNotFound = errors.New("storage record not found")

	// ErrOwnershipMismatch indicates the record belongs to another user.
	ErrOwnershipMismatch = errors.New("storage record belongs to another user")

	// ErrAlreadyDeleted indicates the record is already soft-deleted.
	ErrAlreadyDeleted = errors.New("storage record is already deleted")

	// ErrDuplicatePath indicates a record with the same file path exists.
	ErrDuplicatePath = errors.New("file path already exists")

	// ErrInvalidSortField indicates an unknown ordering field was requested.
	ErrInvalidSortField = errors.New("invalid sort field")

	// ===========================================
	// Upload Policy Errors
	// ===========================================

	// ErrQuotaExceeded is matched by *QuotaExceededError.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrFileTooLarge is matched by *FileSizeExceededError.
	ErrFileTooLarge = errors.New("file size exceeds tier limit")

	// ErrContentTypeNotAllowed is matched by *ContentTypeNotAllowedError.
	ErrContentTypeNotAllowed = errors.New("content type not allowed for tier")

	// ErrUploadFailed is matched by *UploadFailedError.
	ErrUploadFailed = errors.New("upload failed")

	// ErrStorageBusy indicates the per-user quota lock could not be acquired.
	ErrStorageBusy = errors.New("storage is busy, retry later")
)

// QuotaExceededError reports an upload that would push the user over quota.
type QuotaExceededError struct {
	UserID        string   `json:"user_id"`
	CurrentUsage  int64    `json:"current_usage"`
	Limit         int64    `json:"limit"`
	AttemptedSize int64    `json:"attempted_size"`
	Tier          TierName `json:"tier"`
	SuggestedTier TierName `json:"suggested_tier,omitempty"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded: %d + %d bytes exceeds %s limit of %d bytes",
		e.CurrentUsage, e.AttemptedSize, e.Tier, e.Limit)
}

// Is matches ErrQuotaExceeded.
func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// Available returns the bytes left before the limit.
func (e *QuotaExceededError) Available() int64 {
	if e.CurrentUsage >= e.Limit {
		return 0
	}
	return e.Limit - e.CurrentUsage
}

// FileSizeExceededError reports a file larger than the tier allows.
type FileSizeExceededError struct {
	FileSize   int64    `json:"file_size"`
	MaxAllowed int64    `json:"max_allowed"`
	Tier       TierName `json:"tier"`
}

func (e *FileSizeExceededError) Error() string {
	return fmt.Sprintf("file size %d bytes exceeds %s tier maximum of %d bytes", e.FileSize, e.Tier, e.MaxAllowed)
}

// Is matches ErrFileTooLarge.
func (e *FileSizeExceededError) Is(target error) bool { return target == ErrFileTooLarge }

// ContentTypeNotAllowedError reports a content category excluded from the tier.
type ContentTypeNotAllowedError struct {
	ContentType  string   `json:"content_type"`
	Tier         TierName `json:"tier"`
	AllowedTypes []string `json:"allowed_types"`
}

func (e *ContentTypeNotAllowedError) Error() string {
	return fmt.Sprintf("content type %q is not allowed for %s tier", e.ContentType, e.Tier)
}

// Is matches ErrContentTypeNotAllowed.
func (e *ContentTypeNotAllowedError) Is(target error) bool { return target == ErrContentTypeNotAllowed }

// UploadFailedError reports a mandatory provider write or ledger write that failed.
type UploadFailedError struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

func (e *UploadFailedError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("upload failed: %s", e.Message)
	}
	return fmt.Sprintf("upload to %s failed (%s): %s", e.Provider, e.Code, e.Message)
}

// Is matches ErrUploadFailed.
func (e *UploadFailedError) Is(target error) bool { return target == ErrUploadFailed }

// Unwrap returns the underlying provider error.
func (e *UploadFailedError) Unwrap() error { return e.Err }

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., file ID, file path).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// NewRecordError tags a ledger error with the file and the requesting user.
func NewRecordError(err error, message string, fileID, userID uuid.UUID) *DomainError {
	return NewDomainError(err, message, fmt.Sprintf("file_id=%s user_id=%s", fileID, userID))
}
