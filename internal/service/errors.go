// Package service provides the storage manager's business logic: quota-aware
// uploads, ledger queries, URL failover, provider health and retention cleanup.
package service

import "errors"

// Common service errors.
var (
	// ErrInternalError wraps infrastructure failures after they are logged.
	ErrInternalError = errors.New("internal server error")

	// ErrNoProviders indicates a service was built without any provider.
	ErrNoProviders = errors.New("no storage providers configured")
)

// Rejection reasons used in metrics and logs.
const (
	reasonContentType = "content_type_not_allowed"
	reasonFileSize    = "file_size_exceeded"
	reasonQuota       = "quota_exceeded"
	reasonBusy        = "storage_busy"
)
