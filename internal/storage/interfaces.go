// Package storage defines the provider abstraction for object storage.
// Every provider is an S3-compatible bucket; the manager writes each file to a
// mandatory primary and an optional best-effort backup.
package storage

import (
	"context"
	"io"
	"time"
)

// Role is the position of a provider in the redundant pair.
type Role string

const (
	RolePrimary Role = "primary"
	RoleBackup  Role = "backup"
)

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleBackup {
		return RolePrimary
	}
	return RoleBackup
}

// Provider is one object storage backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name identifies the provider in logs, metrics and record metadata.
	Name() string

	// Role reports whether this is the primary or the backup.
	Role() Role

	// Priority orders providers for reporting; lower is preferred.
	Priority() int

	// CostPerGB is the monthly storage price in USD per GB.
	CostPerGB() float64

	// Upload writes an object. The call is bounded by the provider timeout.
	Upload(ctx context.Context, in UploadInput) (*UploadOutput, error)

	// Download opens an object for reading. The caller must close Body.
	Download(ctx context.Context, key string) (*DownloadOutput, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// CheckHealth probes the bucket and never returns an error.
	CheckHealth(ctx context.Context) HealthStatus

	// PublicURL returns the public address of key.
	PublicURL(key string) string
}

// UploadInput describes one object write.
type UploadInput struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string

	// ContentMD5 is the base64 MD5 digest checked by the provider when set.
	ContentMD5 string

	// Metadata is stored as user metadata on the object.
	Metadata map[string]string
}

// UploadOutput is the result of a successful write.
type UploadOutput struct {
	Key  string
	URL  string
	ETag string
	Size int64
}

// DownloadOutput is an open object stream.
type DownloadOutput struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	ETag        string
}

// HealthStatus is the result of one health probe.
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time"`
	CheckedAt    time.Time     `json:"checked_at"`
	Error        string        `json:"error,omitempty"`
}
