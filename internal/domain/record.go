package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordState is the lifecycle state of a storage record.
type RecordState string

const (
	// RecordActive counts toward quota.
	RecordActive RecordState = "active"

	// RecordSoftDeleted is excluded from quota, kept until retention elapses.
	RecordSoftDeleted RecordState = "soft_deleted"
)

// FileMetadataVersion is the current FileMetadata schema version.
const FileMetadataVersion = 1

// FileMetadata is the typed metadata blob stored with each record.
// Known fields are versioned; anything else goes into Extra.
type FileMetadata struct {
	SchemaVersion   int            `json:"schema_version"`
	ChecksumSHA256  string         `json:"checksum_sha256,omitempty"`
	PrimaryProvider string         `json:"primary_provider,omitempty"`
	PrimaryURL      string         `json:"primary_url,omitempty"`
	BackupProvider  string         `json:"backup_provider,omitempty"`
	BackupURL       string         `json:"backup_url,omitempty"`
	BackupStored    bool           `json:"backup_stored"`
	UploadSource    string         `json:"upload_source,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Marshal encodes the metadata, stamping the current schema version.
func (m FileMetadata) Marshal() ([]byte, error) {
	if m.SchemaVersion == 0 {
		m.SchemaVersion = FileMetadataVersion
	}
	return json.Marshal(m)
}

// ParseFileMetadata decodes a stored metadata blob. Empty input yields zero metadata.
func ParseFileMetadata(data []byte) (FileMetadata, error) {
	var m FileMetadata
	if len(data) == 0 {
		m.SchemaVersion = FileMetadataVersion
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return FileMetadata{}, fmt.Errorf("decode file metadata: %w", err)
	}
	if m.SchemaVersion == 0 {
		m.SchemaVersion = FileMetadataVersion
	}
	return m, nil
}

// UserStorageRecord is one row of the usage ledger, one per uploaded file.
type UserStorageRecord struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	// FilePath is the canonical object key. Immutable after creation.
	FilePath string `json:"file_path"`

	OriginalFilename string          `json:"original_filename"`
	FileSize         int64           `json:"file_size"`
	ContentType      string          `json:"content_type"`
	ContentCategory  ContentCategory `json:"content_category"`
	CampaignID       *uuid.UUID      `json:"campaign_id,omitempty"`

	UploadDate   time.Time  `json:"upload_date"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	AccessCount  int64      `json:"access_count"`

	State       RecordState `json:"state"`
	DeletedDate *time.Time  `json:"deleted_date,omitempty"`

	Metadata FileMetadata `json:"metadata"`
}

// NewUserStorageRecord creates an active record with a fresh ID.
func NewUserStorageRecord(userID uuid.UUID, filePath, filename string, size int64, contentType string) *UserStorageRecord {
	return &UserStorageRecord{
		ID:               uuid.New(),
		UserID:           userID,
		FilePath:         filePath,
		OriginalFilename: filename,
		FileSize:         size,
		ContentType:      contentType,
		ContentCategory:  GetContentCategory(contentType),
		UploadDate:       time.Now().UTC(),
		State:            RecordActive,
		Metadata:         FileMetadata{SchemaVersion: FileMetadataVersion},
	}
}

// IsDeleted reports whether the record no longer counts toward quota.
func (r *UserStorageRecord) IsDeleted() bool {
	return r.State != RecordActive
}

// StateFromFlags derives the record state from the persisted soft-delete flag.
func StateFromFlags(isDeleted bool) RecordState {
	if isDeleted {
		return RecordSoftDeleted
	}
	return RecordActive
}

// DeletedFile is returned by a successful soft delete.
type DeletedFile struct {
	FileID      uuid.UUID `json:"file_id"`
	FilePath    string    `json:"file_path"`
	FileSize    int64     `json:"file_size"`
	DeletedDate time.Time `json:"deleted_date"`
}
