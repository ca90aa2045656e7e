package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// BytesToMB converts bytes to megabytes rounded to two decimals.
func BytesToMB(b int64) float64 {
	return math.Round(float64(b)/float64(MB)*100) / 100
}

// StorageUsage is the ledger-derived usage summary for one user.
type StorageUsage struct {
	TotalFiles   int64 `json:"total_files"`
	ActiveFiles  int64 `json:"active_files"`
	DeletedFiles int64 `json:"deleted_files"`

	TotalSizeBytes   int64 `json:"total_size_bytes"`
	ActiveSizeBytes  int64 `json:"active_size_bytes"`
	DeletedSizeBytes int64 `json:"deleted_size_bytes"`

	TotalSizeMB   float64 `json:"total_size_mb"`
	ActiveSizeMB  float64 `json:"active_size_mb"`
	DeletedSizeMB float64 `json:"deleted_size_mb"`
}

// FillMB derives the MB fields from the byte counts.
func (u *StorageUsage) FillMB() {
	u.TotalSizeMB = BytesToMB(u.TotalSizeBytes)
	u.ActiveSizeMB = BytesToMB(u.ActiveSizeBytes)
	u.DeletedSizeMB = BytesToMB(u.DeletedSizeBytes)
}

// CategoryUsage aggregates active files of one category.
type CategoryUsage struct {
	Category    ContentCategory `json:"category"`
	FileCount   int64           `json:"file_count"`
	TotalSize   int64           `json:"total_size"`
	AvgSize     float64         `json:"avg_size"`
	TotalSizeMB float64         `json:"total_size_mb"`
	LastUpload  *time.Time      `json:"last_upload,omitempty"`
}

// DailyUploadStat is one day of the upload trend.
type DailyUploadStat struct {
	Date      string `json:"date"`
	Uploads   int64  `json:"uploads"`
	TotalSize int64  `json:"total_size"`
}

// AccessedFile is an entry of the most-accessed list.
type AccessedFile struct {
	ID               uuid.UUID       `json:"id"`
	OriginalFilename string          `json:"original_filename"`
	ContentCategory  ContentCategory `json:"content_category"`
	FileSize         int64           `json:"file_size"`
	AccessCount      int64           `json:"access_count"`
	LastAccessed     *time.Time      `json:"last_accessed,omitempty"`
}

// AnalyticsSummary totals the analytics window.
type AnalyticsSummary struct {
	Uploads       int64   `json:"uploads"`
	TotalSize     int64   `json:"total_size"`
	TotalSizeMB   float64 `json:"total_size_mb"`
	TotalAccesses int64   `json:"total_accesses"`
	AvgFileSize   float64 `json:"avg_file_size"`
}

// StorageAnalytics is the dashboard view over a rolling window.
type StorageAnalytics struct {
	PeriodDays   int               `json:"period_days"`
	Since        time.Time         `json:"since"`
	DailyUploads []DailyUploadStat `json:"daily_uploads"`
	MostAccessed []AccessedFile    `json:"most_accessed"`
	Summary      AnalyticsSummary  `json:"summary"`
}

// CleanupResult reports ledger rows removed by a retention pass.
type CleanupResult struct {
	CleanedUp  int64 `json:"cleaned_up"`
	BytesFreed int64 `json:"bytes_freed"`
}

// QuotaInfo describes the user's quota position.
type QuotaInfo struct {
	Tier           TierName `json:"tier"`
	QuotaBytes     int64    `json:"quota_bytes"`
	UsedBytes      int64    `json:"used_bytes"`
	AvailableBytes int64    `json:"available_bytes"`
	UsedPercent    float64  `json:"used_percent"`
	MaxFileSize    int64    `json:"max_file_size_bytes"`
}

// NewQuotaInfo computes quota position for the given tier and active bytes.
func NewQuotaInfo(tier StorageTier, usedBytes int64) QuotaInfo {
	available := tier.QuotaBytes - usedBytes
	if available < 0 {
		available = 0
	}
	var pct float64
	if tier.QuotaBytes > 0 {
		pct = math.Round(float64(usedBytes)/float64(tier.QuotaBytes)*10000) / 100
	}
	return QuotaInfo{
		Tier:           tier.Name,
		QuotaBytes:     tier.QuotaBytes,
		UsedBytes:      usedBytes,
		AvailableBytes: available,
		UsedPercent:    pct,
		MaxFileSize:    tier.MaxFileSizeBytes,
	}
}
