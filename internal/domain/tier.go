package domain

import (
	"sort"
	"strings"
)

// TierName identifies a storage tier.
type TierName string

const (
	TierFree       TierName = "free"
	TierPro        TierName = "pro"
	TierEnterprise TierName = "enterprise"
)

const (
	KB int64 = 1024
	MB       = 1024 * KB
	GB       = 1024 * MB
)

// StorageTier is a named bundle of storage limits.
type StorageTier struct {
	Name              TierName          `json:"name"`
	QuotaBytes        int64             `json:"quota_bytes"`
	MaxFileSizeBytes  int64             `json:"max_file_size_bytes"`
	AllowedCategories []ContentCategory `json:"allowed_categories"`

	// MonthlyUploadLimit is informational; nil means unlimited.
	MonthlyUploadLimit *int `json:"monthly_upload_limit,omitempty"`
}

// tierOrder lists tiers from least to most capable.
var tierOrder = []TierName{TierFree, TierPro, TierEnterprise}

var tiers = map[TierName]StorageTier{
	TierFree: {
		Name:               TierFree,
		QuotaBytes:         1 * GB,
		MaxFileSizeBytes:   10 * MB,
		AllowedCategories:  []ContentCategory{CategoryImage, CategoryDocument},
		MonthlyUploadLimit: intPtr(100),
	},
	TierPro: {
		Name:               TierPro,
		QuotaBytes:         10 * GB,
		MaxFileSizeBytes:   100 * MB,
		AllowedCategories:  []ContentCategory{CategoryImage, CategoryDocument, CategoryVideo},
		MonthlyUploadLimit: intPtr(1000),
	},
	TierEnterprise: {
		Name:              TierEnterprise,
		QuotaBytes:        100 * GB,
		MaxFileSizeBytes:  500 * MB,
		AllowedCategories: []ContentCategory{CategoryImage, CategoryDocument, CategoryVideo},
	},
}

func intPtr(v int) *int { return &v }

// ParseTierName normalizes a tier name. Unknown names report false.
func ParseTierName(name string) (TierName, bool) {
	t := TierName(strings.ToLower(strings.TrimSpace(name)))
	_, ok := tiers[t]
	return t, ok
}

// GetTierInfo returns the tier configuration.
// Unknown or empty names degrade to the free tier.
func GetTierInfo(name TierName) StorageTier {
	if t, ok := ParseTierName(string(name)); ok {
		return tiers[t]
	}
	return tiers[TierFree]
}

// AllTiers returns every tier ordered by capability.
func AllTiers() []StorageTier {
	out := make([]StorageTier, 0, len(tierOrder))
	for _, name := range tierOrder {
		out = append(out, tiers[name])
	}
	return out
}

// NextTier returns the next more capable tier, if any.
func NextTier(name TierName) (TierName, bool) {
	current := GetTierInfo(name).Name
	for i, t := range tierOrder {
		if t == current && i+1 < len(tierOrder) {
			return tierOrder[i+1], true
		}
	}
	return "", false
}

// SuggestTierFor returns the least capable tier above the current one whose
// quota fits the required bytes. Returns false when no tier fits.
func SuggestTierFor(current TierName, requiredBytes int64) (TierName, bool) {
	name := GetTierInfo(current).Name
	for {
		next, ok := NextTier(name)
		if !ok {
			return "", false
		}
		if tiers[next].QuotaBytes >= requiredBytes {
			return next, true
		}
		name = next
	}
}

// Allows reports whether the category is permitted on this tier.
func (t StorageTier) Allows(category ContentCategory) bool {
	for _, c := range t.AllowedCategories {
		if c == category {
			return true
		}
	}
	return false
}

// AllowedContentTypes returns the known MIME types the tier accepts, sorted.
func (t StorageTier) AllowedContentTypes() []string {
	var out []string
	for mime, category := range mimeCategories {
		if t.Allows(category) {
			out = append(out, mime)
		}
	}
	sort.Strings(out)
	return out
}

// IsContentTypeAllowed classifies the content type and checks it against the tier.
func IsContentTypeAllowed(contentType string, tier TierName) bool {
	return GetTierInfo(tier).Allows(GetContentCategory(contentType))
}

// IsFileSizeAllowed reports whether size fits the tier's per-file ceiling.
func IsFileSizeAllowed(size int64, tier TierName) bool {
	return size <= GetTierInfo(tier).MaxFileSizeBytes
}
