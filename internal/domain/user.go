// Package domain contains the core business entities for Amplify storage.
// These are plain Go structs representing tiers, storage records and the
// quota-relevant view of users.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the quota-relevant view of an account owned by the identity service.
type User struct {
	// ID is the unique identifier for the user.
	ID uuid.UUID `json:"id"`

	// StorageTier is the user's plan.
	StorageTier TierName `json:"storage_tier"`

	// StorageUsedBytes is a denormalized cache of active usage.
	// The ledger is authoritative; this value can drift.
	StorageUsedBytes int64 `json:"storage_used_bytes"`

	// StorageLimitBytes is a denormalized cache of the tier quota.
	StorageLimitBytes int64 `json:"storage_limit_bytes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser creates a user on the given tier with its limit populated.
func NewUser(id uuid.UUID, tier TierName) *User {
	now := time.Now().UTC()
	info := GetTierInfo(tier)
	return &User{
		ID:                id,
		StorageTier:       info.Name,
		StorageLimitBytes: info.QuotaBytes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Tier returns the resolved tier configuration.
func (u *User) Tier() StorageTier {
	return GetTierInfo(u.StorageTier)
}
