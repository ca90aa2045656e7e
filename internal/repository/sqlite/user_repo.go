package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/repository"
)

// userRepository implements repository.UserRepository for SQLite.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, storage_tier, storage_used_bytes, storage_limit_bytes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID.String(),
		string(user.StorageTier),
		user.StorageUsedBytes,
		user.StorageLimitBytes,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrUserAlreadyExists, user.ID)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, storage_tier, storage_used_bytes, storage_limit_bytes, created_at, updated_at
		FROM users
		WHERE id = ?
	`

	user := &domain.User{}
	var rawID, tier, createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&rawID,
		&tier,
		&user.StorageUsedBytes,
		&user.StorageLimitBytes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("failed to parse user id: %w", err)
	}
	user.StorageTier = domain.TierName(tier)
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return user, nil
}

// UpdateStorageUsage refreshes the denormalized usage cache.
func (r *userRepository) UpdateStorageUsage(ctx context.Context, id uuid.UUID, usedBytes, limitBytes int64) error {
	query := `
		UPDATE users
		SET storage_used_bytes = ?, storage_limit_bytes = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, usedBytes, limitBytes, formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("failed to update storage usage: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
