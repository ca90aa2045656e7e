package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/repository"
)

// userRepository implements repository.UserRepository for PostgreSQL.
type userRepository struct {
	q Querier
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(q Querier) repository.UserRepository {
	return &userRepository{q: q}
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, storage_tier, storage_used_bytes, storage_limit_bytes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.Exec(ctx, query,
		user.ID,
		string(user.StorageTier),
		user.StorageUsedBytes,
		user.StorageLimitBytes,
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
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
		WHERE id = $1
	`

	user := &domain.User{}
	var tier string

	err := r.q.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&tier,
		&user.StorageUsedBytes,
		&user.StorageLimitBytes,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.StorageTier = domain.TierName(tier)

	return user, nil
}

// UpdateStorageUsage refreshes the denormalized usage cache.
func (r *userRepository) UpdateStorageUsage(ctx context.Context, id uuid.UUID, usedBytes, limitBytes int64) error {
	query := `
		UPDATE users
		SET storage_used_bytes = $1, storage_limit_bytes = $2, updated_at = NOW()
		WHERE id = $3
	`

	tag, err := r.q.Exec(ctx, query, usedBytes, limitBytes, id)
	if err != nil {
		return fmt.Errorf("failed to update storage usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
