package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/repository"
)

// Operation labels attached to ledger errors.
const (
	opMarkDeleted  = "mark deleted"
	opUpdateAccess = "update access"
)

const recordColumns = `id, user_id, file_path, original_filename, file_size, content_type, content_category,
	campaign_id, upload_date, last_accessed, access_count, is_deleted, deleted_date, file_metadata`

// storageRecordRepository implements repository.StorageRecordRepository for SQLite.
type storageRecordRepository struct {
	db *DB
}

// NewStorageRecordRepository creates a new SQLite storage record repository.
func NewStorageRecordRepository(db *DB) repository.StorageRecordRepository {
	return &storageRecordRepository{db: db}
}

// Create inserts an active record.
func (r *storageRecordRepository) Create(ctx context.Context, rec *domain.UserStorageRecord) error {
	if rec.FileSize < 0 {
		return fmt.Errorf("file size must not be negative: %d", rec.FileSize)
	}

	meta, err := rec.Metadata.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode file metadata: %w", err)
	}

	var campaignID sql.NullString
	if rec.CampaignID != nil {
		campaignID = sql.NullString{String: rec.CampaignID.String(), Valid: true}
	}

	query := `
		INSERT INTO user_storage_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID.String(),
		rec.UserID.String(),
		rec.FilePath,
		rec.OriginalFilename,
		rec.FileSize,
		rec.ContentType,
		string(rec.ContentCategory),
		campaignID,
		formatTime(rec.UploadDate),
		formatNullTime(rec.LastAccessed),
		rec.AccessCount,
		string(meta),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicatePath, rec.FilePath)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrUserNotFound, rec.UserID)
		}
		return fmt.Errorf("failed to create storage record: %w", err)
	}

	rec.State = domain.RecordActive
	rec.DeletedDate = nil
	return nil
}

// GetByID retrieves a record by ID regardless of state.
func (r *storageRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserStorageRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM user_storage_records WHERE id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get storage record: %w", err)
	}
	return rec, nil
}

// GetByPath retrieves a user's record by file path.
func (r *storageRecordRepository) GetByPath(ctx context.Context, userID uuid.UUID, filePath string, includeDeleted bool) (*domain.UserStorageRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM user_storage_records WHERE user_id = ? AND file_path = ?`
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, userID.String(), filePath))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get storage record by path: %w", err)
	}
	return rec, nil
}

// ListByUser returns a page of the user's records.
func (r *storageRecordRepository) ListByUser(ctx context.Context, userID uuid.UUID, opts repository.FileListOptions) (*repository.ListResult[domain.UserStorageRecord], error) {
	if err := opts.Normalize(); err != nil {
		return nil, err
	}

	where := []string{"user_id = ?"}
	args := []any{userID.String()}
	if !opts.IncludeDeleted {
		where = append(where, "is_deleted = 0")
	}
	if opts.Category != "" {
		where = append(where, "content_category = ?")
		args = append(args, string(opts.Category))
	}
	if opts.CampaignID != nil {
		where = append(where, "campaign_id = ?")
		args = append(args, opts.CampaignID.String())
	}
	whereSQL := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_storage_records WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count storage records: %w", err)
	}

	direction := "ASC"
	if opts.Descending {
		direction = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM user_storage_records WHERE %s ORDER BY %s %s, id %s LIMIT ? OFFSET ?`,
		recordColumns, whereSQL, opts.OrderBy, direction, direction)

	rows, err := r.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage records: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.UserStorageRecord, 0, opts.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan storage record: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating storage records: %w", err)
	}

	return &repository.ListResult[domain.UserStorageRecord]{
		Items:  items,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// MarkDeleted soft-deletes a record owned by userID.
func (r *storageRecordRepository) MarkDeleted(ctx context.Context, id, userID uuid.UUID) (*domain.DeletedFile, error) {
	now := time.Now().UTC()

	var out *domain.DeletedFile
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var owner, filePath string
		var size int64
		var isDeleted int
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, file_path, file_size, is_deleted FROM user_storage_records WHERE id = ?`,
			id.String(),
		).Scan(&owner, &filePath, &size, &isDeleted)
		if err != nil {
			if isNoRows(err) {
				return domain.NewRecordError(domain.ErrRecordNotFound, opMarkDeleted, id, userID)
			}
			return fmt.Errorf("failed to load storage record: %w", err)
		}
		if owner != userID.String() {
			return domain.NewRecordError(domain.ErrOwnershipMismatch, opMarkDeleted, id, userID)
		}
		if isDeleted != 0 {
			return domain.NewRecordError(domain.ErrAlreadyDeleted, opMarkDeleted, id, userID)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE user_storage_records SET is_deleted = 1, deleted_date = ? WHERE id = ? AND is_deleted = 0`,
			formatTime(now), id.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to mark storage record deleted: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return domain.NewRecordError(domain.ErrAlreadyDeleted, opMarkDeleted, id, userID)
		}

		out = &domain.DeletedFile{FileID: id, FilePath: filePath, FileSize: size, DeletedDate: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateAccess increments the access counter and stamps last_accessed.
func (r *storageRecordRepository) UpdateAccess(ctx context.Context, id, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_storage_records
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ? AND user_id = ? AND is_deleted = 0
	`, formatTime(time.Now()), id.String(), userID.String())
	if err != nil {
		return fmt.Errorf("failed to update access: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}
	return r.classifyMiss(ctx, opUpdateAccess, id, userID)
}

// classifyMiss explains why a guarded update matched nothing.
func (r *storageRecordRepository) classifyMiss(ctx context.Context, op string, id, userID uuid.UUID) error {
	rec, err := r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.NewRecordError(domain.ErrRecordNotFound, op, id, userID)
		}
		return err
	}
	if rec.UserID != userID {
		return domain.NewRecordError(domain.ErrOwnershipMismatch, op, id, userID)
	}
	if rec.IsDeleted() {
		return domain.NewRecordError(domain.ErrAlreadyDeleted, op, id, userID)
	}
	return domain.NewRecordError(domain.ErrRecordNotFound, op, id, userID)
}

// CalculateUsage computes the user's usage from ledger rows.
func (r *storageRecordRepository) CalculateUsage(ctx context.Context, userID uuid.UUID) (*domain.StorageUsage, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_deleted = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_deleted = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(file_size), 0),
			COALESCE(SUM(CASE WHEN is_deleted = 0 THEN file_size ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_deleted = 1 THEN file_size ELSE 0 END), 0)
		FROM user_storage_records
		WHERE user_id = ?
	`

	u := &domain.StorageUsage{}
	err := r.db.QueryRowContext(ctx, query, userID.String()).Scan(
		&u.TotalFiles, &u.ActiveFiles, &u.DeletedFiles,
		&u.TotalSizeBytes, &u.ActiveSizeBytes, &u.DeletedSizeBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate storage usage: %w", err)
	}
	u.FillMB()
	return u, nil
}

// UsageByCategory aggregates active records per content category.
func (r *storageRecordRepository) UsageByCategory(ctx context.Context, userID uuid.UUID) ([]domain.CategoryUsage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT content_category, COUNT(*), COALESCE(SUM(file_size), 0), MAX(upload_date)
		FROM user_storage_records
		WHERE user_id = ? AND is_deleted = 0
		GROUP BY content_category
		ORDER BY content_category
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get usage by category: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryUsage
	for rows.Next() {
		var c domain.CategoryUsage
		var category string
		var last sql.NullString
		if err := rows.Scan(&category, &c.FileCount, &c.TotalSize, &last); err != nil {
			return nil, fmt.Errorf("failed to scan category usage: %w", err)
		}
		c.Category = domain.ContentCategory(category)
		if c.FileCount > 0 {
			c.AvgSize = float64(c.TotalSize) / float64(c.FileCount)
		}
		c.TotalSizeMB = domain.BytesToMB(c.TotalSize)
		if c.LastUpload, err = parseNullTime(last); err != nil {
			return nil, fmt.Errorf("failed to parse last upload: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category usage: %w", err)
	}
	return out, nil
}

// Analytics computes upload trends and top files since the given time.
func (r *storageRecordRepository) Analytics(ctx context.Context, userID uuid.UUID, since time.Time, topN int) (*domain.StorageAnalytics, error) {
	a := &domain.StorageAnalytics{Since: since.UTC()}
	uid := userID.String()
	sinceStr := formatTime(since)

	rows, err := r.db.QueryContext(ctx, `
		SELECT substr(upload_date, 1, 10) AS day, COUNT(*), COALESCE(SUM(file_size), 0)
		FROM user_storage_records
		WHERE user_id = ? AND upload_date >= ?
		GROUP BY day
		ORDER BY day
	`, uid, sinceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily uploads: %w", err)
	}
	for rows.Next() {
		var d domain.DailyUploadStat
		if err := rows.Scan(&d.Date, &d.Uploads, &d.TotalSize); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan daily uploads: %w", err)
		}
		a.DailyUploads = append(a.DailyUploads, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating daily uploads: %w", err)
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `
		SELECT id, original_filename, content_category, file_size, access_count, last_accessed
		FROM user_storage_records
		WHERE user_id = ? AND is_deleted = 0 AND access_count > 0
		ORDER BY access_count DESC, last_accessed DESC
		LIMIT ?
	`, uid, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to get most accessed files: %w", err)
	}
	for rows.Next() {
		var f domain.AccessedFile
		var id, category string
		var last sql.NullString
		if err := rows.Scan(&id, &f.OriginalFilename, &category, &f.FileSize, &f.AccessCount, &last); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan accessed file: %w", err)
		}
		f.ID, _ = uuid.Parse(id)
		f.ContentCategory = domain.ContentCategory(category)
		f.LastAccessed, _ = parseNullTime(last)
		a.MostAccessed = append(a.MostAccessed, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating accessed files: %w", err)
	}
	rows.Close()

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(file_size), 0), COALESCE(SUM(access_count), 0)
		FROM user_storage_records
		WHERE user_id = ? AND upload_date >= ?
	`, uid, sinceStr).Scan(&a.Summary.Uploads, &a.Summary.TotalSize, &a.Summary.TotalAccesses)
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics summary: %w", err)
	}
	a.Summary.TotalSizeMB = domain.BytesToMB(a.Summary.TotalSize)
	if a.Summary.Uploads > 0 {
		a.Summary.AvgFileSize = float64(a.Summary.TotalSize) / float64(a.Summary.Uploads)
	}

	return a, nil
}

// CleanupDeleted removes the user's soft-deleted rows deleted before olderThan.
func (r *storageRecordRepository) CleanupDeleted(ctx context.Context, userID uuid.UUID, olderThan time.Time) (*domain.CleanupResult, error) {
	res := &domain.CleanupResult{}
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		cutoff := formatTime(olderThan)
		uid := userID.String()

		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(SUM(file_size), 0)
			FROM user_storage_records
			WHERE user_id = ? AND is_deleted = 1 AND deleted_date < ?
		`, uid, cutoff).Scan(&res.CleanedUp, &res.BytesFreed); err != nil {
			return fmt.Errorf("failed to measure cleanup: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM user_storage_records
			WHERE user_id = ? AND is_deleted = 1 AND deleted_date < ?
		`, uid, cutoff); err != nil {
			return fmt.Errorf("failed to clean up deleted records: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListPurgeable returns soft-deleted records deleted before cutoff, oldest first.
func (r *storageRecordRepository) ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]*domain.UserStorageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM user_storage_records
		WHERE is_deleted = 1 AND deleted_date < ?
		ORDER BY deleted_date
		LIMIT ?
	`, formatTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list purgeable records: %w", err)
	}
	defer rows.Close()

	var out []*domain.UserStorageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purgeable record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Purge removes soft-deleted rows by ID.
func (r *storageRecordRepository) Purge(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_storage_records WHERE is_deleted = 1 AND id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge records: %w", err)
	}
	return result.RowsAffected()
}

// SumActiveSize returns the platform-wide active byte total.
func (r *storageRecordRepository) SumActiveSize(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(file_size), 0) FROM user_storage_records WHERE is_deleted = 0`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum active size: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.UserStorageRecord, error) {
	var (
		rec                      domain.UserStorageRecord
		id, userID, category     string
		campaignID, lastAccessed sql.NullString
		deletedDate              sql.NullString
		uploadDate, metadata     string
		isDeleted                int
	)

	if err := row.Scan(
		&id, &userID, &rec.FilePath, &rec.OriginalFilename, &rec.FileSize, &rec.ContentType, &category,
		&campaignID, &uploadDate, &lastAccessed, &rec.AccessCount, &isDeleted, &deletedDate, &metadata,
	); err != nil {
		return nil, err
	}

	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid record id: %w", err)
	}
	if rec.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	if campaignID.Valid {
		cid, err := uuid.Parse(campaignID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid campaign id: %w", err)
		}
		rec.CampaignID = &cid
	}
	rec.ContentCategory = domain.ContentCategory(category)
	if rec.UploadDate, err = parseTime(uploadDate); err != nil {
		return nil, fmt.Errorf("invalid upload_date: %w", err)
	}
	if rec.LastAccessed, err = parseNullTime(lastAccessed); err != nil {
		return nil, fmt.Errorf("invalid last_accessed: %w", err)
	}
	if rec.DeletedDate, err = parseNullTime(deletedDate); err != nil {
		return nil, fmt.Errorf("invalid deleted_date: %w", err)
	}
	rec.State = domain.StateFromFlags(isDeleted != 0)
	if rec.Metadata, err = domain.ParseFileMetadata([]byte(metadata)); err != nil {
		return nil, err
	}

	return &rec, nil
}

// Ensure storageRecordRepository implements repository.StorageRecordRepository.
var _ repository.StorageRecordRepository = (*storageRecordRepository)(nil)
