package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

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

// storageRecordRepository implements repository.StorageRecordRepository for PostgreSQL.
type storageRecordRepository struct {
	q Querier
}

// NewStorageRecordRepository creates a new PostgreSQL storage record repository.
func NewStorageRecordRepository(q Querier) repository.StorageRecordRepository {
	return &storageRecordRepository{q: q}
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

	query := `
		INSERT INTO user_storage_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, NULL, $12)
	`

	_, err = r.q.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.FilePath,
		rec.OriginalFilename,
		rec.FileSize,
		rec.ContentType,
		string(rec.ContentCategory),
		rec.CampaignID,
		rec.UploadDate.UTC(),
		rec.LastAccessed,
		rec.AccessCount,
		meta,
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
	query := `SELECT ` + recordColumns + ` FROM user_storage_records WHERE id = $1`

	rec, err := scanRecord(r.q.QueryRow(ctx, query, id))
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
	query := `SELECT ` + recordColumns + ` FROM user_storage_records WHERE user_id = $1 AND file_path = $2`
	if !includeDeleted {
		query += ` AND NOT is_deleted`
	}

	rec, err := scanRecord(r.q.QueryRow(ctx, query, userID, filePath))
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

	args := []any{userID}
	where := []string{"user_id = $1"}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !opts.IncludeDeleted {
		where = append(where, "NOT is_deleted")
	}
	if opts.Category != "" {
		where = append(where, "content_category = "+arg(string(opts.Category)))
	}
	if opts.CampaignID != nil {
		where = append(where, "campaign_id = "+arg(*opts.CampaignID))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM user_storage_records WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count storage records: %w", err)
	}

	direction := "ASC NULLS FIRST"
	if opts.Descending {
		direction = "DESC NULLS LAST"
	}
	limitArg := arg(opts.Limit)
	offsetArg := arg(opts.Offset)
	query := fmt.Sprintf(`SELECT %s FROM user_storage_records WHERE %s ORDER BY %s %s, id LIMIT %s OFFSET %s`,
		recordColumns, whereSQL, opts.OrderBy, direction, limitArg, offsetArg)

	rows, err := r.q.Query(ctx, query, args...)
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

	out := &domain.DeletedFile{FileID: id, DeletedDate: now}
	err := r.q.QueryRow(ctx, `
		UPDATE user_storage_records
		SET is_deleted = TRUE, deleted_date = $3
		WHERE id = $1 AND user_id = $2 AND NOT is_deleted
		RETURNING file_path, file_size
	`, id, userID, now).Scan(&out.FilePath, &out.FileSize)
	if err != nil {
		if isNoRows(err) {
			return nil, r.classifyMiss(ctx, opMarkDeleted, id, userID)
		}
		return nil, fmt.Errorf("failed to mark storage record deleted: %w", err)
	}
	return out, nil
}

// UpdateAccess increments the access counter and stamps last_accessed.
func (r *storageRecordRepository) UpdateAccess(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE user_storage_records
		SET access_count = access_count + 1, last_accessed = NOW()
		WHERE id = $1 AND user_id = $2 AND NOT is_deleted
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to update access: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return r.classifyMiss(ctx, opUpdateAccess, id, userID)
}

// classifyMiss explains why a guarded update matched nothing.
func (r *storageRecordRepository) classifyMiss(ctx context.Context, op string, id, userID uuid.UUID) error {
	var owner uuid.UUID
	var deleted bool
	err := r.q.QueryRow(ctx,
		`SELECT user_id, is_deleted FROM user_storage_records WHERE id = $1`, id,
	).Scan(&owner, &deleted)
	if err != nil {
		if isNoRows(err) {
			return domain.NewRecordError(domain.ErrRecordNotFound, op, id, userID)
		}
		return fmt.Errorf("failed to load storage record: %w", err)
	}
	if owner != userID {
		return domain.NewRecordError(domain.ErrOwnershipMismatch, op, id, userID)
	}
	if deleted {
		return domain.NewRecordError(domain.ErrAlreadyDeleted, op, id, userID)
	}
	return domain.NewRecordError(domain.ErrRecordNotFound, op, id, userID)
}

// CalculateUsage computes the user's usage from ledger rows.
func (r *storageRecordRepository) CalculateUsage(ctx context.Context, userID uuid.UUID) (*domain.StorageUsage, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT is_deleted),
			COUNT(*) FILTER (WHERE is_deleted),
			COALESCE(SUM(file_size), 0)::BIGINT,
			COALESCE(SUM(file_size) FILTER (WHERE NOT is_deleted), 0)::BIGINT,
			COALESCE(SUM(file_size) FILTER (WHERE is_deleted), 0)::BIGINT
		FROM user_storage_records
		WHERE user_id = $1
	`

	u := &domain.StorageUsage{}
	err := r.q.QueryRow(ctx, query, userID).Scan(
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
	rows, err := r.q.Query(ctx, `
		SELECT content_category, COUNT(*), COALESCE(SUM(file_size), 0)::BIGINT, MAX(upload_date)
		FROM user_storage_records
		WHERE user_id = $1 AND NOT is_deleted
		GROUP BY content_category
		ORDER BY content_category
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage by category: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryUsage
	for rows.Next() {
		var c domain.CategoryUsage
		var category string
		var last pgtype.Timestamptz
		if err := rows.Scan(&category, &c.FileCount, &c.TotalSize, &last); err != nil {
			return nil, fmt.Errorf("failed to scan category usage: %w", err)
		}
		c.Category = domain.ContentCategory(category)
		if c.FileCount > 0 {
			c.AvgSize = float64(c.TotalSize) / float64(c.FileCount)
		}
		c.TotalSizeMB = domain.BytesToMB(c.TotalSize)
		c.LastUpload = timePtr(last)
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

	rows, err := r.q.Query(ctx, `
		SELECT to_char(upload_date AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*), COALESCE(SUM(file_size), 0)::BIGINT
		FROM user_storage_records
		WHERE user_id = $1 AND upload_date >= $2
		GROUP BY day
		ORDER BY day
	`, userID, since.UTC())
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
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily uploads: %w", err)
	}

	rows, err = r.q.Query(ctx, `
		SELECT id, original_filename, content_category, file_size, access_count, last_accessed
		FROM user_storage_records
		WHERE user_id = $1 AND NOT is_deleted AND access_count > 0
		ORDER BY access_count DESC, last_accessed DESC NULLS LAST
		LIMIT $2
	`, userID, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to get most accessed files: %w", err)
	}
	for rows.Next() {
		var f domain.AccessedFile
		var category string
		var last pgtype.Timestamptz
		if err := rows.Scan(&f.ID, &f.OriginalFilename, &category, &f.FileSize, &f.AccessCount, &last); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan accessed file: %w", err)
		}
		f.ContentCategory = domain.ContentCategory(category)
		f.LastAccessed = timePtr(last)
		a.MostAccessed = append(a.MostAccessed, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accessed files: %w", err)
	}

	err = r.q.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(file_size), 0)::BIGINT, COALESCE(SUM(access_count), 0)::BIGINT
		FROM user_storage_records
		WHERE user_id = $1 AND upload_date >= $2
	`, userID, since.UTC()).Scan(&a.Summary.Uploads, &a.Summary.TotalSize, &a.Summary.TotalAccesses)
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
	err := r.q.QueryRow(ctx, `
		WITH removed AS (
			DELETE FROM user_storage_records
			WHERE user_id = $1 AND is_deleted AND deleted_date < $2
			RETURNING file_size
		)
		SELECT COUNT(*), COALESCE(SUM(file_size), 0)::BIGINT FROM removed
	`, userID, olderThan.UTC()).Scan(&res.CleanedUp, &res.BytesFreed)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up deleted records: %w", err)
	}
	return res, nil
}

// ListPurgeable returns soft-deleted records deleted before cutoff, oldest first.
func (r *storageRecordRepository) ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]*domain.UserStorageRecord, error) {
	rows, err := r.q.Query(ctx, `SELECT `+recordColumns+`
		FROM user_storage_records
		WHERE is_deleted AND deleted_date < $1
		ORDER BY deleted_date
		LIMIT $2
	`, cutoff.UTC(), limit)
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

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	tag, err := r.q.Exec(ctx,
		`DELETE FROM user_storage_records WHERE is_deleted AND id = ANY($1::uuid[])`,
		strIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SumActiveSize returns the platform-wide active byte total.
func (r *storageRecordRepository) SumActiveSize(ctx context.Context) (int64, error) {
	var total int64
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(file_size), 0)::BIGINT FROM user_storage_records WHERE NOT is_deleted`,
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
		rec          domain.UserStorageRecord
		category     string
		campaignID   uuid.NullUUID
		lastAccessed pgtype.Timestamptz
		deletedDate  pgtype.Timestamptz
		isDeleted    bool
		metadata     []byte
	)

	if err := row.Scan(
		&rec.ID, &rec.UserID, &rec.FilePath, &rec.OriginalFilename, &rec.FileSize, &rec.ContentType, &category,
		&campaignID, &rec.UploadDate, &lastAccessed, &rec.AccessCount, &isDeleted, &deletedDate, &metadata,
	); err != nil {
		return nil, err
	}

	if campaignID.Valid {
		cid := campaignID.UUID
		rec.CampaignID = &cid
	}
	rec.ContentCategory = domain.ContentCategory(category)
	rec.UploadDate = rec.UploadDate.UTC()
	rec.LastAccessed = timePtr(lastAccessed)
	rec.DeletedDate = timePtr(deletedDate)
	rec.State = domain.StateFromFlags(isDeleted)

	var err error
	if rec.Metadata, err = domain.ParseFileMetadata(metadata); err != nil {
		return nil, err
	}
	return &rec, nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}

// Ensure storageRecordRepository implements repository.StorageRecordRepository.
var _ repository.StorageRecordRepository = (*storageRecordRepository)(nil)
