package jobs

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidqueue/internal/config"
	"vidqueue/internal/services"
	"vidqueue/internal/sqlitex"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

const recordColumns = "id, original_name, stored_filename, size_bytes, mime_type, original_url, low_res_url, thumbnail_url, status, duration_seconds, width, height, error_message, created_at, updated_at"

// Store persists job records in SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the job record database.
func Open(cfg *config.Config) (*Store, error) {
	return OpenPath(cfg.JobsDBPath())
}

// OpenPath opens the job record database at an explicit location.
func OpenPath(path string) (*Store, error) {
	db, err := sqlitex.Open(path, schemaSQL, schemaVersion)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func notFound(id string) error {
	return fmt.Errorf("job %s: %w", id, services.ErrRecordNotFound)
}

// Create inserts a new record in StatusUploading with a fresh identifier.
func (s *Store) Create(ctx context.Context, attrs NewRecord) (*Record, error) {
	name := strings.TrimSpace(attrs.OriginalName)
	stored := strings.TrimSpace(attrs.StoredFilename)
	if name == "" || stored == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create job", "original and stored filenames are required", nil)
	}
	now := s.now().UTC()
	rec := &Record{
		ID:             uuid.NewString(),
		OriginalName:   name,
		StoredFilename: stored,
		SizeBytes:      attrs.SizeBytes,
		MimeType:       strings.TrimSpace(attrs.MimeType),
		OriginalURL:    strings.TrimSpace(attrs.OriginalURL),
		Status:         StatusUploading,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := sqlitex.Exec(ctx, s.db,
		`INSERT INTO jobs (id, original_name, stored_filename, size_bytes, mime_type, original_url, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.OriginalName,
		rec.StoredFilename,
		rec.SizeBytes,
		sqlitex.NullString(rec.MimeType),
		sqlitex.NullString(rec.OriginalURL),
		rec.Status,
		sqlitex.FormatTime(now),
		sqlitex.FormatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return rec, nil
}

// Get fetches a record by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM jobs WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return rec, nil
}

// UpdateStatus moves a record to status, validating the transition. Terminal
// statuses carry payload and must go through Complete or Fail.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) (*Record, error) {
	if _, ok := ParseStatus(string(status)); !ok {
		return nil, services.Wrap(services.ErrValidation, "", "update status", fmt.Sprintf("unknown status %q", status), nil)
	}
	return s.UpdateResult(ctx, id, ResultUpdate{Status: statusPtr(status)})
}

// UpdateResult applies a partial update inside a transaction. The record is
// re-read, u is merged, invariants are re-established, and the full row is
// written back.
func (s *Store) UpdateResult(ctx context.Context, id string, u ResultUpdate) (*Record, error) {
	var updated *Record
	err := sqlitex.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM jobs WHERE id = ?", id)
		rec, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(id)
		}
		if err != nil {
			return fmt.Errorf("load job: %w", err)
		}
		if err := u.apply(rec); err != nil {
			return err
		}
		rec.UpdatedAt = s.now().UTC()

		var duration sql.NullFloat64
		var width, height sql.NullInt64
		if rec.Metadata != nil {
			duration = sql.NullFloat64{Float64: rec.Metadata.DurationSeconds, Valid: true}
			width = sql.NullInt64{Int64: int64(rec.Metadata.Width), Valid: true}
			height = sql.NullInt64{Int64: int64(rec.Metadata.Height), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, low_res_url = ?, thumbnail_url = ?, duration_seconds = ?, width = ?, height = ?,
             error_message = ?, updated_at = ? WHERE id = ?`,
			rec.Status,
			sqlitex.NullString(rec.LowResURL),
			sqlitex.NullString(rec.ThumbnailURL),
			duration,
			width,
			height,
			sqlitex.NullString(rec.ErrorMessage),
			sqlitex.FormatTime(rec.UpdatedAt),
			rec.ID,
		); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := sqlitex.Exec(ctx, s.db, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return nil
}

// ListByStatus returns all records in status, newest first.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Record, error) {
	return s.List(ctx, ListOptions{Status: status})
}

// List returns records newest first, optionally filtered and paginated.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString("SELECT " + recordColumns + " FROM jobs")
	if opts.Status != "" {
		query.WriteString(" WHERE status = ?")
		args = append(args, opts.Status)
	}
	query.WriteString(" ORDER BY created_at DESC, id")
	if opts.Limit > 0 {
		query.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, opts.Limit, max(opts.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Counts returns the number of records per status.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int, len(allStatuses))
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec        Record
		status     string
		mimeType   sql.NullString
		original   sql.NullString
		lowRes     sql.NullString
		thumbnail  sql.NullString
		duration   sql.NullFloat64
		width      sql.NullInt64
		height     sql.NullInt64
		errMessage sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.OriginalName,
		&rec.StoredFilename,
		&rec.SizeBytes,
		&mimeType,
		&original,
		&lowRes,
		&thumbnail,
		&status,
		&duration,
		&width,
		&height,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.MimeType = mimeType.String
	rec.OriginalURL = original.String
	rec.LowResURL = lowRes.String
	rec.ThumbnailURL = thumbnail.String
	rec.ErrorMessage = errMessage.String
	if duration.Valid && width.Valid && height.Valid {
		rec.Metadata = &Metadata{
			DurationSeconds: duration.Float64,
			Width:           int(width.Int64),
			Height:          int(height.Int64),
		}
	}
	rec.CreatedAt = sqlitex.ParseTime(createdRaw)
	rec.UpdatedAt = sqlitex.ParseTime(updatedRaw)
	return &rec, nil
}
