package blobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements blob storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *PostgresRepository) Create(ctx context.Context, b *models.Blob) error {
	query := `
		INSERT INTO storage_files (id, content_hash, object_key, size, ref_count, scan_status, scan_result, scanned_at, mime_type, is_encrypted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.ContentHash, b.ObjectKey, b.Size, b.RefCount,
		b.ScanStatus, b.ScanResult, b.ScannedAt, b.MimeType, b.IsEncrypted)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrDuplicateContent
		}
		return fmt.Errorf("failed to insert blob: %w", err)
	}
	return nil
}

const blobColumns = `id, content_hash, object_key, size, ref_count, scan_status, scan_result, scanned_at, mime_type, is_encrypted`

func (r *PostgresRepository) scanBlob(row *sql.Row) (*models.Blob, error) {
	b := &models.Blob{}
	err := row.Scan(&b.ID, &b.ContentHash, &b.ObjectKey, &b.Size, &b.RefCount,
		&b.ScanStatus, &b.ScanResult, &b.ScannedAt, &b.MimeType, &b.IsEncrypted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select blob: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Blob, error) {
	query := `SELECT ` + blobColumns + ` FROM storage_files WHERE id = $1`
	return r.scanBlob(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*models.Blob, error) {
	query := `SELECT ` + blobColumns + ` FROM storage_files WHERE content_hash = $1`
	return r.scanBlob(r.db.QueryRowContext(ctx, query, hash))
}

func (r *PostgresRepository) IncrementRefByHash(ctx context.Context, hash string) (string, error) {
	query := `UPDATE storage_files SET ref_count = ref_count + 1 WHERE content_hash = $1 RETURNING id`

	var id string
	if err := r.db.QueryRowContext(ctx, query, hash).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("failed to increment ref count by hash: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) IncrementRef(ctx context.Context, id string) (int64, error) {
	query := `UPDATE storage_files SET ref_count = ref_count + 1 WHERE id = $1 RETURNING ref_count`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("failed to increment ref count: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) DecrementRef(ctx context.Context, id string) (*models.Blob, error) {
	query := `
		UPDATE storage_files SET ref_count = ref_count - 1 WHERE id = $1
		RETURNING ` + blobColumns

	return r.scanBlob(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM storage_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateScanState(ctx context.Context, id string, status string, result *string) error {
	query := `UPDATE storage_files SET scan_status = $2, scan_result = $3, scanned_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, status, result)
	if err != nil {
		return fmt.Errorf("failed to update scan state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
