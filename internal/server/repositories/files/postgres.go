package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// PostgresRepository implements entry storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, owner_id, parent_id, name, is_folder, blob_id, created_at, expires_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.FileEntry, error) {
	e := &models.FileEntry{}
	err := row.Scan(&e.ID, &e.OwnerID, &e.ParentID, &e.Name, &e.IsFolder,
		&e.BlobID, &e.CreatedAt, &e.ExpiresAt, &e.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select entry: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) Create(ctx context.Context, e *models.FileEntry) error {
	query := `
		INSERT INTO user_files (id, owner_id, parent_id, name, is_folder, blob_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.OwnerID, e.ParentID, e.Name, e.IsFolder, e.BlobID, e.CreatedAt, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetOwned(ctx context.Context, ownerID, id string) (*models.FileEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM user_files
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`
	return scanEntry(r.db.QueryRowContext(ctx, query, id, ownerID))
}

func (r *PostgresRepository) GetAnyOwned(ctx context.Context, ownerID, id string) (*models.FileEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM user_files
		WHERE id = $1 AND owner_id = $2`
	return scanEntry(r.db.QueryRowContext(ctx, query, id, ownerID))
}

func (r *PostgresRepository) FindLiveByName(ctx context.Context, ownerID string, parentID *string, name string) (*models.FileEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM user_files
		WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2 AND name = $3
			AND is_folder = FALSE AND deleted_at IS NULL`
	return scanEntry(r.db.QueryRowContext(ctx, query, ownerID, parentID, name))
}

func (r *PostgresRepository) ListChildren(ctx context.Context, parentID string) ([]*models.FileEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM user_files
		WHERE parent_id = $1 AND deleted_at IS NULL`

	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to select children: %w", err)
	}
	defer rows.Close()

	var result []*models.FileEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListRoot(ctx context.Context, ownerID string) ([]*models.FileEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM user_files
		WHERE owner_id = $1 AND parent_id IS NULL AND deleted_at IS NULL`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select root entries: %w", err)
	}
	defer rows.Close()

	var result []*models.FileEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, at time.Time) (int64, error) {
	query := `UPDATE user_files SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Restore(ctx context.Context, id string, parentID *string) (int64, error) {
	query := `UPDATE user_files SET deleted_at = NULL, parent_id = $2
		WHERE id = $1 AND deleted_at IS NOT NULL`

	result, err := r.db.ExecContext(ctx, query, id, parentID)
	if err != nil {
		return 0, fmt.Errorf("failed to restore entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) SetParent(ctx context.Context, ownerID, id string, parentID *string) (int64, error) {
	query := `UPDATE user_files SET parent_id = $3
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, ownerID, parentID)
	if err != nil {
		return 0, fmt.Errorf("failed to move entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Rename(ctx context.Context, ownerID, id, name string) (int64, error) {
	query := `UPDATE user_files SET name = $3
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, ownerID, name)
	if err != nil {
		return 0, fmt.Errorf("failed to rename entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) SetBlob(ctx context.Context, id, blobID string, expiresAt *time.Time) (int64, error) {
	query := `UPDATE user_files SET blob_id = $2, expires_at = $3, created_at = now()
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, blobID, expiresAt)
	if err != nil {
		return 0, fmt.Errorf("failed to update entry blob: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.FileEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM user_files
		WHERE expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired entries: %w", err)
	}
	defer rows.Close()

	var result []*models.FileEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) HardDelete(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_files WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
