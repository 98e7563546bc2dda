package facts

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// PostgresRepository implements facts storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Recompute(ctx context.Context, ownerID string) (*models.OwnerFacts, error) {
	query := `
		SELECT COUNT(uf.id), COALESCE(SUM(sf.size), 0)
		FROM user_files uf
		LEFT JOIN storage_files sf ON sf.id = uf.blob_id
		WHERE uf.owner_id = $1 AND uf.deleted_at IS NULL AND uf.is_folder = FALSE
	`
	f := &models.OwnerFacts{OwnerID: ownerID, UpdatedAt: time.Now()}
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&f.TotalFiles, &f.TotalSize); err != nil {
		return nil, fmt.Errorf("failed to aggregate owner facts: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, f *models.OwnerFacts) error {
	query := `
		INSERT INTO user_facts (owner_id, total_files, total_size, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id)
		DO UPDATE SET
			total_files = EXCLUDED.total_files,
			total_size = EXCLUDED.total_size,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, f.OwnerID, f.TotalFiles, f.TotalSize, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert owner facts: %w", err)
	}
	return nil
}
