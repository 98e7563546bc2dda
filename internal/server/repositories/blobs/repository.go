// Package blobs persists content-addressed blob records (storage_files)
// and their reference counts.
package blobs

import (
	"context"

	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// Repository is the storage_files access contract. Reference-count changes
// are atomic row-level updates; callers that need check-then-act semantics
// must run inside a transaction (pass a dbx.DBTX bound to the tx).
type Repository interface {
	// Create inserts a new blob row. Returns common.ErrDuplicateContent
	// when another row already holds the same content hash.
	Create(ctx context.Context, b *models.Blob) error

	// GetByID returns a blob or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.Blob, error)

	// GetByHash returns the blob for a content hash or common.ErrorNotFound.
	GetByHash(ctx context.Context, hash string) (*models.Blob, error)

	// IncrementRefByHash atomically bumps ref_count for the row with the
	// given content hash and returns its id, or common.ErrorNotFound when
	// no such row exists.
	IncrementRefByHash(ctx context.Context, hash string) (string, error)

	// IncrementRef atomically bumps ref_count by id and returns the new count.
	IncrementRef(ctx context.Context, id string) (int64, error)

	// DecrementRef atomically lowers ref_count by id and returns the
	// updated row, or common.ErrorNotFound.
	DecrementRef(ctx context.Context, id string) (*models.Blob, error)

	// Delete removes the blob row. Returns common.ErrorNotFound when the
	// row is already gone.
	Delete(ctx context.Context, id string) error

	// UpdateScanState records the scanner's verdict for a blob.
	UpdateScanState(ctx context.Context, id string, status string, result *string) error
}
