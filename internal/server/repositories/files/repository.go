// Package files persists user-visible file and folder entries (user_files).
package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// Repository is the user_files access contract. "Live" means deleted_at is
// null. Mutating methods report rows affected so callers can distinguish a
// no-op from a hit without a prior read.
type Repository interface {
	// Create inserts a new entry (file or folder).
	Create(ctx context.Context, e *models.FileEntry) error

	// GetOwned returns a live entry owned by ownerID, or common.ErrorNotFound.
	GetOwned(ctx context.Context, ownerID, id string) (*models.FileEntry, error)

	// GetAnyOwned is GetOwned without the liveness filter (restore path).
	GetAnyOwned(ctx context.Context, ownerID, id string) (*models.FileEntry, error)

	// FindLiveByName returns the live non-folder entry with the given name
	// under parentID (nil means root), or common.ErrorNotFound.
	FindLiveByName(ctx context.Context, ownerID string, parentID *string, name string) (*models.FileEntry, error)

	// ListChildren returns the live direct children of a folder.
	ListChildren(ctx context.Context, parentID string) ([]*models.FileEntry, error)

	// ListRoot returns the owner's live root-level entries (parent_id null).
	ListRoot(ctx context.Context, ownerID string) ([]*models.FileEntry, error)

	// SoftDelete stamps deleted_at on a live entry. Returns the number of
	// rows affected (0 when the entry is already deleted or missing).
	SoftDelete(ctx context.Context, id string, at time.Time) (int64, error)

	// Restore clears deleted_at and reparents the entry. Returns rows affected.
	Restore(ctx context.Context, id string, parentID *string) (int64, error)

	// SetParent moves a live entry under a new parent (nil means root).
	SetParent(ctx context.Context, ownerID, id string, parentID *string) (int64, error)

	// Rename changes a live entry's name. Returns rows affected.
	Rename(ctx context.Context, ownerID, id, name string) (int64, error)

	// SetBlob repoints a live file entry at a different blob and refreshes
	// its expiry (upload merge path).
	SetBlob(ctx context.Context, id, blobID string, expiresAt *time.Time) (int64, error)

	// ListExpired returns up to limit entries whose expires_at has passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.FileEntry, error)

	// HardDelete removes the row entirely (expiration sweep / purge only).
	HardDelete(ctx context.Context, id string) (int64, error)
}
