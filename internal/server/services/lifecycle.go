// Package services contains the storage lifecycle engine and the user-facing
// file orchestration built on top of it.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filekeeper/internal/server/storage"
)

// Lifecycle owns every state transition that touches a file entry and a
// blob together, keeping the dedup/ref-count invariant intact: a blob's
// ref_count equals the number of live entries referencing it, and a blob
// row is removed exactly when the count reaches zero.
//
// Methods that mutate rows take a dbx.DBTX so they compose inside the
// caller's transaction. They return the object keys of blobs reclaimed in
// that transaction; callers must delete those objects from the store only
// after the transaction commits. A dangling object without a row is a
// harmless leak; a row without an object would be a correctness violation.
type Lifecycle struct {
	repos  repomanager.RepositoryManager
	store  storage.Store
	logger logging.Logger
}

// NewLifecycle constructs the lifecycle engine.
func NewLifecycle(repos repomanager.RepositoryManager, store storage.Store, logger logging.Logger) *Lifecycle {
	return &Lifecycle{repos: repos, store: store, logger: logger}
}

// LinkParams describes content being linked into the blob table.
type LinkParams struct {
	ContentHash string
	ObjectKey   string
	Size        int64
	MimeType    *string
	ScanStatus  *string
	IsEncrypted bool
}

// LinkOrCreate maps content to a blob id. When a blob with the same content
// hash exists its ref_count is incremented atomically; otherwise a new row
// with ref_count = 1 is inserted. A unique-constraint race on insert is
// retried as an increment, so two concurrent uploads of identical novel
// content converge on one row. Returns created = true when this call
// inserted the row.
func (s *Lifecycle) LinkOrCreate(ctx context.Context, tx dbx.DBTX, p LinkParams) (string, bool, error) {
	blobRepo := s.repos.Blobs(tx)

	id, err := blobRepo.IncrementRefByHash(ctx, p.ContentHash)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return "", false, err
	}

	b := &models.Blob{
		ID:          uuid.New().String(),
		ContentHash: p.ContentHash,
		ObjectKey:   p.ObjectKey,
		Size:        p.Size,
		RefCount:    1,
		ScanStatus:  p.ScanStatus,
		MimeType:    p.MimeType,
		IsEncrypted: p.IsEncrypted,
	}

	err = blobRepo.Create(ctx, b)
	if err == nil {
		return b.ID, true, nil
	}
	if !errors.Is(err, common.ErrDuplicateContent) {
		return "", false, err
	}

	// Lost the insert race: another transaction created the row for this
	// hash first. Fall back to incrementing it.
	id, err = blobRepo.IncrementRefByHash(ctx, p.ContentHash)
	if err != nil {
		return "", false, fmt.Errorf("duplicate content signaled but blob not found: %w", err)
	}
	return id, false, nil
}

// SoftDeleteEntry marks one entry deleted and, for files, releases its blob
// reference. Deleting an already-deleted entry affects zero rows and
// decrements nothing, which makes subtree deletion idempotent.
func (s *Lifecycle) SoftDeleteEntry(ctx context.Context, tx dbx.DBTX, entry *models.FileEntry) ([]string, error) {
	fileRepo := s.repos.Files(tx)

	n, err := fileRepo.SoftDelete(ctx, entry.ID, time.Now())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Already deleted (or purged concurrently); nothing to release.
		return nil, nil
	}
	if entry.IsFolder || entry.BlobID == nil {
		return nil, nil
	}
	return s.ReleaseBlob(ctx, tx, *entry.BlobID)
}

// ReleaseBlob decrements a blob's ref_count. When the count reaches zero
// the row is deleted in the same transaction and the object key is returned
// for post-commit physical deletion.
func (s *Lifecycle) ReleaseBlob(ctx context.Context, tx dbx.DBTX, blobID string) ([]string, error) {
	blobRepo := s.repos.Blobs(tx)

	b, err := blobRepo.DecrementRef(ctx, blobID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "blob already reclaimed", "blob_id", blobID)
			return nil, nil
		}
		return nil, err
	}

	s.logger.Debug(ctx, "blob reference released", "blob_id", b.ID, "ref_count", b.RefCount)

	if b.RefCount > 0 {
		return nil, nil
	}

	if err := blobRepo.Delete(ctx, b.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	return []string{b.ObjectKey}, nil
}

// DeleteFolderRecursive soft-deletes every live descendant of a folder,
// releasing blob references for descendant files. The folder itself is left
// to the caller. Enumeration is iterative (repeated child queries) because
// each descendant file needs ref-count bookkeeping the database cannot do
// on its own.
func (s *Lifecycle) DeleteFolderRecursive(ctx context.Context, tx dbx.DBTX, folderID string) ([]string, error) {
	fileRepo := s.repos.Files(tx)

	var reclaim []string
	stack := []string{folderID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := fileRepo.ListChildren(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if child.IsFolder {
				stack = append(stack, child.ID)
			}
			keys, err := s.SoftDeleteEntry(ctx, tx, child)
			if err != nil {
				return nil, err
			}
			reclaim = append(reclaim, keys...)
		}
	}
	return reclaim, nil
}

// BulkDelete soft-deletes a set of entries owned by ownerID in a single
// transaction, recursing into folders. Entries that are missing, deleted,
// or owned by someone else are skipped with a warning. Returns the number
// of requested entries affected and the reclaimed object keys. The caller
// must hold the owner's keyed lock.
func (s *Lifecycle) BulkDelete(ctx context.Context, db *sql.DB, ownerID string, ids []string) (int, []string, error) {
	var count int
	var reclaim []string

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		fileRepo := s.repos.Files(tx)
		for _, id := range ids {
			entry, err := fileRepo.GetOwned(ctx, ownerID, id)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					s.logger.Warn(ctx, "bulk delete: entry not found", "entry_id", id, "owner_id", ownerID)
					continue
				}
				return err
			}

			if entry.IsFolder {
				keys, err := s.DeleteFolderRecursive(ctx, tx, entry.ID)
				if err != nil {
					return err
				}
				reclaim = append(reclaim, keys...)
			}

			keys, err := s.SoftDeleteEntry(ctx, tx, entry)
			if err != nil {
				return err
			}
			reclaim = append(reclaim, keys...)
			count++
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return count, reclaim, nil
}

// ReclaimObjects deletes reclaimed blob payloads from the object store.
// Best effort: a failed delete leaves an orphaned object recoverable by a
// later sweep, so failures are logged and not returned.
func (s *Lifecycle) ReclaimObjects(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Error(ctx, "failed to delete reclaimed object", "key", key, "error", err)
		}
	}
}
