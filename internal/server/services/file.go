package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/hashx"
	"github.com/dmitrijs2005/filekeeper/internal/keyedmutex"
	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filekeeper/internal/server/scanner"
	"github.com/dmitrijs2005/filekeeper/internal/server/storage"
)

// Object-key prefixes. Staged uploads live under stagingPrefix until the
// entry commits; accepted content lives under blobPrefix keyed by its
// content hash, so the permanent key for identical bytes is always the same.
const (
	stagingPrefix = "staging/"
	blobPrefix    = "blobs/"
)

// FileServiceOptions carries the upload-policy knobs.
type FileServiceOptions struct {
	// MaxFileSize is the upload size limit in bytes (0 means unlimited).
	MaxFileSize int64
	// ScanEnabled routes uploads through the virus scanner.
	ScanEnabled bool
	// AllowOnScannerFailure accepts uploads when the scanner errors out,
	// recording scan status "error" instead of rejecting.
	AllowOnScannerFailure bool
	// EncryptAtRest marks new blobs as stored encrypted. The store wrapper
	// does the actual sealing; this flag only records the fact on the row.
	EncryptAtRest bool
}

// FileService implements the user-facing file operations: upload with
// content dedup, download, folder management, soft delete, move, rename and
// restore. Structural operations serialize per owner through the keyed
// mutex, so concurrent requests of one owner never interleave inside a
// transaction while different owners proceed in parallel.
type FileService struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	store     storage.Store
	scan      scanner.Scanner
	lifecycle *Lifecycle
	facts     *Facts
	auditor   *AuditRecorder
	locks     *keyedmutex.KeyedMutex
	logger    logging.Logger
	opts      FileServiceOptions
}

// NewFileService wires the file orchestration together.
func NewFileService(
	db *sql.DB,
	repos repomanager.RepositoryManager,
	store storage.Store,
	scan scanner.Scanner,
	lifecycle *Lifecycle,
	facts *Facts,
	auditor *AuditRecorder,
	locks *keyedmutex.KeyedMutex,
	logger logging.Logger,
	opts FileServiceOptions,
) *FileService {
	return &FileService{
		db:        db,
		repos:     repos,
		store:     store,
		scan:      scan,
		lifecycle: lifecycle,
		facts:     facts,
		auditor:   auditor,
		locks:     locks,
		logger:    logger,
		opts:      opts,
	}
}

// UploadParams describes one incoming upload.
type UploadParams struct {
	OwnerID string
	// ParentID is the destination folder, nil for the owner's root.
	ParentID *string
	Name     string
	// Content is consumed exactly once, in a single streaming pass.
	Content io.Reader
	// ExpiresAt, when set, schedules the entry for the expiration sweep.
	ExpiresAt *time.Time
	MimeType  *string
}

// UploadResult reports the stored entry and whether its content was
// deduplicated against an existing blob.
type UploadResult struct {
	Entry        *models.FileEntry
	BlobID       string
	ContentHash  string
	Size         int64
	Deduplicated bool
}

// Upload stores content as a file entry. The stream is staged to the object
// store while being hashed, optionally virus-scanned, then promoted to a
// content-addressed permanent key before the database transaction runs, so
// a committed blob row always has its object in place. Content identical to
// an existing blob is not stored twice: the existing blob's reference count
// is incremented instead. Uploading over an existing live file of the same
// name in the same folder replaces that file's content in place.
func (s *FileService) Upload(ctx context.Context, p UploadParams) (*UploadResult, error) {
	stagingKey := stagingPrefix + uuid.New().String()
	// The staged object is temporary on every path, including failures:
	// accepted content lives on under its permanent key.
	defer s.discardStaging(stagingKey)

	hash, size, err := s.stage(ctx, stagingKey, p.Content)
	if err != nil {
		return nil, err
	}

	scanStatus, scanResult, err := s.scanStaged(ctx, p.OwnerID, stagingKey)
	if err != nil {
		return nil, err
	}

	permanentKey := blobPrefix + hash
	if err := s.store.Copy(ctx, stagingKey, permanentKey); err != nil {
		return nil, fmt.Errorf("promoting staged upload: %w", err)
	}

	release, err := s.locks.Acquire(ctx, p.OwnerID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		entry   *models.FileEntry
		blobID  string
		created bool
		reclaim []string
	)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkParent(ctx, tx, p.OwnerID, p.ParentID); err != nil {
			return err
		}

		var err error
		blobID, created, err = s.lifecycle.LinkOrCreate(ctx, tx, LinkParams{
			ContentHash: hash,
			ObjectKey:   permanentKey,
			Size:        size,
			MimeType:    p.MimeType,
			ScanStatus:  &scanStatus,
			IsEncrypted: s.opts.EncryptAtRest,
		})
		if err != nil {
			return err
		}
		if scanResult != nil {
			if err := s.repos.Blobs(tx).UpdateScanState(ctx, blobID, scanStatus, scanResult); err != nil {
				return err
			}
		}

		fileRepo := s.repos.Files(tx)

		existing, err := fileRepo.FindLiveByName(ctx, p.OwnerID, p.ParentID, p.Name)
		switch {
		case err == nil:
			// Same name in the same folder: replace content in place and
			// release the reference the old content held.
			if existing.BlobID != nil {
				keys, err := s.lifecycle.ReleaseBlob(ctx, tx, *existing.BlobID)
				if err != nil {
					return err
				}
				reclaim = append(reclaim, keys...)
			}
			if _, err := fileRepo.SetBlob(ctx, existing.ID, blobID, p.ExpiresAt); err != nil {
				return err
			}
			existing.BlobID = &blobID
			existing.ExpiresAt = p.ExpiresAt
			entry = existing
			return nil

		case errors.Is(err, common.ErrorNotFound):
			entry = &models.FileEntry{
				ID:        uuid.New().String(),
				OwnerID:   p.OwnerID,
				ParentID:  p.ParentID,
				Name:      p.Name,
				BlobID:    &blobID,
				CreatedAt: time.Now(),
				ExpiresAt: p.ExpiresAt,
			}
			return fileRepo.Create(ctx, entry)

		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	s.lifecycle.ReclaimObjects(ctx, reclaim)
	s.facts.UpdateOwnerFactsAsync(p.OwnerID)
	s.record(ctx, models.AuditFileUpload, p.OwnerID, entry.ID, "upload", "success")

	s.logger.Info(ctx, "file uploaded",
		"owner_id", p.OwnerID, "entry_id", entry.ID,
		"size", size, "deduplicated", !created)

	return &UploadResult{
		Entry:        entry,
		BlobID:       blobID,
		ContentHash:  hash,
		Size:         size,
		Deduplicated: !created,
	}, nil
}

// stage streams content to the staging key while hashing it, enforcing the
// size limit without buffering the payload in memory.
func (s *FileService) stage(ctx context.Context, key string, content io.Reader) (string, int64, error) {
	var r io.Reader = content
	if s.opts.MaxFileSize > 0 {
		// One extra byte distinguishes "exactly at limit" from "over".
		r = io.LimitReader(content, s.opts.MaxFileSize+1)
	}
	hr := hashx.NewReader(r)

	if err := s.store.Put(ctx, key, hr, -1); err != nil {
		return "", 0, fmt.Errorf("staging upload: %w", err)
	}
	if s.opts.MaxFileSize > 0 && hr.Size() > s.opts.MaxFileSize {
		return "", 0, common.ErrFileTooLarge
	}
	return hr.Sum(), hr.Size(), nil
}

// scanStaged runs the staged object through the scanner per the configured
// policy. Returns the scan status to record on the blob and, for non-clean
// outcomes, a detail string.
func (s *FileService) scanStaged(ctx context.Context, ownerID, key string) (string, *string, error) {
	if !s.opts.ScanEnabled {
		return models.ScanStatusUnchecked, nil, nil
	}

	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return "", nil, fmt.Errorf("reading staged upload for scan: %w", err)
	}
	defer rc.Close()

	res, err := s.scan.Scan(ctx, rc)
	if err != nil {
		if s.opts.AllowOnScannerFailure {
			s.logger.Warn(ctx, "scanner unavailable, accepting upload unscanned", "error", err)
			msg := err.Error()
			return models.ScanStatusError, &msg, nil
		}
		return "", nil, fmt.Errorf("%w: %v", common.ErrScannerUnavailable, err)
	}

	if res.Verdict == scanner.VerdictInfected {
		s.record(ctx, models.AuditFileUpload, ownerID, "", "upload", "infected")
		return "", nil, fmt.Errorf("%w: %s", common.ErrContentRejected, res.Threat)
	}
	return models.ScanStatusClean, nil, nil
}

// discardStaging removes a staged object best effort.
func (s *FileService) discardStaging(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Error(ctx, "failed to delete staged object", "key", key, "error", err)
	}
}

// DownloadResult bundles the content stream with its metadata. The caller
// owns Content and must close it.
type DownloadResult struct {
	Entry   *models.FileEntry
	Blob    *models.Blob
	Content io.ReadCloser
}

// Download streams the content of a live file owned by ownerID. Folders and
// entries whose content has been reclaimed yield common.ErrorNotFound.
func (s *FileService) Download(ctx context.Context, ownerID, id string) (*DownloadResult, error) {
	entry, err := s.repos.Files(s.db).GetOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if entry.IsFolder || entry.BlobID == nil {
		return nil, common.ErrorNotFound
	}

	blob, err := s.repos.Blobs(s.db).GetByID(ctx, *entry.BlobID)
	if err != nil {
		return nil, err
	}

	rc, err := s.store.Get(ctx, blob.ObjectKey)
	if err != nil {
		return nil, err
	}

	s.record(ctx, models.AuditFileDownload, ownerID, entry.ID, "download", "success")
	return &DownloadResult{Entry: entry, Blob: blob, Content: rc}, nil
}

// ContentExists reports whether content with the given hash is already
// stored, letting clients skip the transfer and link by hash instead. The
// answer is advisory: the blob can appear or be reclaimed between this
// check and a later upload, which handles either outcome itself.
func (s *FileService) ContentExists(ctx context.Context, hash string) (bool, error) {
	_, err := s.repos.Blobs(s.db).GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateFolder creates a folder under parentID (nil for root).
func (s *FileService) CreateFolder(ctx context.Context, ownerID string, parentID *string, name string) (*models.FileEntry, error) {
	release, err := s.locks.Acquire(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer release()

	entry := &models.FileEntry{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		ParentID:  parentID,
		Name:      name,
		IsFolder:  true,
		CreatedAt: time.Now(),
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkParent(ctx, tx, ownerID, parentID); err != nil {
			return err
		}
		return s.repos.Files(tx).Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteItem soft-deletes one entry, recursing into folders. Deleting an
// entry that is already deleted or missing returns common.ErrorNotFound.
func (s *FileService) DeleteItem(ctx context.Context, ownerID, id string) error {
	release, err := s.locks.Acquire(ctx, ownerID)
	if err != nil {
		return err
	}
	defer release()

	var reclaim []string

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entry, err := s.repos.Files(tx).GetOwned(ctx, ownerID, id)
		if err != nil {
			return err
		}

		if entry.IsFolder {
			keys, err := s.lifecycle.DeleteFolderRecursive(ctx, tx, entry.ID)
			if err != nil {
				return err
			}
			reclaim = append(reclaim, keys...)
		}

		keys, err := s.lifecycle.SoftDeleteEntry(ctx, tx, entry)
		if err != nil {
			return err
		}
		reclaim = append(reclaim, keys...)
		return nil
	})
	if err != nil {
		return err
	}

	s.lifecycle.ReclaimObjects(ctx, reclaim)
	s.facts.UpdateOwnerFactsAsync(ownerID)
	s.record(ctx, models.AuditFileDelete, ownerID, id, "delete", "success")
	return nil
}

// BulkDelete soft-deletes a batch of entries in one transaction. Missing or
// foreign entries are skipped, not errors. Returns the number deleted.
func (s *FileService) BulkDelete(ctx context.Context, ownerID string, ids []string) (int, error) {
	release, err := s.locks.Acquire(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	defer release()

	count, reclaim, err := s.lifecycle.BulkDelete(ctx, s.db, ownerID, ids)
	if err != nil {
		return 0, err
	}

	s.lifecycle.ReclaimObjects(ctx, reclaim)
	s.facts.UpdateOwnerFactsAsync(ownerID)
	s.record(ctx, models.AuditFileDelete, ownerID, "", "bulk_delete", "success")
	return count, nil
}

// BulkMove reparents a batch of entries under parentID (nil for root) in one
// transaction. Missing entries are skipped. Moving a folder into itself or
// into one of its descendants fails with common.ErrInvalidParent.
func (s *FileService) BulkMove(ctx context.Context, ownerID string, ids []string, parentID *string) (int, error) {
	release, err := s.locks.Acquire(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	defer release()

	var count int

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkParent(ctx, tx, ownerID, parentID); err != nil {
			return err
		}
		if err := s.checkNoCycle(ctx, tx, ownerID, ids, parentID); err != nil {
			return err
		}

		fileRepo := s.repos.Files(tx)
		for _, id := range ids {
			n, err := fileRepo.SetParent(ctx, ownerID, id, parentID)
			if err != nil {
				return err
			}
			if n == 0 {
				s.logger.Warn(ctx, "bulk move: entry not found", "entry_id", id, "owner_id", ownerID)
				continue
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.record(ctx, models.AuditFileAccess, ownerID, "", "bulk_move", "success")
	return count, nil
}

// Rename changes a live entry's name.
func (s *FileService) Rename(ctx context.Context, ownerID, id, name string) error {
	release, err := s.locks.Acquire(ctx, ownerID)
	if err != nil {
		return err
	}
	defer release()

	n, err := s.repos.Files(s.db).Rename(ctx, ownerID, id, name)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Restore brings a soft-deleted entry back to life. A restored file
// re-acquires a reference on its blob; if the content was already reclaimed
// the restore fails with common.ErrorNotFound. When the original parent is
// gone the entry is reattached at the owner's root. Restoring a live entry
// is a no-op. Folders come back empty: descendants stay deleted and must be
// restored individually.
func (s *FileService) Restore(ctx context.Context, ownerID, id string) (*models.FileEntry, error) {
	release, err := s.locks.Acquire(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer release()

	var entry *models.FileEntry

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		fileRepo := s.repos.Files(tx)

		var err error
		entry, err = fileRepo.GetAnyOwned(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if entry.Live() {
			return nil
		}

		if !entry.IsFolder {
			if entry.BlobID == nil {
				// Content was reclaimed when the last reference dropped.
				return common.ErrorNotFound
			}
			if _, err := s.repos.Blobs(tx).IncrementRef(ctx, *entry.BlobID); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return common.ErrorNotFound
				}
				return err
			}
		}

		parentID := entry.ParentID
		if parentID != nil {
			if err := s.checkParent(ctx, tx, ownerID, parentID); err != nil {
				if !errors.Is(err, common.ErrInvalidParent) {
					return err
				}
				parentID = nil
			}
		}

		if _, err := fileRepo.Restore(ctx, entry.ID, parentID); err != nil {
			return err
		}
		entry.ParentID = parentID
		entry.DeletedAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.facts.UpdateOwnerFactsAsync(ownerID)
	s.record(ctx, models.AuditFileAccess, ownerID, id, "restore", "success")
	return entry, nil
}

// ListFolder returns the live direct children of a folder the owner holds,
// or of the root when folderID is nil.
func (s *FileService) ListFolder(ctx context.Context, ownerID string, folderID *string) ([]*models.FileEntry, error) {
	if folderID != nil {
		entry, err := s.repos.Files(s.db).GetOwned(ctx, ownerID, *folderID)
		if err != nil {
			return nil, err
		}
		if !entry.IsFolder {
			return nil, common.ErrInvalidParent
		}
		return s.repos.Files(s.db).ListChildren(ctx, entry.ID)
	}
	return s.repos.Files(s.db).ListRoot(ctx, ownerID)
}

// checkParent validates that parentID (when set) is a live folder owned by
// ownerID. Returns common.ErrInvalidParent otherwise.
func (s *FileService) checkParent(ctx context.Context, tx dbx.DBTX, ownerID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, err := s.repos.Files(tx).GetOwned(ctx, ownerID, *parentID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidParent
		}
		return err
	}
	if !parent.IsFolder {
		return common.ErrInvalidParent
	}
	return nil
}

// checkNoCycle rejects moves that would place a folder inside itself or a
// descendant, by walking up from the target parent and looking for any of
// the moved ids on the ancestor chain.
func (s *FileService) checkNoCycle(ctx context.Context, tx dbx.DBTX, ownerID string, ids []string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	moved := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		moved[id] = struct{}{}
	}

	fileRepo := s.repos.Files(tx)
	cur := parentID
	for cur != nil {
		if _, ok := moved[*cur]; ok {
			return common.ErrInvalidParent
		}
		entry, err := fileRepo.GetOwned(ctx, ownerID, *cur)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidParent
			}
			return err
		}
		cur = entry.ParentID
	}
	return nil
}

// record enqueues an audit event, tolerating a nil recorder in tests.
func (s *FileService) record(ctx context.Context, t models.AuditEventType, ownerID, resourceID, action, status string) {
	if s.auditor == nil {
		return
	}
	e := &models.AuditEvent{EventType: t, Action: action, Status: status}
	if ownerID != "" {
		e.ActorID = &ownerID
	}
	if resourceID != "" {
		e.ResourceID = &resourceID
	}
	s.auditor.Record(ctx, e)
}
