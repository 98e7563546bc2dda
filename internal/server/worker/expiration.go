// Package worker runs the periodic expiration sweep that purges entries
// whose expires_at has passed, together with related housekeeping.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/keyedmutex"
	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filekeeper/internal/server/services"
)

// ExpirationWorker hard-deletes expired entries and releases the blob
// references they held. Each entry is purged in its own transaction so one
// bad row never blocks the rest of the sweep.
type ExpirationWorker struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	lifecycle *services.Lifecycle
	locks     *keyedmutex.KeyedMutex
	logger    logging.Logger

	interval time.Duration
	pageSize int
}

// NewExpirationWorker constructs the sweep worker.
func NewExpirationWorker(
	db *sql.DB,
	repos repomanager.RepositoryManager,
	lifecycle *services.Lifecycle,
	locks *keyedmutex.KeyedMutex,
	logger logging.Logger,
	interval time.Duration,
	pageSize int,
) *ExpirationWorker {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &ExpirationWorker{
		db:        db,
		repos:     repos,
		lifecycle: lifecycle,
		locks:     locks,
		logger:    logger,
		interval:  interval,
		pageSize:  pageSize,
	}
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (w *ExpirationWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Sweep(ctx)
	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep processes one page of expired entries, prunes expired sessions and
// compacts the lock registry. Per-entry failures are logged and skipped.
func (w *ExpirationWorker) Sweep(ctx context.Context) {
	now := time.Now()

	expired, err := w.repos.Files(w.db).ListExpired(ctx, now, w.pageSize)
	if err != nil {
		w.logger.Error(ctx, "failed to list expired entries", "error", err)
		return
	}

	var purged int
	for _, entry := range expired {
		if ctx.Err() != nil {
			return
		}
		if err := w.purge(ctx, entry.ID, entry.OwnerID); err != nil {
			w.logger.Error(ctx, "failed to purge expired entry",
				"entry_id", entry.ID, "owner_id", entry.OwnerID, "error", err)
			continue
		}
		purged++
	}

	pruned, err := w.repos.Sessions(w.db).DeleteExpired(ctx, now)
	if err != nil {
		w.logger.Error(ctx, "failed to prune expired sessions", "error", err)
	}

	w.locks.Cleanup()

	if purged > 0 || pruned > 0 {
		w.logger.Info(ctx, "expiration sweep finished",
			"expired", len(expired), "purged", purged, "sessions_pruned", pruned)
	}
}

// purge removes one expired entry in its own transaction. The worker never
// takes the per-owner lock used by interactive requests, so a busy owner
// cannot stall the sweep; correctness against a racing interactive delete
// comes from the soft-delete rows-affected gate, which fires at most once
// per entry and therefore releases its blob reference exactly once no
// matter which side gets there first. Physical object deletion happens
// after commit.
func (w *ExpirationWorker) purge(ctx context.Context, entryID, ownerID string) error {
	var reclaim []string

	err := dbx.WithTx(ctx, w.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		fileRepo := w.repos.Files(tx)

		entry, err := fileRepo.GetAnyOwned(ctx, ownerID, entryID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}

		if entry.IsFolder {
			keys, err := w.lifecycle.DeleteFolderRecursive(ctx, tx, entry.ID)
			if err != nil {
				return err
			}
			reclaim = append(reclaim, keys...)
		}

		keys, err := w.lifecycle.SoftDeleteEntry(ctx, tx, entry)
		if err != nil {
			return err
		}
		reclaim = append(reclaim, keys...)

		_, err = fileRepo.HardDelete(ctx, entry.ID)
		return err
	})
	if err != nil {
		return err
	}

	w.lifecycle.ReclaimObjects(ctx, reclaim)
	return nil
}
