package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/repomanager"
)

// Facts maintains the denormalized per-owner usage figures. Updates run
// best effort after structural operations, outside the operation's
// transaction, so a failed recompute never rolls anything back.
type Facts struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
}

// NewFacts constructs the facts maintainer.
func NewFacts(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger) *Facts {
	return &Facts{db: db, repos: repos, logger: logger}
}

// UpdateOwnerFacts recomputes and stores the owner's aggregate file count
// and total size from the authoritative tables.
func (f *Facts) UpdateOwnerFacts(ctx context.Context, ownerID string) error {
	repo := f.repos.Facts(f.db)

	facts, err := repo.Recompute(ctx, ownerID)
	if err != nil {
		return err
	}
	facts.UpdatedAt = time.Now()
	return repo.Upsert(ctx, facts)
}

// UpdateOwnerFactsAsync runs UpdateOwnerFacts in a goroutine with its own
// deadline, logging failures instead of returning them. Used on the request
// path where facts staleness is acceptable but latency is not.
func (f *Facts) UpdateOwnerFactsAsync(ownerID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := f.UpdateOwnerFacts(ctx, ownerID); err != nil {
			f.logger.Error(ctx, "failed to update owner facts", "owner_id", ownerID, "error", err)
		}
	}()
}
