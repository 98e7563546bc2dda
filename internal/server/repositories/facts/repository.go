// Package facts persists denormalized per-owner usage figures.
package facts

import (
	"context"

	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// Repository is the user_facts access contract.
type Repository interface {
	// Recompute aggregates live file counts and sizes for an owner from
	// the authoritative tables.
	Recompute(ctx context.Context, ownerID string) (*models.OwnerFacts, error)

	// Upsert writes the owner's facts row, replacing any previous values.
	Upsert(ctx context.Context, f *models.OwnerFacts) error
}
