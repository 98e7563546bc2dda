// Package sessions prunes auxiliary session records. The rows themselves
// are written by the authentication layer in front of this service; here
// the table only needs expiry cleanup.
package sessions

import (
	"context"
	"time"
)

// Repository is the sessions table access contract.
type Repository interface {
	// DeleteExpired removes sessions whose expires_at has passed and
	// returns the number of rows pruned.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
