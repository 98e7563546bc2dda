// Package audit persists append-only audit events.
package audit

import (
	"context"

	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// Repository is the audit_logs access contract. Rows are append-only:
// there are no update or delete operations by design.
type Repository interface {
	Insert(ctx context.Context, e *models.AuditEvent) error
}
